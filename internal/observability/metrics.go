package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reply outcomes and paths.
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeNone     = "none"

	PathText  = "text"
	PathImage = "image"
)

var (
	replies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doktorai_replies_total",
			Help: "Assistant replies by language, generation path and outcome.",
		},
		[]string{"language", "path", "outcome"},
	)

	speech = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doktorai_speech_total",
			Help: "Speech synthesis attempts by outcome (ok or none).",
		},
		[]string{"outcome"},
	)

	persisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doktorai_messages_persisted_total",
			Help: "Chat messages written, by role.",
		},
		[]string{"role"},
	)

	sendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "doktorai_send_duration_seconds",
			Help: "End-to-end duration of a message send.",
			// Generation plus synthesis routinely takes seconds.
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
	)
)

func init() {
	prometheus.MustRegister(replies, speech, persisted, sendDuration)
}

// ObserveReply counts one generated (or fallback) reply.
func ObserveReply(language, path, outcome string) {
	replies.WithLabelValues(language, path, outcome).Inc()
}

// ObserveSpeech counts one synthesis attempt.
func ObserveSpeech(outcome string) { speech.WithLabelValues(outcome).Inc() }

// ObservePersisted counts one stored message.
func ObservePersisted(role string) { persisted.WithLabelValues(role).Inc() }

// ObserveSend records the duration of a send that started at start.
func ObserveSend(start time.Time) { sendDuration.Observe(time.Since(start).Seconds()) }
