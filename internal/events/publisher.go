// Package events fans chat activity out to a user's devices over NATS.
//
// Subjects are per user: doktorai.<user_id>.<event>. Clients subscribe to
// doktorai.<user_id>.> and react to message and playback events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const subjectPrefix = "doktorai"

// Event names.
const (
	EventAudioPlay      = "audio.play"
	EventMessageCreated = "message.created"
)

// Subject returns the subject for a user's event. Tokens NATS treats as
// wildcards or separators are replaced.
func Subject(userID, event string) string {
	r := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return subjectPrefix + "." + r.Replace(userID) + "." + event
}

// Publisher delivers an event to a user's subscribers.
type Publisher interface {
	Publish(ctx context.Context, userID, event string, payload any) error
}

// Noop drops every event. It is used when NATS_URL is empty.
type Noop struct{}

func (Noop) Publish(context.Context, string, string, any) error { return nil }

// Envelope is the JSON body of every event.
type Envelope struct {
	Event  string    `json:"event"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
	Data   any       `json:"data"`
}

type conn interface {
	Publish(subj string, data []byte) error
	Drain() error
	IsConnected() bool
}

// NATSPublisher publishes events on a core NATS connection.
type NATSPublisher struct {
	nc  conn
	log zerolog.Logger
	now func() time.Time
}

// Connect dials url with unlimited reconnects.
func Connect(url string, log zerolog.Logger) (*NATSPublisher, error) {
	log = log.With().Str("component", "events").Logger()
	nc, err := nats.Connect(url,
		nats.Name("doktorai-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newNATSPublisher(nc, log), nil
}

func newNATSPublisher(nc conn, log zerolog.Logger) *NATSPublisher {
	return &NATSPublisher{nc: nc, log: log, now: time.Now}
}

// Publish marshals payload into an Envelope and sends it.
func (p *NATSPublisher) Publish(ctx context.Context, userID, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(Envelope{Event: event, UserID: userID, At: p.now().UTC(), Data: payload})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	subj := Subject(userID, event)
	if err := p.nc.Publish(subj, b); err != nil {
		return fmt.Errorf("publish %s: %w", subj, err)
	}
	p.log.Debug().Str("subject", subj).Msg("event published")
	return nil
}

// Connected reports the connection state for health checks.
func (p *NATSPublisher) Connected() bool { return p.nc.IsConnected() }

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error { return p.nc.Drain() }
