// Package speech synthesizes spoken versions of assistant replies through the
// ElevenLabs text-to-speech API. Synthesis is best effort: every failure is
// logged and reported as "no audio".
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/doktorai-backend/internal/domain"
	"github.com/tbourn/doktorai-backend/internal/media"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io/v1"
	modelID        = "eleven_multilingual_v2"

	voiceTR = "IgiCa6883ksPGir0tfNK"
	voiceEN = "pBZVCk298iJlHAcHQwLr"

	maxAudioBytes = 20 << 20
)

// VoiceFor returns the configured voice for lang.
func VoiceFor(lang domain.Language) string {
	if lang.OrDefault() == domain.LanguageEN {
		return voiceEN
	}
	return voiceTR
}

// Saver persists synthesized audio and returns its reference.
type Saver interface {
	Save(ctx context.Context, kind media.Kind, data []byte, ext string) (string, error)
}

// Config configures Client.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client calls the text-to-speech endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	saver      Saver
	log        zerolog.Logger
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// New builds a Client. Without an API key every call returns no audio.
func New(cfg Config, saver Saver, log zerolog.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	c := &Client{
		apiKey:     cfg.APIKey,
		baseURL:    base,
		httpClient: hc,
		saver:      saver,
		log:        log.With().Str("component", "speech").Logger(),
	}
	if c.apiKey == "" {
		c.log.Warn().Msg("ELEVENLABS_API_KEY not set; replies will have no audio")
	}
	return c
}

// Synthesize returns a media reference for the spoken text, or "" when no
// audio could be produced. The error is always nil; failures are logged.
func (c *Client) Synthesize(ctx context.Context, text string, lang domain.Language) (string, error) {
	if c.apiKey == "" || strings.TrimSpace(text) == "" {
		return "", nil
	}

	voice := VoiceFor(lang)
	ctx, span := otel.Tracer("speech").Start(ctx, "Client.Synthesize",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("tts.voice_id", voice),
			attribute.String("doktorai.language", string(lang)),
			attribute.Int("tts.text_length", len(text)),
		),
	)
	defer span.End()

	audio, err := c.fetch(ctx, voice, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesize")
		c.log.Warn().Err(err).Str("voice", voice).Msg("speech synthesis failed")
		return "", nil
	}

	ref, err := c.saver.Save(ctx, media.KindAudio, audio, ".mp3")
	if err != nil {
		span.RecordError(err)
		c.log.Warn().Err(err).Msg("store synthesized audio")
		return "", nil
	}
	return ref, nil
}

func (c *Client) fetch(ctx context.Context, voice, text string) ([]byte, error) {
	payload, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: modelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Style:           0.0,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/text-to-speech/"+voice, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("elevenlabs status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty audio body")
	}
	if len(body) > maxAudioBytes {
		return nil, fmt.Errorf("audio exceeds %d bytes", maxAudioBytes)
	}
	return body, nil
}
