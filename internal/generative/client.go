// Package generative produces moderated herbal-information replies through
// the Gemini API. Every request carries the DoktorAi moderation preamble,
// fixed sampling bounds and medium-and-above safety blocking.
package generative

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/tbourn/doktorai-backend/internal/domain"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// Sampling and length bounds applied to every request.
const (
	temperature     float32 = 0.7
	topK            float32 = 40
	topP            float32 = 0.95
	maxOutputTokens int32   = 1024
	imageMIMEType           = "image/jpeg"
)

// ErrMissingAPIKey is raised before any network call when no key is set.
var ErrMissingAPIKey = errors.New("gemini api key is not configured")

// ErrEmptyResponse means the provider answered without usable text.
var ErrEmptyResponse = errors.New("invalid response from gemini")

// ProviderError is any failure of a generative request. Op is "text" or
// "image".
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string { return "generative " + e.Op + ": " + e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

// Config configures Client.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string        // optional endpoint override
	Timeout    time.Duration // per request
	HTTPClient *http.Client  // optional
}

// contentGenerator is the subset of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client answers text and image questions.
type Client struct {
	models  contentGenerator
	model   string
	timeout time.Duration
	log     zerolog.Logger
}

// New builds a Client. An empty API key yields a Client whose calls fail
// with ErrMissingAPIKey, so the service can boot without credentials.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Client, error) {
	c := &Client{
		model:   cfg.Model,
		timeout: cfg.Timeout,
		log:     log.With().Str("component", "generative").Logger(),
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if cfg.APIKey == "" {
		c.log.Warn().Msg("GEMINI_API_KEY not set; replies will use the fallback text")
		return c, nil
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	gc, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c.models = gc.Models
	c.log.Info().Str("model", c.model).Msg("gemini client initialized")
	return c, nil
}

// RespondToText answers a text question in lang.
func (c *Client) RespondToText(ctx context.Context, text string, lang domain.Language) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(BuildPrompt(text, lang))}
	return c.generate(ctx, "text", lang, parts)
}

// RespondToImage answers question about a base64 (standard encoding) JPEG.
func (c *Client) RespondToImage(ctx context.Context, base64Image, question string, lang domain.Language) (string, error) {
	if c.models == nil {
		return "", &ProviderError{Op: "image", Err: ErrMissingAPIKey}
	}
	data, err := base64.StdEncoding.DecodeString(base64Image)
	if err != nil {
		return "", &ProviderError{Op: "image", Err: fmt.Errorf("decode image: %w", err)}
	}
	parts := []*genai.Part{
		genai.NewPartFromText(BuildPrompt(question, lang)),
		genai.NewPartFromBytes(data, imageMIMEType),
	}
	return c.generate(ctx, "image", lang, parts)
}

func (c *Client) generate(ctx context.Context, op string, lang domain.Language, parts []*genai.Part) (string, error) {
	if c.models == nil {
		return "", &ProviderError{Op: op, Err: ErrMissingAPIKey}
	}

	ctx, span := otel.Tracer("generative").Start(ctx, "Client.Respond",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.request.model", c.model),
			attribute.String("doktorai.path", op),
			attribute.String("doktorai.language", string(lang)),
		),
	)
	defer span.End()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := c.models.GenerateContent(ctx, c.model, contents, generationConfig())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate content")
		return "", &ProviderError{Op: op, Err: err}
	}
	text, err := extractText(resp)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", &ProviderError{Op: op, Err: err}
	}
	return text, nil
}

func generationConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		TopK:            genai.Ptr(topK),
		TopP:            genai.Ptr(topP),
		MaxOutputTokens: maxOutputTokens,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
		},
	}
}

// extractText returns the concatenated text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockedReasonUnspecified && fb.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", fb.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", fmt.Errorf("%w: no candidates", ErrEmptyResponse)
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: candidate has no content (finish reason %q)", ErrEmptyResponse, cand.FinishReason)
	}
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if p != nil && p.Text != "" {
			sb.WriteString(p.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: empty text", ErrEmptyResponse)
	}
	return sb.String(), nil
}
