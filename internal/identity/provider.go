// Package identity adapts the remote GoTrue-compatible auth service (sign-up,
// sign-in, email verification, sign-out, token refresh) and keeps the
// per-user auth state consumed by the conversation orchestrator.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/doktorai-backend/internal/domain"
)

// ErrNotConfigured is returned when no auth service URL is set.
var ErrNotConfigured = errors.New("identity provider not configured")

// AuthError is a non-2xx answer from the auth service.
type AuthError struct {
	Status  int
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth service %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("auth service %d: %s", e.Status, e.Message)
}

// User is the identity record returned by the auth service.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is a token pair issued on sign-in, verification or refresh.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

// Provider is a thin REST client for the auth service.
type Provider struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

// NewProvider returns a Provider for baseURL (e.g. https://x.supabase.co/auth/v1).
// A nil httpClient gets a client with the given timeout.
func NewProvider(baseURL, anonKey string, timeout time.Duration, httpClient *http.Client) *Provider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: httpClient,
	}
}

// SignUp registers email/password. Depending on the project settings the
// service returns a session (auto-confirm) or only the user (OTP pending).
func (p *Provider) SignUp(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]any{"email": domain.NormalizeEmail(email), "password": password}
	raw, err := p.do(ctx, "SignUp", http.MethodPost, "/signup", "", body)
	if err != nil {
		return nil, err
	}
	return decodeSessionOrUser(raw)
}

// SignIn exchanges email/password for a session.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]any{"email": domain.NormalizeEmail(email), "password": password}
	raw, err := p.do(ctx, "SignIn", http.MethodPost, "/token?grant_type=password", "", body)
	if err != nil {
		return nil, err
	}
	return decodeSession(raw)
}

// VerifyEmail confirms a sign-up with the emailed one-time code.
func (p *Provider) VerifyEmail(ctx context.Context, email, code string) (*Session, error) {
	body := map[string]any{"type": "signup", "email": domain.NormalizeEmail(email), "token": strings.TrimSpace(code)}
	raw, err := p.do(ctx, "VerifyEmail", http.MethodPost, "/verify", "", body)
	if err != nil {
		return nil, err
	}
	return decodeSessionOrUser(raw)
}

// ResendVerification re-sends the sign-up code.
func (p *Provider) ResendVerification(ctx context.Context, email string) error {
	body := map[string]any{"type": "signup", "email": domain.NormalizeEmail(email)}
	_, err := p.do(ctx, "ResendVerification", http.MethodPost, "/resend", "", body)
	return err
}

// SignOut revokes the session behind accessToken.
func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	_, err := p.do(ctx, "SignOut", http.MethodPost, "/logout", accessToken, nil)
	return err
}

// GetUser returns the user that owns accessToken.
func (p *Provider) GetUser(ctx context.Context, accessToken string) (*User, error) {
	raw, err := p.do(ctx, "GetUser", http.MethodGet, "/user", accessToken, nil)
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("parse user: %w", err)
	}
	u.Email = domain.NormalizeEmail(u.Email)
	return &u, nil
}

// Refresh trades a refresh token for a new session.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	body := map[string]any{"refresh_token": refreshToken}
	raw, err := p.do(ctx, "Refresh", http.MethodPost, "/token?grant_type=refresh_token", "", body)
	if err != nil {
		return nil, err
	}
	return decodeSession(raw)
}

func (p *Provider) do(ctx context.Context, op, method, path, bearer string, body any) ([]byte, error) {
	if p == nil || p.baseURL == "" {
		return nil, ErrNotConfigured
	}
	ctx, span := otel.Tracer("identity").Start(ctx, "Provider."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.method", method)),
	)
	defer span.End()

	var rdr io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("apikey", p.anonKey)
	if bearer == "" {
		bearer = p.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%s request: %w", strings.ToLower(op), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseAuthError(resp.StatusCode, raw)
	}
	return raw, nil
}

func parseAuthError(status int, raw []byte) *AuthError {
	var body struct {
		Code             any    `json:"code"`
		ErrorCode        string `json:"error_code"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	_ = json.Unmarshal(raw, &body)

	e := &AuthError{Status: status, Code: body.ErrorCode}
	if e.Code == "" {
		e.Code = body.Error
	}
	for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func decodeSession(raw []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	if s.AccessToken == "" {
		return nil, errors.New("parse session: missing access token")
	}
	s.User.Email = domain.NormalizeEmail(s.User.Email)
	return &s, nil
}

// decodeSessionOrUser accepts either a session envelope or a bare user
// object (sign-up awaiting confirmation). A bare user yields a Session with
// empty tokens.
func decodeSessionOrUser(raw []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	if s.AccessToken != "" {
		s.User.Email = domain.NormalizeEmail(s.User.Email)
		return &s, nil
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("parse user: %w", err)
	}
	u.Email = domain.NormalizeEmail(u.Email)
	return &Session{User: u}, nil
}

// Confirmed reports whether the session carries usable tokens.
func (s *Session) Confirmed() bool { return s != nil && s.AccessToken != "" }
