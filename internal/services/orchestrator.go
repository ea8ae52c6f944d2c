// Package services – Orchestrator
//
// This file implements the conversation orchestrator: it owns one user's
// in-memory session list, the current session and the loading flag, and
// runs the send pipeline (user write, reply generation, speech synthesis,
// assistant write, playback).
//
// Provider failures never abort a send. Reply generation falls back to a
// fixed localized text (recoverReply), synthesis falls back to no audio
// (recoverAudio), and playback failures are only logged.
package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/doktorai-backend/internal/domain"
	"github.com/tbourn/doktorai-backend/internal/generative"
	"github.com/tbourn/doktorai-backend/internal/observability"
)

// Identity exposes the signed-in profile and active language. A nil or
// missing profile means nobody is signed in, and SendMessage aborts with
// ErrAuthRequired before any write or provider call.
type Identity interface {
	CurrentUser() (*domain.UserProfile, bool)
	Language() domain.Language
}

// Persistence is the durable store of sessions and messages.
//
// GetSessions returns the user's sessions newest first with their messages
// in creation order. AddMessage assigns id and timestamp, validates the
// message and bumps the session's updated_at. Implementations wrap their
// own errors; the orchestrator classifies them as ErrSessionCreate or
// ErrPersistence.
type Persistence interface {
	GetSessions(ctx context.Context, userID string) ([]domain.ChatSession, error)
	CreateSession(ctx context.Context, userID, title string) (*domain.ChatSession, error)
	GetMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
	AddMessage(ctx context.Context, sessionID string, m domain.NewMessage) (*domain.ChatMessage, error)
}

// Responder generates assistant replies in the given language. Any error is
// recovered into the localized fallback text, so implementations need not
// retry. RespondToImage receives the image base64-encoded.
type Responder interface {
	RespondToText(ctx context.Context, text string, lang domain.Language) (string, error)
	RespondToImage(ctx context.Context, base64Image, question string, lang domain.Language) (string, error)
}

// Synthesizer turns reply text into an audio reference. "" means no audio;
// an error is treated the same way and only logged.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, lang domain.Language) (string, error)
}

// ImageFetcher loads the bytes behind an image reference previously returned
// by the upload endpoint. A fetch failure yields the fallback reply.
type ImageFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Player plays an audio reference on the user's devices. Playback errors are
// logged and never returned to the caller.
type Player interface {
	Play(ctx context.Context, ref string) error
}

// Publisher announces persisted messages. Optional.
type Publisher interface {
	Publish(ctx context.Context, userID, event string, payload any) error
}

const eventMessageCreated = "message.created"

var errNoImageFetcher = errors.New("no image fetcher configured")

// State is a point-in-time copy of the orchestrator's view.
type State struct {
	Sessions []domain.ChatSession `json:"sessions"`
	Current  *domain.ChatSession  `json:"current_session"`
	Loading  bool                 `json:"loading"`
}

// Deps are the collaborators of an Orchestrator. Synthesizer, Images,
// Player and Publisher may be nil.
type Deps struct {
	Identity    Identity
	Store       Persistence
	Responder   Responder
	Synthesizer Synthesizer
	Images      ImageFetcher
	Player      Player
	Publisher   Publisher
	Log         zerolog.Logger
}

// Orchestrator runs the conversation for one client. Readers may call
// Snapshot concurrently with any operation; a second SendMessage while one
// is in flight fails with ErrBusy.
type Orchestrator struct {
	d   Deps
	log zerolog.Logger

	busy atomic.Bool

	mu    sync.RWMutex
	state State
}

// NewOrchestrator returns an Orchestrator with an empty session list.
func NewOrchestrator(d Deps) *Orchestrator {
	return &Orchestrator{
		d:     d,
		log:   d.Log.With().Str("component", "orchestrator").Logger(),
		state: State{Sessions: []domain.ChatSession{}},
	}
}

// Snapshot returns a copy that later mutations do not affect.
func (o *Orchestrator) Snapshot() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := State{
		Sessions: make([]domain.ChatSession, len(o.state.Sessions)),
		Loading:  o.state.Loading,
	}
	for i := range o.state.Sessions {
		out.Sessions[i] = cloneSession(o.state.Sessions[i])
	}
	if o.state.Current != nil {
		cur := cloneSession(*o.state.Current)
		out.Current = &cur
	}
	return out
}

// LoadSessions replaces the session list with the user's stored sessions.
// On failure the previous list is kept.
func (o *Orchestrator) LoadSessions(ctx context.Context, userID string) {
	sessions, err := o.d.Store.GetSessions(ctx, userID)
	if err != nil {
		o.log.Error().Err(err).Str("user_id", userID).Msg("load sessions")
		return
	}
	if sessions == nil {
		sessions = []domain.ChatSession{}
	}
	o.mu.Lock()
	o.state = State{Sessions: sessions, Current: o.state.Current, Loading: o.state.Loading}
	o.mu.Unlock()
}

// CreateSession stores a new session, puts it first in the list and makes
// it current.
func (o *Orchestrator) CreateSession(ctx context.Context, userID, title string) (*domain.ChatSession, error) {
	s, err := o.d.Store.CreateSession(ctx, userID, title)
	if err != nil {
		return nil, err
	}
	s.Messages = []domain.ChatMessage{}

	o.mu.Lock()
	sessions := make([]domain.ChatSession, 0, len(o.state.Sessions)+1)
	sessions = append(sessions, *s)
	sessions = append(sessions, o.state.Sessions...)
	cur := *s
	o.state = State{Sessions: sessions, Current: &cur, Loading: o.state.Loading}
	o.mu.Unlock()

	out := cloneSession(*s)
	return &out, nil
}

// Busy reports whether a SendMessage is in flight.
func (o *Orchestrator) Busy() bool { return o.busy.Load() }

// SelectSession loads the messages of s and makes it current, reporting
// whether that succeeded. On failure the current session is left as it was,
// even when it already is s.
func (o *Orchestrator) SelectSession(ctx context.Context, s domain.ChatSession) bool {
	msgs, err := o.d.Store.GetMessages(ctx, s.ID)
	if err != nil {
		o.log.Error().Err(err).Str("session_id", s.ID).Msg("load session messages")
		return false
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	s.Messages = msgs

	o.mu.Lock()
	o.state = State{Sessions: o.state.Sessions, Current: &s, Loading: o.state.Loading}
	o.mu.Unlock()
	return true
}

// SendMessage runs the send pipeline and returns the stored assistant
// message. imageRef is only used when kind is domain.InputImage.
func (o *Orchestrator) SendMessage(ctx context.Context, content string, kind domain.InputKind, imageRef string) (*domain.ChatMessage, error) {
	user, ok := o.d.Identity.CurrentUser()
	if !ok || user == nil {
		return nil, ErrAuthRequired
	}
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	o.setLoading(true)
	defer func() {
		o.setLoading(false)
		o.busy.Store(false)
	}()

	start := time.Now()
	defer observability.ObserveSend(start)

	lang := o.d.Identity.Language()
	ctx, span := otel.Tracer("services/Orchestrator").Start(ctx, "SendMessage",
		trace.WithAttributes(
			attribute.String("user.id", user.ID),
			attribute.String("input.kind", string(kind)),
			attribute.String("doktorai.language", string(lang)),
		),
	)
	defer span.End()

	session, err := o.ensureSession(ctx, user.ID)
	if err != nil {
		span.SetStatus(codes.Error, "create session")
		return nil, fmt.Errorf("%w: %w", ErrSessionCreate, err)
	}
	span.SetAttributes(attribute.String("session.id", session.ID))

	userMsg, err := o.d.Store.AddMessage(ctx, session.ID, domain.NewMessage{
		UserID:    user.ID,
		Content:   content,
		Role:      domain.RoleUser,
		InputType: kind,
		ImageURL:  domain.StringPtr(imageRef),
	})
	if err != nil {
		span.SetStatus(codes.Error, "persist user message")
		return nil, fmt.Errorf("%w: user message: %w", ErrPersistence, err)
	}
	o.appendMessage(*userMsg)
	o.announce(ctx, user.ID, userMsg)

	// The user turn is stored; the reply runs to completion even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)

	reply := o.recoverReply(ctx, content, kind, imageRef, lang)
	audioRef := o.recoverAudio(ctx, reply, lang)

	botMsg, err := o.d.Store.AddMessage(ctx, session.ID, domain.NewMessage{
		UserID:    user.ID,
		Content:   reply,
		Role:      domain.RoleAssistant,
		InputType: domain.InputText,
		AudioURL:  domain.StringPtr(audioRef),
	})
	if err != nil {
		span.SetStatus(codes.Error, "persist assistant message")
		return nil, fmt.Errorf("%w: assistant message: %w", ErrPersistence, err)
	}
	o.appendMessage(*botMsg)
	o.announce(ctx, user.ID, botMsg)

	if audioRef != "" {
		o.PlayAudio(ctx, audioRef)
	}
	return botMsg, nil
}

// PlayAudio plays ref. Failures are logged only.
func (o *Orchestrator) PlayAudio(ctx context.Context, ref string) {
	if o.d.Player == nil {
		return
	}
	if err := o.d.Player.Play(ctx, ref); err != nil {
		o.log.Warn().Err(err).Str("audio_url", ref).Msg("audio playback failed")
	}
}

// recoverReply returns the generated reply, or the localized fallback text
// when fetching the image or calling the provider fails.
func (o *Orchestrator) recoverReply(ctx context.Context, content string, kind domain.InputKind, imageRef string, lang domain.Language) string {
	path := observability.PathText
	var (
		reply string
		err   error
	)
	if kind == domain.InputImage && imageRef != "" {
		path = observability.PathImage
		var data []byte
		if o.d.Images == nil {
			err = errNoImageFetcher
		} else {
			data, err = o.d.Images.Fetch(ctx, imageRef)
		}
		if err == nil {
			reply, err = o.d.Responder.RespondToImage(ctx, base64.StdEncoding.EncodeToString(data), content, lang)
		}
	} else {
		reply, err = o.d.Responder.RespondToText(ctx, content, lang)
	}

	if err != nil {
		o.log.Warn().Err(err).Str("path", path).Str("language", string(lang)).Msg("reply generation failed, using fallback")
		observability.ObserveReply(string(lang), path, observability.OutcomeFallback)
		return generative.Fallback(lang)
	}
	observability.ObserveReply(string(lang), path, observability.OutcomeOK)
	return reply
}

// recoverAudio returns an audio reference for text, or "" when synthesis is
// unavailable or fails.
func (o *Orchestrator) recoverAudio(ctx context.Context, text string, lang domain.Language) string {
	if o.d.Synthesizer == nil {
		observability.ObserveSpeech(observability.OutcomeNone)
		return ""
	}
	ref, err := o.d.Synthesizer.Synthesize(ctx, text, lang)
	if err != nil {
		o.log.Warn().Err(err).Msg("speech synthesis failed, continuing without audio")
		ref = ""
	}
	if ref == "" {
		observability.ObserveSpeech(observability.OutcomeNone)
	} else {
		observability.ObserveSpeech(observability.OutcomeOK)
	}
	return ref
}

func (o *Orchestrator) ensureSession(ctx context.Context, userID string) (domain.ChatSession, error) {
	o.mu.RLock()
	cur := o.state.Current
	o.mu.RUnlock()
	if cur != nil {
		return *cur, nil
	}
	s, err := o.CreateSession(ctx, userID, domain.DefaultSessionTitle)
	if err != nil {
		return domain.ChatSession{}, err
	}
	return *s, nil
}

// appendMessage replaces the current session with a copy that ends in m.
func (o *Orchestrator) appendMessage(m domain.ChatMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Current == nil || o.state.Current.ID != m.SessionID {
		return
	}
	next := *o.state.Current
	msgs := make([]domain.ChatMessage, 0, len(next.Messages)+1)
	msgs = append(msgs, next.Messages...)
	next.Messages = append(msgs, m)
	o.state = State{Sessions: o.state.Sessions, Current: &next, Loading: o.state.Loading}
}

func (o *Orchestrator) setLoading(v bool) {
	o.mu.Lock()
	o.state = State{Sessions: o.state.Sessions, Current: o.state.Current, Loading: v}
	o.mu.Unlock()
}

func (o *Orchestrator) announce(ctx context.Context, userID string, m *domain.ChatMessage) {
	observability.ObservePersisted(string(m.Role))
	if o.d.Publisher == nil {
		return
	}
	if err := o.d.Publisher.Publish(ctx, userID, eventMessageCreated, m); err != nil {
		o.log.Warn().Err(err).Str("message_id", m.ID).Msg("publish message event")
	}
}

func cloneSession(s domain.ChatSession) domain.ChatSession {
	if s.Messages != nil {
		msgs := make([]domain.ChatMessage, len(s.Messages))
		copy(msgs, s.Messages)
		s.Messages = msgs
	}
	return s
}

// ValidateSend checks a send request before it reaches the pipeline. Text
// and voice turns need content; an image turn needs content or an image
// reference, and without a reference it is answered from content alone.
func ValidateSend(content string, kind domain.InputKind, imageRef string) error {
	if !kind.Valid() {
		return ErrInvalidInput
	}
	if strings.TrimSpace(content) != "" {
		return nil
	}
	if kind == domain.InputImage && strings.TrimSpace(imageRef) != "" {
		return nil
	}
	return ErrEmptyMessage
}
