package identity

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/doktorai-backend/internal/domain"
)

// Event is an auth state transition reported by the identity provider.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// ProfileStore is the slice of persistence the auth state needs.
type ProfileStore interface {
	GetUserProfile(ctx context.Context, id string) (*domain.UserProfile, error)
	CreateUserProfile(ctx context.Context, id, email string, lang domain.Language) (*domain.UserProfile, error)
	UpdateUserLanguage(ctx context.Context, id string, lang domain.Language) error
}

// State is the auth context of one client: the signed-in profile (if any)
// and the active conversation language. Safe for concurrent use.
type State struct {
	store ProfileStore
	log   zerolog.Logger

	mu       sync.RWMutex
	profile  *domain.UserProfile
	language domain.Language
}

// NewState returns a signed-out State speaking lang.
func NewState(store ProfileStore, lang domain.Language, log zerolog.Logger) *State {
	return &State{store: store, log: log, language: lang.OrDefault()}
}

// CurrentUser returns a copy of the signed-in profile.
func (s *State) CurrentUser() (*domain.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil, false
	}
	cp := *s.profile
	return &cp, true
}

// Language returns the active conversation language.
func (s *State) Language() domain.Language {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

// HandleEvent applies an auth transition. Sign-in and token refresh re-fetch
// the profile of u; sign-out clears the state. Profile load failures are
// logged and leave the state signed out.
func (s *State) HandleEvent(ctx context.Context, ev Event, u *User) {
	switch ev {
	case EventSignedIn, EventTokenRefreshed:
		if u == nil || u.ID == "" {
			return
		}
		s.log.Debug().Str("event", string(ev)).Str("user_id", u.ID).Msg("auth state changed")
		s.loadProfile(ctx, *u)
	case EventSignedOut:
		s.log.Debug().Str("event", string(ev)).Msg("auth state changed")
		s.mu.Lock()
		s.profile = nil
		s.mu.Unlock()
	default:
		s.log.Warn().Str("event", string(ev)).Msg("ignoring unknown auth event")
	}
}

// loadProfile fetches the profile of u. When the sign-up trigger did not
// create one, a default profile (language tr, not premium) is inserted.
func (s *State) loadProfile(ctx context.Context, u User) {
	p, err := s.store.GetUserProfile(ctx, u.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Info().Str("user_id", u.ID).Msg("profile missing, creating fallback profile")
		p, err = s.store.CreateUserProfile(ctx, u.ID, u.Email, domain.DefaultLanguage)
	}
	if err != nil {
		s.log.Error().Err(err).Str("user_id", u.ID).Msg("load user profile")
		return
	}

	s.mu.Lock()
	s.profile = p
	s.language = p.LanguagePreference.OrDefault()
	s.mu.Unlock()
}

// SetLanguage switches the active language immediately and, when signed in,
// persists it as the user's preference. A persistence failure is returned
// but the local switch stays in effect.
func (s *State) SetLanguage(ctx context.Context, lang domain.Language) error {
	lang = lang.OrDefault()

	s.mu.Lock()
	s.language = lang
	var id string
	if s.profile != nil {
		id = s.profile.ID
	}
	s.mu.Unlock()

	if id == "" {
		return nil
	}
	if err := s.store.UpdateUserLanguage(ctx, id, lang); err != nil {
		s.log.Error().Err(err).Str("user_id", id).Msg("update language preference")
		return err
	}

	s.mu.Lock()
	if s.profile != nil && s.profile.ID == id {
		cp := *s.profile
		cp.LanguagePreference = lang
		s.profile = &cp
	}
	s.mu.Unlock()
	return nil
}
