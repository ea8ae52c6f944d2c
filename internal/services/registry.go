package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/doktorai-backend/internal/domain"
	"github.com/tbourn/doktorai-backend/internal/events"
	"github.com/tbourn/doktorai-backend/internal/identity"
)

// Client is the per-user composition of auth state and conversation.
type Client struct {
	Auth *identity.State
	Chat *Orchestrator
}

// Backend is what the registry needs from the store: profile access for the
// auth state and session/message access for the orchestrator.
type Backend interface {
	identity.ProfileStore
	Persistence
}

// RegistryDeps are shared by every client the registry builds.
type RegistryDeps struct {
	Store           Backend
	Responder       Responder
	Synthesizer     Synthesizer
	Images          ImageFetcher
	Publisher       events.Publisher
	DefaultLanguage domain.Language
	Log             zerolog.Logger
}

// Registry keeps one Client per signed-in user, so each user has their
// own orchestrator state and send guard. Clients whose tokens simply expire
// are never signed out; EvictIdle drops them.
type Registry struct {
	d   RegistryDeps
	now func() time.Time

	mu      sync.Mutex
	clients map[string]*registered
}

type registered struct {
	client   *Client
	lastSeen time.Time
}

// NewRegistry returns an empty Registry.
func NewRegistry(d RegistryDeps) *Registry {
	if d.Publisher == nil {
		d.Publisher = events.Noop{}
	}
	return &Registry{d: d, now: time.Now, clients: make(map[string]*registered)}
}

// SignIn returns the client of u with its profile (re)loaded.
func (r *Registry) SignIn(ctx context.Context, u identity.User) *Client {
	c := r.get(u.ID)
	c.Auth.HandleEvent(ctx, identity.EventSignedIn, &u)
	return c
}

// Refresh re-fetches the profile of u after a token refresh.
func (r *Registry) Refresh(ctx context.Context, u identity.User) *Client {
	c := r.get(u.ID)
	c.Auth.HandleEvent(ctx, identity.EventTokenRefreshed, &u)
	return c
}

// For returns the client of an authenticated request, loading the profile
// when it is not loaded yet. The client may still be signed out if the
// profile cannot be loaded; sends then fail with ErrAuthRequired.
func (r *Registry) For(ctx context.Context, u identity.User) *Client {
	c := r.get(u.ID)
	if _, ok := c.Auth.CurrentUser(); !ok {
		c.Auth.HandleEvent(ctx, identity.EventSignedIn, &u)
	}
	return c
}

// SignOut clears and forgets the client of userID.
func (r *Registry) SignOut(ctx context.Context, userID string) {
	r.mu.Lock()
	e, ok := r.clients[userID]
	delete(r.clients, userID)
	r.mu.Unlock()
	if ok {
		e.client.Auth.HandleEvent(ctx, identity.EventSignedOut, nil)
	}
}

// EvictIdle forgets clients not used since cutoff, except those with a send
// in flight, and returns how many were dropped. An evicted user's next
// request builds a fresh client and reloads the profile.
func (r *Registry) EvictIdle(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.clients {
		if e.lastSeen.Before(cutoff) && !e.client.Chat.Busy() {
			delete(r.clients, id)
			n++
		}
	}
	if n > 0 {
		r.d.Log.Debug().Int("evicted", n).Int("remaining", len(r.clients)).Msg("idle clients evicted")
	}
	return n
}

// Len reports the number of live clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Registry) get(userID string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if e, ok := r.clients[userID]; ok {
		e.lastSeen = now
		return e.client
	}
	log := r.d.Log.With().Str("user_id", userID).Logger()
	auth := identity.NewState(r.d.Store, r.d.DefaultLanguage, log)
	c := &Client{
		Auth: auth,
		Chat: NewOrchestrator(Deps{
			Identity:    auth,
			Store:       r.d.Store,
			Responder:   r.d.Responder,
			Synthesizer: r.d.Synthesizer,
			Images:      r.d.Images,
			Player:      events.NewAudioPlayer(r.d.Publisher, userID),
			Publisher:   r.d.Publisher,
			Log:         log,
		}),
	}
	r.clients[userID] = &registered{client: c, lastSeen: now}
	return c
}
