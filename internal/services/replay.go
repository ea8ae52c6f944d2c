// Package services – ReplayService
//
// This file implements ReplayService, which remembers the assistant message
// produced for an Idempotency-Key so a retried send is answered with the
// same message instead of a second pipeline run.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/doktorai-backend/internal/domain"
	"github.com/tbourn/doktorai-backend/internal/repo"
)

// ScopeMessages namespaces idempotency keys of POST /messages.
const ScopeMessages = "messages"

// ErrNoReplay means no unexpired record exists for the key.
var ErrNoReplay = errors.New("no stored result for idempotency key")

// ReplayService stores and resolves idempotency records.
type ReplayService struct {
	DB  *gorm.DB
	TTL time.Duration
	Now func() time.Time
}

// NewReplayService returns a ReplayService whose records live for ttl.
func NewReplayService(db *gorm.DB, ttl time.Duration) *ReplayService {
	return &ReplayService{DB: db, TTL: ttl, Now: time.Now}
}

// Exists reports whether an unexpired record exists at now.
func (s *ReplayService) Exists(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
	_, err := repo.GetIdempotency(ctx, s.DB, userID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Find returns the message stored for (userID, scope, key). A record whose
// message has disappeared counts as no replay.
func (s *ReplayService) Find(ctx context.Context, userID, scope, key string) (*domain.ChatMessage, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, scope, key, s.Now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNoReplay
	}
	if err != nil {
		return nil, err
	}
	m, err := repo.GetMessage(ctx, s.DB, rec.MessageID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNoReplay
	}
	return m, err
}

// Remember records messageID for the key. A concurrent request that stored
// the key first wins; that is not an error.
func (s *ReplayService) Remember(ctx context.Context, userID, scope, key, messageID string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.DB, userID, scope, key, messageID, status, s.TTL)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}
