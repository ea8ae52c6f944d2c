// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ChatSession model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a session is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/doktorai-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateSession inserts a new ChatSession owned by userID. A blank title
// becomes domain.DefaultSessionTitle. The returned session has an empty,
// non-nil message list.
func CreateSession(ctx context.Context, db *gorm.DB, userID, title string) (*domain.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = domain.DefaultSessionTitle
	}
	now := time.Now().UTC()
	s := &domain.ChatSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	s.Messages = []domain.ChatMessage{}
	return s, nil
}

// ListSessions returns every session of userID, most recently updated first,
// with messages preloaded in ascending creation order.
func ListSessions(ctx context.Context, db *gorm.DB, userID string) ([]domain.ChatSession, error) {
	var out []domain.ChatSession
	err := db.WithContext(ctx).
		Preload("Messages", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("created_at ASC, id ASC")
		}).
		Where("user_id = ?", userID).
		Order("updated_at DESC, id ASC").
		Find(&out).Error
	return out, err
}

// CountSessions returns the total number of sessions owned by userID.
func CountSessions(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// GetSession fetches a single session by ID and owner, without messages.
// Missing or foreign sessions yield ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, id, userID string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// TouchSession bumps updated_at so the session sorts first on the next list.
func TouchSession(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		UpdateColumn("updated_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
