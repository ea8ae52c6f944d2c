// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ChatMessage model.
package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/doktorai-backend/internal/domain"
)

// ErrInvalidMessage wraps validation failures of a NewMessage.
var ErrInvalidMessage = errors.New("invalid message")

var validate = validator.New(validator.WithRequiredStructEnabled())

// messageClock stamps new messages; tests pin it.
var messageClock = time.Now

// nextCreatedAt returns at, or just after the newest message of sessionID
// when at would not sort after it. Ties on created_at would otherwise fall
// back to the random id order.
func nextCreatedAt(tx *gorm.DB, sessionID string, at time.Time) (time.Time, error) {
	var last domain.ChatMessage
	err := tx.Select("created_at").
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return at, nil
	}
	if err != nil {
		return at, err
	}
	if floor := last.CreatedAt.UTC().Add(time.Microsecond); at.Before(floor) {
		return floor, nil
	}
	return at, nil
}

// CreateMessage validates m, inserts it into sessionID and bumps the
// session's updated_at, all in one transaction. The stored row is returned
// with its ID and CreatedAt assigned; CreatedAt is strictly after every
// earlier message of the session, so a reply never sorts before its question.
func CreateMessage(ctx context.Context, db *gorm.DB, sessionID string, m domain.NewMessage) (*domain.ChatMessage, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session id is empty", ErrInvalidMessage)
	}
	if err := validate.Struct(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	msg := &domain.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    m.UserID,
		Content:   m.Content,
		Role:      m.Role,
		InputType: m.InputType,
		ImageURL:  m.ImageURL,
		AudioURL:  m.AudioURL,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		at, err := nextCreatedAt(tx, sessionID, messageClock().UTC().Truncate(time.Microsecond))
		if err != nil {
			return err
		}
		msg.CreatedAt = at
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return TouchSession(ctx, tx, sessionID, at)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns messages ordered deterministically (CreatedAt ASC, ID ASC).
// A non-positive limit returns all rows.
func ListMessages(ctx context.Context, db *gorm.DB, sessionID string, limit int) ([]domain.ChatMessage, error) {
	out := []domain.ChatMessage{}
	q := db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM chat_messages WHERE session_id = ?", sessionID).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, sessionID string, offset, limit int) ([]domain.ChatMessage, error) {
	out := []domain.ChatMessage{}
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMediaRefs returns every image and audio reference still attached to a
// message. The media janitor keeps these files regardless of age.
func ListMediaRefs(ctx context.Context, db *gorm.DB) ([]string, error) {
	var rows []struct {
		ImageURL *string
		AudioURL *string
	}
	err := db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Select("image_url", "audio_url").
		Where("image_url IS NOT NULL OR audio_url IS NOT NULL").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.ImageURL != nil && *r.ImageURL != "" {
			out = append(out, *r.ImageURL)
		}
		if r.AudioURL != nil && *r.AudioURL != "" {
			out = append(out, *r.AudioURL)
		}
	}
	return out, nil
}
