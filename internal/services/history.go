// Package services – HistoryService
//
// This file implements HistoryService, the read side of chat history used by
// the HTTP layer: ownership-checked session lookup, paged message listing and
// the cheap aggregates behind ETags. Writes go through the Orchestrator.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/doktorai-backend/internal/domain"
	"github.com/tbourn/doktorai-backend/internal/repo"
)

// Paging defaults.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	TitleMaxLen     = 60
)

// HistoryService serves stored sessions and messages.
type HistoryService struct {
	DB *gorm.DB
}

// NewHistoryService returns a HistoryService over db.
func NewHistoryService(db *gorm.DB) *HistoryService { return &HistoryService{DB: db} }

// GetSession returns session id if it belongs to userID.
func (s *HistoryService) GetSession(ctx context.Context, userID, id string) (*domain.ChatSession, error) {
	cs, err := repo.GetSession(ctx, s.DB, id, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	return cs, err
}

// MessagesPage returns one page of a session's messages in creation order
// plus the total count. Invalid page values fall back to defaults.
func (s *HistoryService) MessagesPage(ctx context.Context, userID, sessionID string, page, pageSize int) ([]domain.ChatMessage, int64, error) {
	ctx, span := otel.Tracer("services/HistoryService").Start(ctx, "MessagesPage",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return nil, 0, err
	}
	page, pageSize = clampPage(page, pageSize)

	total, err := repo.CountMessages(ctx, s.DB, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ChatMessage{}, 0, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, sessionID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// MessagesVersion returns the message count and newest creation time of a
// session, used to build its ETag.
func (s *HistoryService) MessagesVersion(ctx context.Context, sessionID string) (int64, *time.Time, error) {
	return repo.MessagesStats(ctx, s.DB, sessionID)
}

// SessionsVersion returns the session count and newest update time of a
// user, used to build the session list ETag.
func (s *HistoryService) SessionsVersion(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.SessionsStats(ctx, s.DB, userID)
}

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// NormalizeTitle collapses whitespace and clips to TitleMaxLen runes. An
// empty result means the default title applies.
func NormalizeTitle(title string) string {
	title = whitespaceRE.ReplaceAllString(strings.TrimSpace(title), " ")
	if utf8.RuneCountInString(title) > TitleMaxLen {
		title = string([]rune(title)[:TitleMaxLen])
	}
	return title
}

var whitespaceRE = regexp.MustCompile(`\s+`)
