package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/doktorai-backend/internal/domain"
)

// Store binds the repository functions to one *gorm.DB so callers can
// depend on methods instead of free functions. It satisfies the
// orchestrator's persistence port and the identity state's profile port.
type Store struct {
	DB *gorm.DB
}

// NewStore returns a Store over db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

func (s *Store) GetUserProfile(ctx context.Context, id string) (*domain.UserProfile, error) {
	return GetUserProfile(ctx, s.DB, id)
}

func (s *Store) CreateUserProfile(ctx context.Context, id, email string, lang domain.Language) (*domain.UserProfile, error) {
	return CreateUserProfile(ctx, s.DB, id, email, lang)
}

func (s *Store) UpdateUserLanguage(ctx context.Context, id string, lang domain.Language) error {
	return UpdateUserLanguage(ctx, s.DB, id, lang)
}

func (s *Store) GetSessions(ctx context.Context, userID string) ([]domain.ChatSession, error) {
	return ListSessions(ctx, s.DB, userID)
}

func (s *Store) CreateSession(ctx context.Context, userID, title string) (*domain.ChatSession, error) {
	return CreateSession(ctx, s.DB, userID, title)
}

func (s *Store) GetMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	return ListMessages(ctx, s.DB, sessionID, 0)
}

func (s *Store) AddMessage(ctx context.Context, sessionID string, m domain.NewMessage) (*domain.ChatMessage, error) {
	return CreateMessage(ctx, s.DB, sessionID, m)
}
