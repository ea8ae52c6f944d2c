package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/doktorai-backend/internal/domain"
)

// ErrDuplicate is returned when a (user, scope, key) record already exists.
var ErrDuplicate = errors.New("duplicate")

// uniqueViolationHints are the driver messages seen for UNIQUE failures.
// glebarez/sqlite does not map them to gorm.ErrDuplicatedKey.
var uniqueViolationHints = []string{
	"unique constraint failed",
	"constraint failed: unique",
	"duplicate key value",
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range uniqueViolationHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// GetIdempotency loads the record for (userID, scope, key) that is still
// valid at now. Blank scopes or keys never match.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(scope) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	rec := new(domain.Idempotency)
	q := db.WithContext(ctx).
		Where(map[string]any{"user_id": userID, "scope": scope, "key": key}).
		Where("expires_at > ?", now.UTC())
	switch err := q.Take(rec).Error; {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}
	return rec, nil
}

// CreateIdempotency stores messageID under (userID, scope, key) for ttl.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key, messageID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	created := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		UserID:    userID,
		Scope:     scope,
		Key:       key,
		MessageID: messageID,
		Status:    status,
		CreatedAt: created,
		ExpiresAt: created.Add(ttl),
	}
	err := db.WithContext(ctx).Create(rec).Error
	if err == nil {
		return rec, nil
	}
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	return nil, err
}

// PurgeExpiredIdempotency removes records whose expiry is not after now.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Delete(&domain.Idempotency{}, "expires_at <= ?", now.UTC())
	return res.RowsAffected, res.Error
}
