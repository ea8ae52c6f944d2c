// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for UserProfile.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/doktorai-backend/internal/domain"
)

// GetUserProfile fetches a profile by identity id, or ErrNotFound.
func GetUserProfile(ctx context.Context, db *gorm.DB, id string) (*domain.UserProfile, error) {
	var u domain.UserProfile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUserProfile inserts a profile with the given language. Email is
// lower-cased. An existing row with the same id is left untouched and
// returned, so concurrent fallback creations converge.
func CreateUserProfile(ctx context.Context, db *gorm.DB, id, email string, lang domain.Language) (*domain.UserProfile, error) {
	now := time.Now().UTC()
	u := &domain.UserProfile{
		ID:                 id,
		Email:              domain.NormalizeEmail(email),
		LanguagePreference: lang.OrDefault(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(u).Error
	if err != nil {
		return nil, err
	}
	return GetUserProfile(ctx, db, id)
}

// UpdateUserLanguage persists language_preference and updated_at.
// A missing profile yields ErrNotFound.
func UpdateUserLanguage(ctx context.Context, db *gorm.DB, id string, lang domain.Language) error {
	res := db.WithContext(ctx).
		Model(&domain.UserProfile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"language_preference": lang,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
