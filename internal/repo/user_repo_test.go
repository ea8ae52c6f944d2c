package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/doktorai-backend/internal/domain"
)

func TestCreateUserProfile_NormalizesAndIsIdempotent(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()

	u, err := CreateUserProfile(ctx, db, "u1", "  Ayse@Example.COM ", "")
	if err != nil {
		t.Fatalf("CreateUserProfile: %v", err)
	}
	if u.Email != "ayse@example.com" || u.LanguagePreference != domain.LanguageTR || u.IsPremium {
		t.Fatalf("unexpected profile: %+v", u)
	}

	// Second creation keeps the original row.
	again, err := CreateUserProfile(ctx, db, "u1", "other@example.com", domain.LanguageEN)
	if err != nil {
		t.Fatalf("second CreateUserProfile: %v", err)
	}
	if again.Email != "ayse@example.com" || again.LanguagePreference != domain.LanguageTR {
		t.Fatalf("existing profile was overwritten: %+v", again)
	}
}

func TestGetUserProfile_NotFound(t *testing.T) {
	db := newTestDB(t, allModels()...)
	if _, err := GetUserProfile(context.Background(), db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateUserLanguage(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	u, _ := CreateUserProfile(ctx, db, "u1", "a@b.c", domain.LanguageTR)

	if err := UpdateUserLanguage(ctx, db, "u1", domain.LanguageEN); err != nil {
		t.Fatalf("UpdateUserLanguage: %v", err)
	}
	got, _ := GetUserProfile(ctx, db, "u1")
	if got.LanguagePreference != domain.LanguageEN {
		t.Fatalf("language = %q", got.LanguagePreference)
	}
	if got.UpdatedAt.Before(u.UpdatedAt) {
		t.Fatalf("updated_at went backwards")
	}
	if err := UpdateUserLanguage(ctx, db, "ghost", domain.LanguageEN); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
