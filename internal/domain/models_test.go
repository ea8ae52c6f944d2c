package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(UserProfile{}).TableName(): "users",
		(ChatSession{}).TableName(): "chat_sessions",
		(ChatMessage{}).TableName(): "chat_messages",
		(Idempotency{}).TableName(): "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestParseLanguage(t *testing.T) {
	cases := []struct {
		in   string
		want Language
		ok   bool
	}{
		{"tr", LanguageTR, true},
		{" EN ", LanguageEN, true},
		{"de", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseLanguage(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseLanguage(%q) = (%q,%v); want (%q,%v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
	if Language("xx").OrDefault() != LanguageTR {
		t.Fatalf("unknown language should default to tr")
	}
	if LanguageEN.OrDefault() != LanguageEN {
		t.Fatalf("en should stay en")
	}
}

func TestInputKindValid(t *testing.T) {
	for _, k := range []InputKind{InputText, InputVoice, InputImage} {
		if !k.Valid() {
			t.Fatalf("%q should be valid", k)
		}
	}
	if InputKind("video").Valid() {
		t.Fatalf("video should be invalid")
	}
}

func TestPremiumActive(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if (UserProfile{}).PremiumActive(now) {
		t.Fatalf("non-premium profile reported active")
	}
	if !(UserProfile{IsPremium: true}).PremiumActive(now) {
		t.Fatalf("premium without expiry should be active")
	}
	if (UserProfile{IsPremium: true, PremiumExpiresAt: &past}).PremiumActive(now) {
		t.Fatalf("expired premium reported active")
	}
	if !(UserProfile{IsPremium: true, PremiumExpiresAt: &future}).PremiumActive(now) {
		t.Fatalf("unexpired premium reported inactive")
	}
}

func TestStringPtr(t *testing.T) {
	if StringPtr("") != nil {
		t.Fatalf("empty string should map to nil")
	}
	if p := StringPtr("x"); p == nil || *p != "x" {
		t.Fatalf("StringPtr(x) = %v", p)
	}
}

func TestMigrations_Indexes_Checks_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&UserProfile{}, &ChatSession{}, &ChatMessage{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&UserProfile{}, &ChatSession{}, &ChatMessage{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&ChatSession{}, "idx_user_sessions") {
		t.Fatalf("expected index idx_user_sessions on chat_sessions")
	}
	if !m.HasIndex(&ChatMessage{}, "idx_session_msgs") {
		t.Fatalf("expected index idx_session_msgs on chat_messages")
	}

	now := time.Now().UTC()
	s := &ChatSession{ID: "s1", UserID: "u1", Title: DefaultSessionTitle, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("insert session: %v", err)
	}

	m1 := &ChatMessage{ID: "m1", SessionID: "s1", UserID: "u1", Content: "merhaba", Role: RoleUser, InputType: InputText, CreatedAt: now}
	m2 := &ChatMessage{ID: "m2", SessionID: "s1", UserID: "u1", Content: "selam", Role: RoleAssistant, InputType: InputText, CreatedAt: now.Add(time.Second)}
	if err := db.Create(m1).Error; err != nil {
		t.Fatalf("insert m1: %v", err)
	}
	if err := db.Create(m2).Error; err != nil {
		t.Fatalf("insert m2: %v", err)
	}

	// Role column is constrained to user/assistant.
	bad := &ChatMessage{ID: "m3", SessionID: "s1", UserID: "u1", Content: "x", Role: "system", InputType: InputText, CreatedAt: now}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected CHECK violation for role=system")
	}

	// CASCADE: deleting the session removes its messages.
	if err := db.Delete(&ChatSession{}, "id = ?", "s1").Error; err != nil {
		t.Fatalf("delete session: %v", err)
	}
	var cnt int64
	if err := db.Model(&ChatMessage{}).Where("session_id = ?", "s1").Count(&cnt).Error; err != nil {
		t.Fatalf("count messages after session delete: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected messages to cascade-delete when session deleted, got count=%d", cnt)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Ayse@Example.COM "); got != "ayse@example.com" {
		t.Fatalf("NormalizeEmail = %q", got)
	}
}
