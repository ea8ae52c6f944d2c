// Package domain defines the persistence models for user profiles, chat
// sessions, and chat messages. These types are mapped with GORM and form the
// core data layer of the DoktorAi backend. JSON names follow the column names
// the mobile client already consumes.
package domain

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Language is a supported conversation language.
type Language string

const (
	LanguageTR Language = "tr"
	LanguageEN Language = "en"
)

// DefaultLanguage is used for new profiles and unknown preferences.
const DefaultLanguage = LanguageTR

// ParseLanguage maps a case-insensitive code ("tr", "EN") to a Language.
func ParseLanguage(s string) (Language, bool) {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case LanguageTR:
		return LanguageTR, true
	case LanguageEN:
		return LanguageEN, true
	}
	return "", false
}

// OrDefault returns l when it is supported and DefaultLanguage otherwise.
func (l Language) OrDefault() Language {
	if v, ok := ParseLanguage(string(l)); ok {
		return v
	}
	return DefaultLanguage
}

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// InputKind records how a user turn was produced.
type InputKind string

const (
	InputText  InputKind = "text"
	InputVoice InputKind = "voice"
	InputImage InputKind = "image"
)

// Valid reports whether k is one of the known input kinds.
func (k InputKind) Valid() bool {
	switch k {
	case InputText, InputVoice, InputImage:
		return true
	}
	return false
}

// DefaultSessionTitle is the title given to sessions created implicitly by a send.
const DefaultSessionTitle = "New Chat"

// UserProfile is the application-side record of an identity-provider user.
//
// Fields:
//   - ID: opaque identifier assigned by the identity provider.
//   - Email: unique, stored lower-cased.
//   - LanguagePreference: "tr" or "en".
//   - IsPremium / PremiumExpiresAt: subscription flags (read-only here).
type UserProfile struct {
	ID                 string     `json:"id"                           gorm:"type:varchar(64);primaryKey"`
	Email              string     `json:"email"                        gorm:"type:varchar(320);not null;uniqueIndex"`
	LanguagePreference Language   `json:"language_preference"          gorm:"type:varchar(2);not null;default:'tr';check:language_preference IN ('tr','en')"`
	IsPremium          bool       `json:"is_premium"                   gorm:"not null;default:false"`
	PremiumExpiresAt   *time.Time `json:"premium_expires_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName returns the database table name for UserProfile.
func (UserProfile) TableName() string { return "users" }

// PremiumActive reports whether the premium flag is set and not expired at now.
func (u UserProfile) PremiumActive(now time.Time) bool {
	if !u.IsPremium {
		return false
	}
	return u.PremiumExpiresAt == nil || u.PremiumExpiresAt.After(now)
}

// ChatSession is a titled conversation owned by exactly one user. Messages
// are ordered by creation time; they are loaded eagerly only by queries that
// ask for them.
type ChatSession struct {
	ID        string        `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string        `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_sessions,priority:1"`
	Title     string        `json:"title"      gorm:"type:varchar(255);not null;default:'New Chat'"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" gorm:"index:idx_user_sessions,priority:2"`
	Messages  []ChatMessage `json:"messages"   gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// ChatMessage is a single immutable turn within a session. For assistant
// turns UserID is the user who triggered the reply.
type ChatMessage struct {
	ID        string    `json:"id"                  gorm:"type:char(36);primaryKey"`
	SessionID string    `json:"session_id"          gorm:"type:char(36);not null;index:idx_session_msgs,priority:1"`
	UserID    string    `json:"user_id"             gorm:"type:varchar(64);not null"`
	Content   string    `json:"content"             gorm:"type:text;not null"`
	Role      Role      `json:"type"                gorm:"column:type;type:varchar(16);not null;check:type IN ('user','assistant')"`
	InputType InputKind `json:"input_type"          gorm:"type:varchar(8);not null;check:input_type IN ('text','voice','image')"`
	ImageURL  *string   `json:"image_url,omitempty" gorm:"type:text"`
	AudioURL  *string   `json:"audio_url,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"          gorm:"index:idx_session_msgs,priority:2"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }

// NewMessage is a message before the store assigns its ID and timestamp.
type NewMessage struct {
	UserID    string    `validate:"required,max=64"`
	Content   string    `validate:"max=20000"`
	Role      Role      `validate:"oneof=user assistant"`
	InputType InputKind `validate:"oneof=text voice image"`
	ImageURL  *string
	AudioURL  *string
}

// NormalizeEmail trims and lower-cases an address using Unicode-aware
// case mapping, so "Ayşe@X.com" and "ayşe@x.com" collide.
func NormalizeEmail(email string) string {
	// Casers are stateful; build one per call.
	return cases.Lower(language.Und).String(strings.TrimSpace(email))
}

// StringPtr returns nil for an empty string and &s otherwise. Optional
// references are stored as NULL rather than "".
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
