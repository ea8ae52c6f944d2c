package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/doktorai-backend/internal/domain"
	"github.com/tbourn/doktorai-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// safeBuffer lets the orchestrator log from several goroutines.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogs() (*safeBuffer, zerolog.Logger) {
	b := &safeBuffer{}
	return b, zerolog.New(b)
}

// ----- fakes -----

type fakeIdentity struct {
	user *domain.UserProfile
	lang domain.Language
}

func (f *fakeIdentity) CurrentUser() (*domain.UserProfile, bool) { return f.user, f.user != nil }
func (f *fakeIdentity) Language() domain.Language                { return f.lang }

func signedIn(id string, lang domain.Language) *fakeIdentity {
	return &fakeIdentity{user: &domain.UserProfile{ID: id, Email: id + "@example.com", LanguagePreference: lang}, lang: lang}
}

type fakeResponder struct {
	mu         sync.Mutex
	reply      string
	err        error
	textCalls  int
	imageCalls int
	lastText   string
	lastImage  string
	lastLang   domain.Language
	hook       func(ctx context.Context)
}

func (f *fakeResponder) RespondToText(ctx context.Context, text string, lang domain.Language) (string, error) {
	if f.hook != nil {
		f.hook(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textCalls++
	f.lastText, f.lastLang = text, lang
	return f.reply, f.err
}

func (f *fakeResponder) RespondToImage(ctx context.Context, img, question string, lang domain.Language) (string, error) {
	if f.hook != nil {
		f.hook(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageCalls++
	f.lastImage, f.lastText, f.lastLang = img, question, lang
	return f.reply, f.err
}

func (f *fakeResponder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.textCalls + f.imageCalls
}

type fakeSynth struct {
	ref   string
	err   error
	calls int
}

func (f *fakeSynth) Synthesize(context.Context, string, domain.Language) (string, error) {
	f.calls++
	return f.ref, f.err
}

type fakeImages struct {
	data []byte
	err  error
	refs []string
}

func (f *fakeImages) Fetch(_ context.Context, ref string) ([]byte, error) {
	f.refs = append(f.refs, ref)
	return f.data, f.err
}

type fakePlayer struct {
	played []string
	err    error
}

func (f *fakePlayer) Play(_ context.Context, ref string) error {
	f.played = append(f.played, ref)
	return f.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) Publish(_ context.Context, userID, event string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, userID+":"+event)
	return nil
}

// flakyStore wraps the real store and injects failures.
type flakyStore struct {
	*repo.Store
	sessionsErr  error
	createErr    error
	messagesErr  error
	failAddRole  domain.Role
	addCalls     int
	addedContent []string
}

var errStore = errors.New("store unavailable")

func (s *flakyStore) GetSessions(ctx context.Context, userID string) ([]domain.ChatSession, error) {
	if s.sessionsErr != nil {
		return nil, s.sessionsErr
	}
	return s.Store.GetSessions(ctx, userID)
}

func (s *flakyStore) CreateSession(ctx context.Context, userID, title string) (*domain.ChatSession, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.Store.CreateSession(ctx, userID, title)
}

func (s *flakyStore) GetMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	if s.messagesErr != nil {
		return nil, s.messagesErr
	}
	return s.Store.GetMessages(ctx, sessionID)
}

func (s *flakyStore) AddMessage(ctx context.Context, sessionID string, m domain.NewMessage) (*domain.ChatMessage, error) {
	s.addCalls++
	if s.failAddRole != "" && m.Role == s.failAddRole {
		return nil, errStore
	}
	s.addedContent = append(s.addedContent, string(m.Role)+":"+m.Content)
	return s.Store.AddMessage(ctx, sessionID, m)
}

type harness struct {
	db        *gorm.DB
	store     *flakyStore
	identity  *fakeIdentity
	responder *fakeResponder
	synth     *fakeSynth
	images    *fakeImages
	player    *fakePlayer
	publisher *fakePublisher
	logs      *safeBuffer
	orch      *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := newTestDB(t)
	logs, log := captureLogs()
	h := &harness{
		db:        db,
		store:     &flakyStore{Store: repo.NewStore(db)},
		identity:  signedIn("u1", domain.LanguageTR),
		responder: &fakeResponder{reply: "Papatya çayı rahatlatıcıdır."},
		synth:     &fakeSynth{ref: "/api/v1/media/audio/a.mp3"},
		images:    &fakeImages{data: []byte{0xff, 0xd8, 0xff}},
		player:    &fakePlayer{},
		publisher: &fakePublisher{},
		logs:      logs,
	}
	h.orch = NewOrchestrator(Deps{
		Identity:    h.identity,
		Store:       h.store,
		Responder:   h.responder,
		Synthesizer: h.synth,
		Images:      h.images,
		Player:      h.player,
		Publisher:   h.publisher,
		Log:         log,
	})
	return h
}

func (h *harness) storedMessages(t *testing.T) []domain.ChatMessage {
	t.Helper()
	var out []domain.ChatMessage
	if err := h.db.Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		t.Fatalf("list messages: %v", err)
	}
	return out
}
