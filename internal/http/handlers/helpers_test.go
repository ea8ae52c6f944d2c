package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/doktorai-backend/internal/domain"
	"github.com/tbourn/doktorai-backend/internal/http/middleware"
	"github.com/tbourn/doktorai-backend/internal/identity"
	"github.com/tbourn/doktorai-backend/internal/media"
	"github.com/tbourn/doktorai-backend/internal/repo"
	"github.com/tbourn/doktorai-backend/internal/services"
)

const testMediaBase = "/api/v1/media"

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

// ----- fakes -----

type stubResponder struct {
	mu         sync.Mutex
	reply      string
	err        error
	textCalls  int
	imageCalls int
}

func (s *stubResponder) RespondToText(context.Context, string, domain.Language) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.textCalls++
	return s.reply, s.err
}

func (s *stubResponder) RespondToImage(context.Context, string, string, domain.Language) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imageCalls++
	return s.reply, s.err
}

func (s *stubResponder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.textCalls + s.imageCalls
}

func (s *stubResponder) paths() (text, image int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.textCalls, s.imageCalls
}

type stubAuth struct {
	session   *identity.Session
	err       error
	signedOut []string
}

func (s *stubAuth) SignUp(context.Context, string, string) (*identity.Session, error) {
	return s.session, s.err
}
func (s *stubAuth) SignIn(context.Context, string, string) (*identity.Session, error) {
	return s.session, s.err
}
func (s *stubAuth) VerifyEmail(context.Context, string, string) (*identity.Session, error) {
	return s.session, s.err
}
func (s *stubAuth) ResendVerification(context.Context, string) error { return s.err }
func (s *stubAuth) Refresh(context.Context, string) (*identity.Session, error) {
	return s.session, s.err
}
func (s *stubAuth) SignOut(_ context.Context, tok string) error {
	s.signedOut = append(s.signedOut, tok)
	return s.err
}

// ----- app -----

type testApp struct {
	t         *testing.T
	db        *gorm.DB
	engine    *gin.Engine
	auth      *stubAuth
	responder *stubResponder
	registry  *services.Registry
	media     *media.Store
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	ms, err := media.NewStore(t.TempDir(), testMediaBase, zerolog.Nop())
	if err != nil {
		t.Fatalf("media store: %v", err)
	}
	a := &testApp{
		t:         t,
		db:        db,
		auth:      &stubAuth{},
		responder: &stubResponder{reply: "Papatya çayı deneyebilirsiniz."},
		media:     ms,
	}
	a.registry = services.NewRegistry(services.RegistryDeps{
		Store:           repo.NewStore(db),
		Responder:       a.responder,
		Images:          ms,
		DefaultLanguage: domain.LanguageTR,
		Log:             zerolog.Nop(),
	})
	replays := services.NewReplayService(db, time.Hour)

	h := New(Deps{
		Auth:           a.auth,
		Clients:        a.registry,
		History:        services.NewHistoryService(db),
		Replays:        replays,
		Media:          ms,
		Premium:        services.NewPremiumService(),
		MaxUploadBytes: 1 << 16,
	})

	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/auth/signin", h.SignIn)
	r.POST("/auth/signup", h.SignUp)
	r.POST("/auth/verify", h.VerifyEmail)
	r.POST("/auth/resend", h.ResendVerification)
	r.POST("/auth/refresh", h.Refresh)
	r.GET("/media/:kind/:name", h.ServeMedia)

	api := r.Group("/", middleware.Auth(middleware.AuthOptions{}))
	api.POST("/auth/signout", h.SignOut)
	api.GET("/me", h.GetMe)
	api.PATCH("/me/language", h.SetLanguage)
	api.GET("/sessions", h.ListSessions)
	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions/current", h.CurrentSession)
	api.POST("/sessions/:id/select", h.SelectSession)
	api.GET("/sessions/:id/messages", h.ListMessages)
	api.POST("/messages",
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{Scope: services.ScopeMessages}, replays.Exists),
		h.SendMessage)
	api.POST("/media/images", h.UploadImage)
	api.POST("/audio/play", h.PlayAudio)
	api.GET("/premium", h.GetPremium)
	api.POST("/premium/upgrade", h.UpgradePremium)

	a.engine = r
	return a
}

// do sends a JSON request as uid ("" for anonymous).
func (a *testApp) do(method, path, uid string, body any, hdr ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if uid != "" {
		req.Header.Set(middleware.HeaderUserID, uid)
		req.Header.Set(middleware.HeaderUserEmail, uid+"@example.com")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v (body=%s)", v, err, w.Body.String())
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status=%d want %d body=%s", w.Code, want, w.Body.String())
	}
}

func expectCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, w, status)
	if got := decode[ErrorResponse](t, w).Code; got != code {
		t.Fatalf("code=%q want %q", got, code)
	}
}
