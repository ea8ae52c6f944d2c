// Package handlers implements the REST endpoints of the DoktorAi API.
//
// Handlers are transport-thin: they validate input, resolve the caller's
// per-user client, delegate to application services, and translate results
// into HTTP responses (including conditional and replayed responses).
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/doktorai-backend/internal/domain"
	"github.com/tbourn/doktorai-backend/internal/http/middleware"
	"github.com/tbourn/doktorai-backend/internal/identity"
	"github.com/tbourn/doktorai-backend/internal/media"
	"github.com/tbourn/doktorai-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// Authenticator is the remote identity service.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (*identity.Session, error)
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
	VerifyEmail(ctx context.Context, email, code string) (*identity.Session, error)
	ResendVerification(ctx context.Context, email string) error
	SignOut(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (*identity.Session, error)
}

// Clients hands out the per-user auth state and orchestrator.
type Clients interface {
	SignIn(ctx context.Context, u identity.User) *services.Client
	Refresh(ctx context.Context, u identity.User) *services.Client
	For(ctx context.Context, u identity.User) *services.Client
	SignOut(ctx context.Context, userID string)
}

// History is the read side of stored conversations.
type History interface {
	GetSession(ctx context.Context, userID, id string) (*domain.ChatSession, error)
	MessagesPage(ctx context.Context, userID, sessionID string, page, pageSize int) ([]domain.ChatMessage, int64, error)
	MessagesVersion(ctx context.Context, sessionID string) (int64, *time.Time, error)
	SessionsVersion(ctx context.Context, userID string) (int64, *time.Time, error)
}

// Replays resolves and records idempotent send results.
type Replays interface {
	Find(ctx context.Context, userID, scope, key string) (*domain.ChatMessage, error)
	Remember(ctx context.Context, userID, scope, key, messageID string, status int) error
}

// MediaStore stores uploads and locates stored files.
type MediaStore interface {
	Save(ctx context.Context, kind media.Kind, data []byte, ext string) (string, error)
	Path(kind media.Kind, name string) (string, error)
	Resolve(ref string) (media.Kind, string, error)
}

// Premium serves the plan catalog.
type Premium interface {
	Catalog(lang domain.Language, profile *domain.UserProfile) services.Catalog
	Upgrade(lang domain.Language, profile *domain.UserProfile, planID string) (services.UpgradeResult, error)
}

//
// Handler wiring
//

// Deps are the collaborators of Handlers.
type Deps struct {
	Auth           Authenticator
	Clients        Clients
	History        History
	Replays        Replays
	Media          MediaStore
	Premium        Premium
	MaxUploadBytes int64
}

// Handlers groups the API endpoints.
type Handlers struct {
	auth      Authenticator
	clients   Clients
	history   History
	replays   Replays
	media     MediaStore
	premium   Premium
	maxUpload int64
	now       func() time.Time
}

// New returns Handlers bound to d. MaxUploadBytes <= 0 means 8 MiB.
func New(d Deps) *Handlers {
	maxUpload := d.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 8 << 20
	}
	return &Handlers{
		auth:      d.Auth,
		clients:   d.Clients,
		history:   d.History,
		replays:   d.Replays,
		media:     d.Media,
		premium:   d.Premium,
		maxUpload: maxUpload,
		now:       time.Now,
	}
}

// caller is the identity established by the auth middleware.
func caller(c *gin.Context) identity.User {
	return identity.User{ID: middleware.UserID(c), Email: middleware.UserEmail(c)}
}

// client returns the caller's per-user client, loading the profile on first use.
func (h *Handlers) client(c *gin.Context) *services.Client {
	return h.clients.For(c.Request.Context(), caller(c))
}

// parsePage reads page/page_size with the history defaults and caps.
func parsePage(c *gin.Context) (page, pageSize int) {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err = strconv.Atoi(c.Query("page_size"))
	if err != nil || pageSize < 1 {
		pageSize = services.DefaultPageSize
	}
	if pageSize > services.MaxPageSize {
		pageSize = services.MaxPageSize
	}
	return page, pageSize
}

// weakETag builds W/"<parts>:<count>:<unix-nanos>" from a collection version.
func weakETag(parts string, count int64, last *time.Time) string {
	var ts int64
	if last != nil {
		ts = last.UnixNano()
	}
	return fmt.Sprintf(`W/"%s:%d:%d"`, parts, count, ts)
}

// notModified sets ETag and answers 304 when If-None-Match carries it.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
