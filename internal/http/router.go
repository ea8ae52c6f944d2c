// Package httpapi wires the HTTP transport (Gin) to the handlers and their
// middleware. It owns the cross-cutting concerns: tracing, correlation IDs,
// redacted access logs, panic recovery, body limits, metrics, compression,
// caller authentication, idempotency, CORS and security headers.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/doktorai-backend/internal/config"
	"github.com/tbourn/doktorai-backend/internal/http/handlers"
	"github.com/tbourn/doktorai-backend/internal/http/middleware"
	"github.com/tbourn/doktorai-backend/internal/services"
)

// defaultBodyLimit caps JSON request bodies.
const defaultBodyLimit = 1 << 20

// RegisterRoutes attaches all middleware and endpoints to r. lookup backs the
// Idempotency-Key check of POST /messages and may be nil.
//
// Middleware order matters:
//  1. OpenTelemetry
//  2. RequestID
//  3. RedactingLogger
//  4. Recovery (after the logger so panics carry the request id)
//  5. Body size limit (per route)
//  6. Metrics
//  7. Gzip (stored media is already compressed and skipped)
//  8. CORS and security headers
//
// Auth and idempotency run per group, after the global chain.
func RegisterRoutes(r *gin.Engine, deps handlers.Deps, lookup middleware.IdempotencyLookup, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-User-Email"},
	}))
	r.Use(middleware.Recovery())

	apiBase := strings.TrimRight(cfg.APIBasePath, "/")
	uploadLimit := cfg.Media.MaxUploadBytes
	if uploadLimit <= 0 {
		uploadLimit = 8 << 20
	}
	r.Use(limitBody(defaultBodyLimit, map[string]int64{
		apiBase + "/media/images": uploadLimit,
	}))

	r.Use(middleware.Metrics())
	r.GET("/metrics", middleware.MetricsHandler())

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		"/metrics",
		apiBase + "/media/",
	})))

	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderUserID, middleware.HeaderUserEmail,
		middleware.HeaderIdempotencyKey, "If-None-Match",
	}
	allowMethods := []string{"GET", "POST", "PATCH", "OPTIONS"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     allowMethods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     allowMethods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(deps)
	api := groupWithPrefix(r, apiBase)
	{
		// Account (no caller yet)
		api.POST("/auth/signup", h.SignUp)
		api.POST("/auth/signin", h.SignIn)
		api.POST("/auth/verify", h.VerifyEmail)
		api.POST("/auth/resend", h.ResendVerification)
		api.POST("/auth/refresh", h.Refresh)

		// Stored media; names are unguessable.
		api.GET("/media/:kind/:name", h.ServeMedia)
	}

	authOpts := middleware.AuthOptions{Secret: cfg.Auth.JWTSecret}
	if cfg.Auth.HeaderMode() {
		authOpts.Secret = ""
	}
	authed := api.Group("", middleware.Auth(authOpts))
	{
		authed.POST("/auth/signout", h.SignOut)

		authed.GET("/me", h.GetMe)
		authed.PATCH("/me/language", h.SetLanguage)

		authed.GET("/sessions", h.ListSessions)
		authed.POST("/sessions", h.CreateSession)
		authed.GET("/sessions/current", h.CurrentSession)
		authed.POST("/sessions/:id/select", h.SelectSession)
		authed.GET("/sessions/:id/messages", h.ListMessages)

		authed.POST("/messages",
			middleware.IdempotencyValidator(middleware.IdempotencyOptions{Scope: services.ScopeMessages}, lookup),
			h.SendMessage)

		authed.POST("/media/images", h.UploadImage)
		authed.POST("/audio/play", h.PlayAudio)

		authed.GET("/premium", h.GetPremium)
		authed.POST("/premium/upgrade", h.UpgradePremium)
	}
}

// limitBody caps request bodies at def, or at the override registered for
// the matched route. Oversized bodies fail on read.
func limitBody(def int64, perRoute map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := def
		if n, ok := perRoute[c.FullPath()]; ok {
			limit = n
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
