// Command api runs the DoktorAi HTTP backend.
//
// @title                       DoktorAi API
// @version                     1.0
// @description                 Herbal wellness chat: sessions, messages with spoken replies, image questions and premium plans.
// @BasePath                    /api/v1
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	_ "github.com/tbourn/doktorai-backend/docs"
	"github.com/tbourn/doktorai-backend/internal/config"
	"github.com/tbourn/doktorai-backend/internal/domain"
	"github.com/tbourn/doktorai-backend/internal/events"
	"github.com/tbourn/doktorai-backend/internal/generative"
	httpapi "github.com/tbourn/doktorai-backend/internal/http"
	"github.com/tbourn/doktorai-backend/internal/http/handlers"
	"github.com/tbourn/doktorai-backend/internal/identity"
	"github.com/tbourn/doktorai-backend/internal/jobs"
	"github.com/tbourn/doktorai-backend/internal/media"
	"github.com/tbourn/doktorai-backend/internal/observability"
	"github.com/tbourn/doktorai-backend/internal/repo"
	"github.com/tbourn/doktorai-backend/internal/services"
	"github.com/tbourn/doktorai-backend/internal/speech"
	"github.com/tbourn/doktorai-backend/internal/sysutil"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, nil)
	gin.SetMode(cfg.GinMode)
	if cfg.Auth.HeaderMode() {
		logger.Warn().Str("gin_mode", cfg.GinMode).Msg("auth in header mode: X-User-ID is trusted without verification")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, version)
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
		shutdownTracing = func(context.Context) error { return nil }
	}

	db, err := repo.Open(cfg.DB)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open database")
	}

	store, err := media.NewStore(cfg.Media.Dir, cfg.Media.BaseURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open media store")
	}

	responder, err := generative.New(ctx, generative.Config{
		APIKey:  cfg.Providers.GeminiAPIKey,
		Model:   cfg.Providers.GeminiModel,
		BaseURL: cfg.Providers.GeminiBaseURL,
		Timeout: cfg.Providers.Timeout,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create generative client")
	}
	synth := speech.New(speech.Config{
		APIKey:  cfg.Providers.ElevenLabsAPIKey,
		BaseURL: cfg.Providers.ElevenLabsBaseURL,
		Timeout: cfg.Providers.Timeout,
	}, store, logger)
	auth := identity.NewProvider(cfg.Auth.URL, cfg.Auth.AnonKey, cfg.Providers.Timeout, nil)

	var publisher events.Publisher = events.Noop{}
	if cfg.NATSURL != "" {
		np, err := events.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("event publishing disabled")
		} else {
			publisher = np
			defer np.Close()
		}
	}

	lang, _ := domain.ParseLanguage(cfg.DefaultLanguage)
	registry := services.NewRegistry(services.RegistryDeps{
		Store:           repo.NewStore(db),
		Responder:       responder,
		Synthesizer:     synth,
		Images:          store,
		Publisher:       publisher,
		DefaultLanguage: lang.OrDefault(),
		Log:             logger,
	})
	replays := services.NewReplayService(db, cfg.IdempotencyTTL)

	janitor := jobs.NewJanitor(db, store, cfg.Media.TTL, logger).
		EvictIdleClients(registry, cfg.ClientIdleTTL)
	if err := janitor.Start(cfg.JanitorInterval); err != nil {
		logger.Fatal().Err(err).Msg("start janitor")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, handlers.Deps{
		Auth:           auth,
		Clients:        registry,
		History:        services.NewHistoryService(db),
		Replays:        replays,
		Media:          store,
		Premium:        services.NewPremiumService(),
		MaxUploadBytes: cfg.Media.MaxUploadBytes,
	}, replays.Exists, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := janitor.Stop(); err != nil {
		logger.Warn().Err(err).Msg("stop janitor")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("flush traces")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info().Msg("server stopped")
}
