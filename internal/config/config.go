// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, identity and AI provider credentials, media storage,
// messaging and observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "doktorai-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and locates the relational store.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH (sqlite)
	URL    string // DATABASE_URL (postgres)
}

// AuthConfig points at the GoTrue-compatible identity service.
type AuthConfig struct {
	URL       string // AUTH_URL, e.g. https://<project>.supabase.co/auth/v1
	AnonKey   string // AUTH_ANON_KEY
	JWTSecret string // AUTH_JWT_SECRET; verifies bearer tokens in jwt mode
	// Mode is AUTH_MODE: "jwt" or "header". Header mode trusts X-User-ID and
	// must be requested explicitly in release builds.
	Mode string
}

// Auth modes.
const (
	AuthModeJWT    = "jwt"
	AuthModeHeader = "header"
)

// HeaderMode reports whether callers are identified by the X-User-ID header.
func (a AuthConfig) HeaderMode() bool { return a.Mode == AuthModeHeader }

// ProviderConfig carries the generative and speech provider settings.
type ProviderConfig struct {
	GeminiAPIKey      string        // GEMINI_API_KEY
	GeminiModel       string        // GEMINI_MODEL
	GeminiBaseURL     string        // GEMINI_BASE_URL (optional override)
	ElevenLabsAPIKey  string        // ELEVENLABS_API_KEY
	ElevenLabsBaseURL string        // ELEVENLABS_BASE_URL
	Timeout           time.Duration // PROVIDER_TIMEOUT
}

// MediaConfig defines where synthesized audio and uploaded images live.
type MediaConfig struct {
	Dir            string        // MEDIA_DIR
	BaseURL        string        // MEDIA_BASE_URL, public prefix for media refs
	TTL            time.Duration // MEDIA_TTL; 0 keeps files forever
	MaxUploadBytes int64         // MEDIA_MAX_UPLOAD_BYTES
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 90s, replies wait on two providers
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DB              DBConfig
	Auth            AuthConfig
	Providers       ProviderConfig
	Media           MediaConfig
	NATSURL         string // NATS_URL; empty disables event publishing
	DefaultLanguage string // DEFAULT_LANGUAGE: tr|en

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Maintenance
	JanitorInterval time.Duration // JANITOR_INTERVAL
	ClientIdleTTL   time.Duration // CLIENT_IDLE_TTL; 0 keeps per-user state until sign-out

	// Observability
	OTEL OTELConfig
}

// LoadDotEnv loads variables from the given .env files (default ".env") into
// the process environment. Existing variables win and missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 90*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "doktorai.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			URL:       strings.TrimRight(getenv("AUTH_URL", ""), "/"),
			AnonKey:   getenv("AUTH_ANON_KEY", ""),
			JWTSecret: getenv("AUTH_JWT_SECRET", ""),
			Mode:      strings.ToLower(strings.TrimSpace(getenv("AUTH_MODE", ""))),
		},
		Providers: ProviderConfig{
			GeminiAPIKey:      getenv("GEMINI_API_KEY", ""),
			GeminiModel:       getenv("GEMINI_MODEL", "gemini-2.0-flash"),
			GeminiBaseURL:     getenv("GEMINI_BASE_URL", ""),
			ElevenLabsAPIKey:  getenv("ELEVENLABS_API_KEY", ""),
			ElevenLabsBaseURL: strings.TrimRight(getenv("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1"), "/"),
			Timeout:           getdur("PROVIDER_TIMEOUT", 30*time.Second),
		},
		Media: MediaConfig{
			Dir:            getenv("MEDIA_DIR", "media"),
			BaseURL:        strings.TrimRight(getenv("MEDIA_BASE_URL", "/api/v1/media"), "/"),
			TTL:            getdur("MEDIA_TTL", 7*24*time.Hour),
			MaxUploadBytes: int64(getint("MEDIA_MAX_UPLOAD_BYTES", 8<<20)),
		},
		NATSURL:         getenv("NATS_URL", ""),
		DefaultLanguage: strings.ToLower(getenv("DEFAULT_LANGUAGE", "tr")),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		JanitorInterval: getdur("JANITOR_INTERVAL", time.Hour),
		ClientIdleTTL:   getdur("CLIENT_IDLE_TTL", 2*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "doktorai-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" || cfg.DB.Driver == "pgx" {
		cfg.DB.Driver = "postgres"
	}
	if cfg.Auth.Mode == "" {
		// Without a secret, only non-release builds fall back to header auth.
		cfg.Auth.Mode = AuthModeJWT
		if cfg.Auth.JWTSecret == "" && cfg.GinMode != "release" {
			cfg.Auth.Mode = AuthModeHeader
		}
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	switch cfg.DefaultLanguage {
	case "tr", "en":
	default:
		return cfg, errors.New("DEFAULT_LANGUAGE must be one of: tr, en")
	}
	if cfg.Providers.Timeout <= 0 {
		return cfg, errors.New("PROVIDER_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.Providers.GeminiModel) == "" {
		return cfg, errors.New("GEMINI_MODEL must not be empty")
	}
	if strings.TrimSpace(cfg.Media.Dir) == "" {
		return cfg, errors.New("MEDIA_DIR must not be empty")
	}
	if cfg.Media.TTL < 0 {
		return cfg, errors.New("MEDIA_TTL must be >= 0")
	}
	if cfg.Media.MaxUploadBytes <= 0 {
		return cfg, errors.New("MEDIA_MAX_UPLOAD_BYTES must be > 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.JanitorInterval <= 0 {
		return cfg, errors.New("JANITOR_INTERVAL must be > 0")
	}
	if cfg.ClientIdleTTL < 0 {
		return cfg, errors.New("CLIENT_IDLE_TTL must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	switch cfg.Auth.Mode {
	case AuthModeJWT:
		if cfg.Auth.JWTSecret == "" {
			return cfg, errors.New("AUTH_JWT_SECRET is required (set AUTH_MODE=header to trust X-User-ID instead)")
		}
	case AuthModeHeader:
	default:
		return cfg, errors.New("AUTH_MODE must be one of: jwt, header")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
