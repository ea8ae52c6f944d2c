// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header on retried sends. A valid key
// is stashed in the request context; when the lookup reports a stored result
// for (user, scope, key) the request is marked as a replay and the handler
// answers from the stored record instead of running the pipeline again.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set to "true" on responses served from a stored result.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether a stored result exists for this request's key.
func IsReplay(c *gin.Context) bool { return c.GetBool(ctxKeyIdemReplay) }

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// Scope namespaces keys per endpoint, e.g. "messages".
	Scope string
	// MaxLen caps the key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Nil uses ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether an unexpired result is stored for
// (userID, scope, key) at now. Errors are treated as a miss.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error)

// IdempotencyValidator checks the Idempotency-Key header and marks replays.
//
// Behavior:
//   - No header: the request passes through untouched
//   - Longer than MaxLen (default 200) or not matching Pattern (default
//     URL-safe token characters): 400 bad_idempotency_key
//   - Valid key: stored for GetIdempotencyKey; lookup (when non-nil) is asked
//     whether (caller, Scope, key) already has an unexpired result, and a hit
//     sets IsReplay
//   - A failing lookup is logged and the request continues as a first attempt
//
// It must run after Auth so the lookup sees the caller.
//
// Usage:
//
//	authed.POST("/messages",
//	    middleware.IdempotencyValidator(middleware.IdempotencyOptions{Scope: "messages"}, replays.Exists),
//	    h.SendMessage)
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if uid := UserID(c); lookup != nil && uid != "" {
			exists, err := lookup(c.Request.Context(), uid, opts.Scope, key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			if exists {
				c.Set(ctxKeyIdemReplay, true)
			}
		}
		c.Next()
	}
}
