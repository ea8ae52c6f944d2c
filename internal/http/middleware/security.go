// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, the response hardening for a JSON API
// that sits behind a reverse proxy and also serves stored audio and images.
//
// Design notes:
//   - No Content-Security-Policy: the API never serves HTML
//   - HSTS is opt-in and only sent when the request arrived over HTTPS
//     (directly or per X-Forwarded-Proto)
//   - Browser clients need to read X-Request-ID, Idempotency-Replayed and
//     ETag, so they are appended to Access-Control-Expose-Headers
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
//
// EnableHSTS emits Strict-Transport-Security on HTTPS requests. Turn it on
// only when every hop, including proxy to app, is TLS.
//
// HSTSMaxAge is the HSTS lifetime; zero or negative means 180 days.
//
// NoStore marks every response as uncacheable. Leave it off when the same
// engine serves media, which sets its own Cache-Control.
//
// EnablePolicy adds Permissions-Policy and X-Permitted-Cross-Domain-Policies.
// They only matter to browsers.
type SecurityOptions struct {
	EnableHSTS   bool          // only when traffic is HTTPS end-to-end
	HSTSMaxAge   time.Duration // <= 0 means 180 days
	NoStore      bool          // Cache-Control: no-store, plus legacy Pragma/Expires
	EnablePolicy bool          // Permissions-Policy and X-Permitted-Cross-Domain-Policies
}

// exposedHeaders are response headers browser clients need to read.
var exposedHeaders = []string{requestIDHeader, HeaderIdempotencyReplayed, "ETag"}

// SecurityHeaders returns middleware that sets hardening headers before the
// handler runs.
//
// Behavior:
//   - Always: X-Content-Type-Options: nosniff, X-Frame-Options: DENY,
//     Referrer-Policy: no-referrer
//   - EnablePolicy: Permissions-Policy denying geolocation, microphone,
//     camera and payment; X-Permitted-Cross-Domain-Policies: none
//   - NoStore: Cache-Control: no-store, Pragma: no-cache, Expires: 0
//   - EnableHSTS on HTTPS: max-age in seconds, includeSubDomains, preload
//   - exposedHeaders are merged into Access-Control-Expose-Headers; values
//     already set by CORS are kept
//
// Usage:
//
//	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
//	    EnableHSTS:   cfg.Security.EnableHSTS,
//	    HSTSMaxAge:   cfg.Security.HSTSMaxAge,
//	    EnablePolicy: true,
//	}))
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = 180 * 24 * time.Hour
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		const expose = "Access-Control-Expose-Headers"
		cur := h.Get(expose)
		for _, name := range exposedHeaders {
			if !strings.Contains(cur, name) {
				if cur == "" {
					cur = name
				} else {
					cur += ", " + name
				}
			}
		}
		h.Set(expose, cur)

		c.Next()
	}
}

// isHTTPS reports TLS on the connection or X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
