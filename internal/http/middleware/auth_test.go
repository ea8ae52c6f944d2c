package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

var authNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func signToken(t *testing.T, method jwt.SigningMethod, key any, c Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, c).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func validClaims() Claims {
	return Claims{
		Email: "ayse@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(authNow.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(authNow.Add(-time.Minute)),
		},
	}
}

// authRouter echoes what Auth stored for the caller.
func authRouter(opts AuthOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Auth(opts))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"id":     UserID(c),
			"email":  UserEmail(c),
			"token":  AccessToken(c),
			"logger": LoggerFrom(c) != nil,
		})
	})
	return r
}

func doAuth(r *gin.Engine, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestAuth_HeaderMode(t *testing.T) {
	r := authRouter(AuthOptions{})

	w, body := doAuth(r, nil)
	if w.Code != http.StatusUnauthorized || body["code"] != "unauthorized" {
		t.Fatalf("missing header: %d %v", w.Code, body)
	}
	if body["request_id"] == "" || body["request_id"] == nil {
		t.Fatalf("expected request_id in envelope, got %v", body)
	}

	w, body = doAuth(r, map[string]string{HeaderUserID: "u1"})
	if w.Code != http.StatusOK || body["id"] != "u1" || body["email"] != "u1@users.local" || body["token"] != "" {
		t.Fatalf("header auth: %d %v", w.Code, body)
	}

	_, body = doAuth(r, map[string]string{HeaderUserID: "u2", HeaderUserEmail: "u2@example.com"})
	if body["email"] != "u2@example.com" {
		t.Fatalf("email header ignored: %v", body)
	}
}

func TestAuth_BearerValid(t *testing.T) {
	r := authRouter(AuthOptions{Secret: testSecret, Audience: "authenticated", Now: func() time.Time { return authNow }})
	tok := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims())

	w, body := doAuth(r, map[string]string{"Authorization": "Bearer " + tok})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if body["id"] != "user-1" || body["email"] != "ayse@example.com" || body["token"] != tok {
		t.Fatalf("claims not stored: %v", body)
	}

	// Scheme is case-insensitive.
	w, _ = doAuth(r, map[string]string{"Authorization": "bearer " + tok})
	if w.Code != http.StatusOK {
		t.Fatalf("lowercase scheme rejected: %d", w.Code)
	}
}

func TestAuth_BearerMode_IgnoresUserHeader(t *testing.T) {
	r := authRouter(AuthOptions{Secret: testSecret, Now: func() time.Time { return authNow }})
	w, _ := doAuth(r, map[string]string{HeaderUserID: "u1"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("X-User-ID must not authenticate when a secret is set; got %d", w.Code)
	}
}

func TestAuth_BearerRejected(t *testing.T) {
	now := func() time.Time { return authNow }
	opts := AuthOptions{Secret: testSecret, Audience: "authenticated", Now: now}

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(authNow.Add(-time.Second))

	noSub := validClaims()
	noSub.Subject = ""

	otherAud := validClaims()
	otherAud.Audience = jwt.ClaimStrings{"anon"}

	none := signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, validClaims())

	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Token " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims())},
		{"empty token", "Bearer   "},
		{"garbage", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other-secret"), validClaims())},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired)},
		{"no subject", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noSub)},
		{"audience", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), otherAud)},
		{"alg none", "Bearer " + none},
	}
	r := authRouter(opts)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := map[string]string{}
			if tc.header != "" {
				h["Authorization"] = tc.header
			}
			w, body := doAuth(r, h)
			if w.Code != http.StatusUnauthorized || body["code"] != "unauthorized" {
				t.Fatalf("got %d %v", w.Code, body)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	if tok, err := bearerToken("  Bearer abc  "); err != nil || tok != "abc" {
		t.Fatalf("got %q %v", tok, err)
	}
	if _, err := bearerToken("Basic abc"); err != errMissingToken {
		t.Fatalf("expected errMissingToken, got %v", err)
	}
}
