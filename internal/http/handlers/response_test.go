package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/doktorai-backend/internal/services"
)

func Test_fail_ServerErrorIsLogged(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-500")
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/boom", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodeSendFailed, "could not save message")
	})
	r.GET("/client", func(c *gin.Context) {
		fail(c, http.StatusConflict, ErrCodeBusy, "busy")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.RequestID != "rid-500" || resp.Code != ErrCodeSendFailed {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected error log, got: %s", buf.String())
	}

	buf.Reset()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/client", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("status=%d", w.Code)
	}
	if buf.Len() != 0 {
		t.Fatalf("4xx should not log, got: %s", buf.String())
	}
}

func Test_failSend_Mapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrAuthRequired, http.StatusUnauthorized, ErrCodeUnauthorized},
		{services.ErrBusy, http.StatusConflict, ErrCodeBusy},
		{services.ErrEmptyMessage, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrInvalidInput, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrSessionNotFound, http.StatusNotFound, ErrCodeNotFound},
		{fmt.Errorf("%w: disk full", services.ErrSessionCreate), http.StatusInternalServerError, ErrCodeCreateFailed},
		{fmt.Errorf("%w: disk full", services.ErrPersistence), http.StatusInternalServerError, ErrCodeSendFailed},
		{errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		r := gin.New()
		r.GET("/x", func(c *gin.Context) { failSend(c, tc.err) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		if w.Code != tc.status {
			t.Fatalf("%v: status=%d want %d", tc.err, w.Code, tc.status)
		}
		var resp ErrorResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Code != tc.code {
			t.Fatalf("%v: code=%q want %q", tc.err, resp.Code, tc.code)
		}
		if tc.status >= 500 && strings.Contains(resp.Message, "disk full") {
			t.Fatalf("internal detail leaked: %q", resp.Message)
		}
	}
}

func Test_ok_And_noContent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ok", func(c *gin.Context) { ok(c, http.StatusCreated, gin.H{"n": 1}) })
	r.DELETE("/gone", func(c *gin.Context) { noContent(c) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"n":1`) {
		t.Fatalf("ok: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/gone", nil))
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("noContent: %d %q", w.Code, w.Body.String())
	}
}

func Test_newPagination(t *testing.T) {
	p := newPagination(2, 50, 101)
	if p.TotalPages != 3 || !p.HasNext {
		t.Fatalf("unexpected: %+v", p)
	}
	p = newPagination(3, 50, 101)
	if p.HasNext {
		t.Fatalf("last page should not have next: %+v", p)
	}
	p = newPagination(1, 50, 0)
	if p.TotalPages != 0 || p.HasNext {
		t.Fatalf("empty: %+v", p)
	}
}

func Test_weakETag_And_notModified(t *testing.T) {
	ts := time.Unix(1700000000, 5)
	tag := weakETag("messages:s1:1:50", 3, &ts)
	if tag != `W/"messages:s1:1:50:3:1700000000000000005"` {
		t.Fatalf("tag=%s", tag)
	}
	if weakETag("x", 0, nil) != `W/"x:0:0"` {
		t.Fatalf("nil time tag=%s", weakETag("x", 0, nil))
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/v", func(c *gin.Context) {
		if notModified(c, tag) {
			return
		}
		ok(c, http.StatusOK, gin.H{"fresh": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v", nil)
	req.Header.Set("If-None-Match", tag)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified || w.Header().Get("ETag") != tag {
		t.Fatalf("want 304 with ETag, got %d %q", w.Code, w.Header().Get("ETag"))
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
}
