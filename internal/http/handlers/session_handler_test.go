package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/tbourn/doktorai-backend/internal/domain"
)

func TestCreateSession_DefaultsAndSelects(t *testing.T) {
	a := newTestApp(t)

	w := a.do(http.MethodPost, "/sessions", "u1", nil)
	expectStatus(t, w, http.StatusCreated)
	s := decode[domain.ChatSession](t, w)
	if s.Title != domain.DefaultSessionTitle || s.UserID != "u1" {
		t.Fatalf("session = %+v", s)
	}

	w = a.do(http.MethodPost, "/sessions", "u1", CreateSessionRequest{Title: "  Bitki   çayları "})
	expectStatus(t, w, http.StatusCreated)
	named := decode[domain.ChatSession](t, w)
	if named.Title != "Bitki çayları" {
		t.Fatalf("title = %q", named.Title)
	}

	cur := decode[CurrentSessionResponse](t, a.do(http.MethodGet, "/sessions/current", "u1", nil))
	if cur.Session == nil || cur.Session.ID != named.ID {
		t.Fatalf("newest session must be current: %+v", cur.Session)
	}

	list := decode[ListSessionsResponse](t, a.do(http.MethodGet, "/sessions", "u1", nil))
	if len(list.Sessions) != 2 || list.CurrentSessionID != named.ID {
		t.Fatalf("list = %+v", list)
	}
}

func TestListSessions_ETag(t *testing.T) {
	a := newTestApp(t)
	expectStatus(t, a.do(http.MethodPost, "/sessions", "u1", nil), http.StatusCreated)

	w := a.do(http.MethodGet, "/sessions", "u1", nil)
	expectStatus(t, w, http.StatusOK)
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}

	w = a.do(http.MethodGet, "/sessions", "u1", nil, "If-None-Match", etag)
	expectStatus(t, w, http.StatusNotModified)

	expectStatus(t, a.do(http.MethodPost, "/sessions", "u1", nil), http.StatusCreated)
	w = a.do(http.MethodGet, "/sessions", "u1", nil, "If-None-Match", etag)
	expectStatus(t, w, http.StatusOK)
}

func TestSelectSession(t *testing.T) {
	a := newTestApp(t)
	first := decode[domain.ChatSession](t, a.do(http.MethodPost, "/sessions", "u1", nil))
	expectStatus(t, a.do(http.MethodPost, "/messages", "u1", SendMessageRequest{Content: "ilk"}), http.StatusOK)
	expectStatus(t, a.do(http.MethodPost, "/sessions", "u1", nil), http.StatusCreated)

	w := a.do(http.MethodPost, "/sessions/"+first.ID+"/select", "u1", nil)
	expectStatus(t, w, http.StatusOK)
	sel := decode[domain.ChatSession](t, w)
	if sel.ID != first.ID || len(sel.Messages) != 2 {
		t.Fatalf("selected = %+v", sel)
	}

	w = a.do(http.MethodPost, "/sessions/not-a-uuid/select", "u1", nil)
	expectCode(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	w = a.do(http.MethodPost, "/sessions/"+uuid.NewString()+"/select", "u1", nil)
	expectCode(t, w, http.StatusNotFound, ErrCodeNotFound)

	// Sessions of other users are invisible.
	w = a.do(http.MethodPost, "/sessions/"+first.ID+"/select", "u2", nil)
	expectCode(t, w, http.StatusNotFound, ErrCodeNotFound)
}

func TestSelectSession_CurrentWithFailedLoad(t *testing.T) {
	a := newTestApp(t)
	expectStatus(t, a.do(http.MethodPost, "/messages", "u1", SendMessageRequest{Content: "ilk"}), http.StatusOK)
	cur := decode[CurrentSessionResponse](t, a.do(http.MethodGet, "/sessions/current", "u1", nil))

	if err := a.db.Migrator().DropTable(&domain.ChatMessage{}); err != nil {
		t.Fatalf("drop messages: %v", err)
	}
	w := a.do(http.MethodPost, "/sessions/"+cur.Session.ID+"/select", "u1", nil)
	expectCode(t, w, http.StatusInternalServerError, ErrCodeListFailed)
}

func TestListMessages_PagedWithETag(t *testing.T) {
	a := newTestApp(t)
	for i := 0; i < 3; i++ {
		w := a.do(http.MethodPost, "/messages", "u1", SendMessageRequest{Content: fmt.Sprintf("soru %d", i)})
		expectStatus(t, w, http.StatusOK)
	}
	cur := decode[CurrentSessionResponse](t, a.do(http.MethodGet, "/sessions/current", "u1", nil))
	base := "/sessions/" + cur.Session.ID + "/messages"

	w := a.do(http.MethodGet, base+"?page=2&page_size=4", "u1", nil)
	expectStatus(t, w, http.StatusOK)
	page := decode[ListMessagesResponse](t, w)
	if len(page.Messages) != 2 || page.Pagination.Total != 6 || page.Pagination.HasNext {
		t.Fatalf("page = %+v", page.Pagination)
	}
	if page.Messages[0].Content != "soru 2" {
		t.Fatalf("order: %+v", page.Messages[0])
	}

	etag := w.Header().Get("ETag")
	expectStatus(t, a.do(http.MethodGet, base+"?page=2&page_size=4", "u1", nil, "If-None-Match", etag), http.StatusNotModified)
	// A different page never matches another page's tag.
	expectStatus(t, a.do(http.MethodGet, base+"?page=1&page_size=4", "u1", nil, "If-None-Match", etag), http.StatusOK)

	w = a.do(http.MethodGet, base, "u2", nil)
	expectCode(t, w, http.StatusNotFound, ErrCodeNotFound)
}
