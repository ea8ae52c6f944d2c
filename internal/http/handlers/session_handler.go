// Session HTTP handlers.
//
// This file exposes the conversation list of the caller:
//   - GET  /sessions                (load and list sessions, ETag support)
//   - POST /sessions                (create and select a new session)
//   - POST /sessions/{id}/select    (select a session and load its messages)
//   - GET  /sessions/current        (current session and in-flight flag)
//   - GET  /sessions/{id}/messages  (paged history, ETag support)
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/doktorai-backend/internal/domain"
	"github.com/tbourn/doktorai-backend/internal/services"
)

//
// DTOs
//

// CreateSessionRequest optionally names the new session.
type CreateSessionRequest struct {
	Title string `json:"title" binding:"max=255" example:"Uyku için bitki çayları"`
}

// ListSessionsResponse lists the caller's sessions, newest activity first.
type ListSessionsResponse struct {
	Sessions         []domain.ChatSession `json:"sessions"`
	CurrentSessionID string               `json:"current_session_id,omitempty"`
}

// CurrentSessionResponse is the orchestrator's current view.
type CurrentSessionResponse struct {
	Session *domain.ChatSession `json:"session"`
	Loading bool                `json:"loading"`
}

// ListMessagesResponse contains one page of a session's messages.
type ListMessagesResponse struct {
	Messages   []domain.ChatMessage `json:"messages"`
	Pagination Pagination           `json:"pagination"`
}

//
// Handlers
//

// ListSessions godoc
// @ID          listSessions
// @Summary     List chat sessions
// @Description Reloads the caller's sessions from storage. Supports conditional requests via If-None-Match.
// @Tags        Sessions
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"sessions:u1:3:1700000000\")
// @Success     200  {object} handlers.ListSessionsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Router      /sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	uid := caller(c).ID
	cl := h.client(c)

	var currentID string
	if cur := cl.Chat.Snapshot().Current; cur != nil {
		currentID = cur.ID
	}
	if n, last, err := h.history.SessionsVersion(ctx, uid); err == nil {
		if notModified(c, weakETag("sessions:"+uid+":"+currentID, n, last)) {
			return
		}
	}

	cl.Chat.LoadSessions(ctx, uid)
	ok(c, http.StatusOK, ListSessionsResponse{
		Sessions:         cl.Chat.Snapshot().Sessions,
		CurrentSessionID: currentID,
	})
}

// CreateSession godoc
// @ID          createSession
// @Summary     Start a new chat session
// @Description Creates a session, puts it first in the list and makes it current. The body is optional.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateSessionRequest  false  "Optional title"
// @Success     201   {object}  domain.ChatSession
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     500   {object}  handlers.ErrorResponse "Create failed"
// @Router      /sessions [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title must be at most 255 characters")
		return
	}
	title := services.NormalizeTitle(req.Title)
	if title == "" {
		title = domain.DefaultSessionTitle
	}

	s, err := h.client(c).Chat.CreateSession(c.Request.Context(), caller(c).ID, title)
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not create chat session")
		return
	}
	ok(c, http.StatusCreated, s)
}

// SelectSession godoc
// @ID          selectSession
// @Summary     Select a chat session
// @Description Loads the session's messages and makes it the target of subsequent sends.
// @Tags        Sessions
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Session ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.ChatSession
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse "Messages could not be loaded"
// @Router      /sessions/{id}/select [post]
func (h *Handlers) SelectSession(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}
	ctx := c.Request.Context()
	s, err := h.history.GetSession(ctx, caller(c).ID, id)
	if err != nil {
		failSend(c, err)
		return
	}

	cl := h.client(c)
	if !cl.Chat.SelectSession(ctx, *s) {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not load session messages")
		return
	}
	snap := cl.Chat.Snapshot()
	ok(c, http.StatusOK, snap.Current)
}

// CurrentSession godoc
// @ID          currentSession
// @Summary     Current session
// @Description Returns the selected session with its messages and whether a send is in flight.
// @Tags        Sessions
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object} handlers.CurrentSessionResponse
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Router      /sessions/current [get]
func (h *Handlers) CurrentSession(c *gin.Context) {
	snap := h.client(c).Chat.Snapshot()
	ok(c, http.StatusOK, CurrentSessionResponse{Session: snap.Current, Loading: snap.Loading})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a session
// @Description Returns one page of the session's messages in creation order.
// @Tags        Sessions
// @Produce     json
// @Security    BearerAuth
// @Param       id             path    string  true  "Session ID (UUID)"  format(uuid)
// @Param       page           query   int     false "Page number"        minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"     minimum(1) maximum(200) default(50)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Success     200  {object} handlers.ListMessagesResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}
	uid := caller(c).ID
	if _, err := h.history.GetSession(ctx, uid, id); err != nil {
		failSend(c, err)
		return
	}

	page, pageSize := parsePage(c)
	if n, last, err := h.history.MessagesVersion(ctx, id); err == nil {
		tag := "messages:" + id + ":" + strconv.Itoa(page) + ":" + strconv.Itoa(pageSize)
		if notModified(c, weakETag(tag, n, last)) {
			return
		}
	}

	items, total, err := h.history.MessagesPage(ctx, uid, id, page, pageSize)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			failSend(c, err)
			return
		}
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list messages")
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: items, Pagination: newPagination(page, pageSize, total)})
}
