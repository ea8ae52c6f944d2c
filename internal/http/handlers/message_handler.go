// Message HTTP handlers.
//
//   - POST /messages  (send a user turn and receive the assistant reply)
//
// The reply is produced by the caller's orchestrator: the user turn is
// stored, a reply is generated (or the localized fallback is used), speech
// is synthesized when available, and the assistant turn is stored and
// returned.
//
// Idempotency:
// If the client supplies an Idempotency-Key and a previous send with the same
// key produced a reply, that stored assistant message is returned with
// `Idempotency-Replayed: true` and nothing is generated again.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/doktorai-backend/internal/domain"
	"github.com/tbourn/doktorai-backend/internal/http/middleware"
	"github.com/tbourn/doktorai-backend/internal/media"
	"github.com/tbourn/doktorai-backend/internal/services"
)

// MaxContentRunes caps a user turn. It matches the store's validation.
const MaxContentRunes = 20000

//
// DTOs
//

// SendMessageRequest is one user turn. InputType defaults to "text". Image
// turns carry the reference returned by POST /media/images and may then leave
// Content empty; an image turn without a reference is answered as text.
type SendMessageRequest struct {
	Content   string `json:"content"    example:"Uykusuzluk için hangi bitki çayı iyi gelir?"`
	InputType string `json:"input_type" example:"text" enums:"text,voice,image"`
	ImageURL  string `json:"image_url"  example:"/api/v1/media/image/5b0c2f0e-3a51-4e86-9a43-7f2f3e1c9b11.jpg"`
}

// SendMessageResponse wraps the stored assistant turn.
type SendMessageResponse struct {
	Message *domain.ChatMessage `json:"message"`
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes line endings, collapses blank-line runs and trims.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message and get the assistant reply
// @Description Appends the user turn to the current session (creating one when none is selected),
// @Description generates a reply in the user's language and returns the stored assistant turn.
// @Description Provider failures yield the localized fallback reply rather than an error.
// @Description Supports idempotency via the Idempotency-Key header (same key, same reply).
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.SendMessageRequest  true  "User turn"
// @Success     200  {object}  handlers.SendMessageResponse  "Assistant reply"
// @Header      200  {string}  Idempotency-Replayed "true when served from a previous request"
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     409  {object}  handlers.ErrorResponse "A send is already in flight"
// @Failure     500  {object}  handlers.ErrorResponse "Session could not be created or message not saved"
// @Router      /messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	kind := domain.InputKind(strings.ToLower(strings.TrimSpace(req.InputType)))
	if kind == "" {
		kind = domain.InputText
	}
	content := sanitizeContent(req.Content)
	if utf8.RuneCountInString(content) > MaxContentRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", MaxContentRunes))
		return
	}
	var imageRef string
	if kind == domain.InputImage {
		imageRef = strings.TrimSpace(req.ImageURL)
	}
	if err := services.ValidateSend(content, kind, imageRef); err != nil {
		failSend(c, err)
		return
	}
	// An image turn without a reference is answered from its text.
	if imageRef != "" {
		if k, _, err := h.media.Resolve(imageRef); err != nil || k != media.KindImage {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image_url must reference an uploaded image")
			return
		}
	}

	ctx := c.Request.Context()
	uid := caller(c).ID

	key, hasKey := middleware.GetIdempotencyKey(c)
	if hasKey && middleware.IsReplay(c) {
		prev, err := h.replays.Find(ctx, uid, services.ScopeMessages, key)
		switch {
		case err == nil:
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			ok(c, http.StatusOK, SendMessageResponse{Message: prev})
			return
		case !errors.Is(err, services.ErrNoReplay):
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency replay lookup failed")
		}
	}

	m, err := h.client(c).Chat.SendMessage(ctx, content, kind, imageRef)
	if err != nil {
		failSend(c, err)
		return
	}

	if hasKey {
		if err := h.replays.Remember(ctx, uid, services.ScopeMessages, key, m.ID, http.StatusOK); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("message_id", m.ID).Msg("idempotency record not stored")
		}
	}
	ok(c, http.StatusOK, SendMessageResponse{Message: m})
}
