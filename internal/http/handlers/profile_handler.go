// Profile HTTP handlers.
//
//   - GET   /me           (profile, active language, premium status)
//   - PATCH /me/language  (switch and persist the conversation language)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/doktorai-backend/internal/domain"
	"github.com/tbourn/doktorai-backend/internal/services"
)

// MeResponse describes the caller.
type MeResponse struct {
	Profile   *domain.UserProfile `json:"profile"`
	Language  domain.Language     `json:"language"   example:"tr"`
	IsPremium bool                `json:"is_premium"`
}

// LanguageRequest selects the conversation language.
type LanguageRequest struct {
	Language string `json:"language" binding:"required" example:"en"`
}

func (h *Handlers) me(cl *services.Client, profile *domain.UserProfile) MeResponse {
	return MeResponse{
		Profile:   profile,
		Language:  cl.Auth.Language(),
		IsPremium: profile != nil && profile.PremiumActive(h.now()),
	}
}

// GetMe godoc
// @ID          getMe
// @Summary     Current user profile
// @Tags        Profile
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object} handlers.MeResponse
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized or profile unavailable"
// @Router      /me [get]
func (h *Handlers) GetMe(c *gin.Context) {
	cl := h.client(c)
	profile, signedIn := cl.Auth.CurrentUser()
	if !signedIn {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "profile unavailable")
		return
	}
	ok(c, http.StatusOK, h.me(cl, profile))
}

// SetLanguage godoc
// @ID          setLanguage
// @Summary     Change the conversation language
// @Description Switches replies, fallback texts and the speech voice to the given language and stores it as the user's preference.
// @Tags        Profile
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.LanguageRequest  true  "tr or en"
// @Success     200   {object}  handlers.MeResponse
// @Failure     400   {object}  handlers.ErrorResponse "Unsupported language"
// @Failure     401   {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     500   {object}  handlers.ErrorResponse "Preference not saved"
// @Router      /me/language [patch]
func (h *Handlers) SetLanguage(c *gin.Context) {
	var req LanguageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "language required")
		return
	}
	lang, valid := domain.ParseLanguage(req.Language)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "language must be one of: tr, en")
		return
	}

	cl := h.client(c)
	if _, signedIn := cl.Auth.CurrentUser(); !signedIn {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "profile unavailable")
		return
	}
	if err := cl.Auth.SetLanguage(c.Request.Context(), lang); err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, "could not save language preference")
		return
	}
	profile, _ := cl.Auth.CurrentUser()
	ok(c, http.StatusOK, h.me(cl, profile))
}
