// Auth HTTP handlers.
//
// This file exposes the account endpoints backed by the identity service:
//   - POST /auth/signup   (register; may require email verification)
//   - POST /auth/signin   (password sign-in)
//   - POST /auth/verify   (confirm sign-up with the emailed code)
//   - POST /auth/resend   (re-send the verification code)
//   - POST /auth/refresh  (exchange a refresh token)
//   - POST /auth/signout  (revoke the session and drop per-user state)
//
// Every successful sign-in, verification and refresh (re)loads the user's
// profile so later sends run with the right language and premium flags.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/doktorai-backend/internal/domain"
	"github.com/tbourn/doktorai-backend/internal/http/middleware"
	"github.com/tbourn/doktorai-backend/internal/identity"
)

//
// DTOs
//

// CredentialsRequest is the payload of sign-up and sign-in.
type CredentialsRequest struct {
	Email    string `json:"email"    binding:"required,email,max=320" example:"ayse@example.com"`
	Password string `json:"password" binding:"required,min=6,max=72"  example:"correct-horse"`
}

// VerifyRequest confirms a sign-up with the emailed one-time code.
type VerifyRequest struct {
	Email string `json:"email" binding:"required,email,max=320" example:"ayse@example.com"`
	Code  string `json:"code"  binding:"required,min=4,max=12"  example:"123456"`
}

// ResendRequest asks for a new verification code.
type ResendRequest struct {
	Email string `json:"email" binding:"required,email,max=320" example:"ayse@example.com"`
}

// RefreshRequest exchanges a refresh token for a new session.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required" example:"v1.Mr5X..."`
}

// AuthResponse carries the session tokens and the loaded profile. When the
// account still needs email verification only VerificationRequired is set.
type AuthResponse struct {
	Session              *identity.Session   `json:"session,omitempty"`
	Profile              *domain.UserProfile `json:"profile,omitempty"`
	VerificationRequired bool                `json:"verification_required"`
}

// failAuth maps identity service errors: client errors pass through with
// the service's message, everything else is reported as unavailable.
func failAuth(c *gin.Context, err error) {
	var ae *identity.AuthError
	switch {
	case errors.Is(err, identity.ErrNotConfigured):
		fail(c, http.StatusServiceUnavailable, ErrCodeAuthUnavailable, "identity service not configured")
	case errors.As(err, &ae) && ae.Status >= 400 && ae.Status < 500:
		fail(c, ae.Status, ErrCodeAuthFailed, ae.Message)
	default:
		_ = c.Error(err)
		fail(c, http.StatusBadGateway, ErrCodeAuthUnavailable, "identity service unavailable")
	}
}

// signedIn loads per-user state for sess and writes the response.
func (h *Handlers) signedIn(c *gin.Context, status int, sess *identity.Session) {
	cl := h.clients.SignIn(c.Request.Context(), sess.User)
	profile, _ := cl.Auth.CurrentUser()
	ok(c, status, AuthResponse{Session: sess, Profile: profile})
}

//
// Handlers
//

// SignUp godoc
// @ID          signUp
// @Summary     Register with email and password
// @Description Returns 201 with a session when the account is confirmed immediately,
// @Description or 202 with verification_required when an emailed code must be entered first.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CredentialsRequest  true  "Credentials"
// @Success     201   {object}  handlers.AuthResponse
// @Success     202   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     422   {object}  handlers.ErrorResponse "Rejected by identity service"
// @Failure     502   {object}  handlers.ErrorResponse "Identity service unavailable"
// @Router      /auth/signup [post]
func (h *Handlers) SignUp(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "valid email and password (min 6 chars) required")
		return
	}
	sess, err := h.auth.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failAuth(c, err)
		return
	}
	if !sess.Confirmed() {
		ok(c, http.StatusAccepted, AuthResponse{VerificationRequired: true})
		return
	}
	h.signedIn(c, http.StatusCreated, sess)
}

// SignIn godoc
// @ID          signIn
// @Summary     Sign in with email and password
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CredentialsRequest  true  "Credentials"
// @Success     200   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse "Bad request or invalid credentials"
// @Failure     502   {object}  handlers.ErrorResponse "Identity service unavailable"
// @Router      /auth/signin [post]
func (h *Handlers) SignIn(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "valid email and password required")
		return
	}
	sess, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failAuth(c, err)
		return
	}
	h.signedIn(c, http.StatusOK, sess)
}

// VerifyEmail godoc
// @ID          verifyEmail
// @Summary     Confirm a sign-up with the emailed code
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.VerifyRequest  true  "Email and code"
// @Success     200   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     403   {object}  handlers.ErrorResponse "Code invalid or expired"
// @Failure     502   {object}  handlers.ErrorResponse "Identity service unavailable"
// @Router      /auth/verify [post]
func (h *Handlers) VerifyEmail(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and code required")
		return
	}
	sess, err := h.auth.VerifyEmail(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		failAuth(c, err)
		return
	}
	if !sess.Confirmed() {
		// Verified, but the service issued no session; the client signs in.
		ok(c, http.StatusOK, AuthResponse{})
		return
	}
	h.signedIn(c, http.StatusOK, sess)
}

// ResendVerification godoc
// @ID          resendVerification
// @Summary     Re-send the sign-up verification code
// @Tags        Auth
// @Accept      json
// @Param       body  body  handlers.ResendRequest  true  "Email"
// @Success     204   {string} string "No Content"
// @Failure     400   {object} handlers.ErrorResponse "Bad request"
// @Failure     429   {object} handlers.ErrorResponse "Sent too recently"
// @Failure     502   {object} handlers.ErrorResponse "Identity service unavailable"
// @Router      /auth/resend [post]
func (h *Handlers) ResendVerification(c *gin.Context) {
	var req ResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "valid email required")
		return
	}
	if err := h.auth.ResendVerification(c.Request.Context(), req.Email); err != nil {
		failAuth(c, err)
		return
	}
	noContent(c)
}

// Refresh godoc
// @ID          refreshSession
// @Summary     Refresh the access token
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RefreshRequest  true  "Refresh token"
// @Success     200   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse "Bad request or token revoked"
// @Failure     502   {object}  handlers.ErrorResponse "Identity service unavailable"
// @Router      /auth/refresh [post]
func (h *Handlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "refresh_token required")
		return
	}
	sess, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		failAuth(c, err)
		return
	}
	cl := h.clients.Refresh(c.Request.Context(), sess.User)
	profile, _ := cl.Auth.CurrentUser()
	ok(c, http.StatusOK, AuthResponse{Session: sess, Profile: profile})
}

// SignOut godoc
// @ID          signOut
// @Summary     Sign out
// @Description Revokes the access token (best effort) and forgets the caller's conversation state.
// @Tags        Auth
// @Security    BearerAuth
// @Success     204  {string} string "No Content"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Router      /auth/signout [post]
func (h *Handlers) SignOut(c *gin.Context) {
	ctx := c.Request.Context()
	if tok := middleware.AccessToken(c); tok != "" {
		if err := h.auth.SignOut(ctx, tok); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("remote sign-out failed")
		}
	}
	h.clients.SignOut(ctx, middleware.UserID(c))
	noContent(c)
}
