// Premium HTTP handlers.
//
//   - GET  /premium          (plans and feature lists in the caller's language)
//   - POST /premium/upgrade  (upgrade request; billing happens in the app stores)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/doktorai-backend/internal/domain"
	"github.com/tbourn/doktorai-backend/internal/services"
)

// UpgradeRequest picks a plan from the catalog.
type UpgradeRequest struct {
	PlanID string `json:"plan_id" binding:"required" example:"yearly" enums:"monthly,yearly"`
}

// GetPremium godoc
// @ID          getPremium
// @Summary     Premium plans
// @Description Lists the plans with prices in the currency of the language (TRY for tr, USD for en).
// @Tags        Premium
// @Produce     json
// @Security    BearerAuth
// @Param       lang  query  string  false  "Override the caller's language"  Enums(tr, en)
// @Success     200  {object}  services.Catalog
// @Failure     400  {object}  handlers.ErrorResponse "Unsupported language"
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Router      /premium [get]
func (h *Handlers) GetPremium(c *gin.Context) {
	cl := h.client(c)
	lang := cl.Auth.Language()
	if q := c.Query("lang"); q != "" {
		l, valid := domain.ParseLanguage(q)
		if !valid {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lang must be one of: tr, en")
			return
		}
		lang = l
	}
	profile, _ := cl.Auth.CurrentUser()
	ok(c, http.StatusOK, h.premium.Catalog(lang, profile))
}

// UpgradePremium godoc
// @ID          upgradePremium
// @Summary     Request a premium upgrade
// @Tags        Premium
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.UpgradeRequest  true  "Plan"
// @Success     200   {object}  services.UpgradeResult
// @Failure     400   {object}  handlers.ErrorResponse "Unknown plan"
// @Failure     401   {object}  handlers.ErrorResponse "Unauthorized"
// @Router      /premium/upgrade [post]
func (h *Handlers) UpgradePremium(c *gin.Context) {
	var req UpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "plan_id required")
		return
	}
	cl := h.client(c)
	profile, _ := cl.Auth.CurrentUser()
	res, err := h.premium.Upgrade(cl.Auth.Language(), profile, req.PlanID)
	if err != nil {
		if errors.Is(err, services.ErrUnknownPlan) {
			fail(c, http.StatusBadRequest, ErrCodeUnknownPlan, "plan_id must be monthly or yearly")
			return
		}
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "upgrade failed")
		return
	}
	ok(c, http.StatusOK, res)
}
