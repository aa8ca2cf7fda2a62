package giftcards

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/giftcard-ledger/internal/pricing"
	"github.com/richxcame/giftcard-ledger/pkg/common"
	"github.com/richxcame/giftcard-ledger/pkg/middleware"
	"github.com/richxcame/giftcard-ledger/pkg/pagination"
)

// AdminHandler handles shop administration HTTP requests
type AdminHandler struct {
	service   *Service
	converter *pricing.Converter
}

// NewAdminHandler creates a new gift card admin handler
func NewAdminHandler(service *Service, converter *pricing.Converter) *AdminHandler {
	return &AdminHandler{service: service, converter: converter}
}

// RegisterRoutes registers gift card admin routes
func (h *AdminHandler) RegisterRoutes(r *gin.Engine, jwtSecret string) {
	admin := r.Group("/api/v1/admin/giftcards")
	admin.Use(middleware.AuthMiddleware(jwtSecret), middleware.RequireAdmin())
	{
		admin.GET("/templates", h.ListTemplates)
		admin.POST("/templates", h.CreateTemplate)
		admin.PUT("/templates/:id/active", h.SetActive)
		admin.PUT("/templates/:id/remaining-supply", h.SetRemainingSupply)
		admin.PUT("/templates/:id/initial-supply", h.SetInitialSupply)

		admin.POST("/cards/:id/redeem", h.Redeem)
		admin.GET("/cards/:id/redemptions", h.ListRedemptions)

		admin.GET("/custody", h.GetCustody)
		admin.POST("/custody/withdraw", h.Withdraw)
	}
}

// ========================================
// TEMPLATES
// ========================================

// ListTemplates lists every template including inactive ones
func (h *AdminHandler) ListTemplates(c *gin.Context) {
	params := pagination.ParseParams(c)
	templates := h.service.ListTemplates()

	start, end := params.Window(len(templates))
	meta := pagination.BuildMeta(params.Limit, params.Offset, int64(len(templates)))
	common.SuccessResponseWithMeta(c, newTemplateViews(templates[start:end]), meta)
}

// CreateTemplate creates a new template
func (h *AdminHandler) CreateTemplate(c *gin.Context) {
	adminID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateTemplateRequest
	if !middleware.ValidateAndBind(c, &req) {
		return
	}

	faceValue, err := pricing.ParseUSD(req.FaceValue)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid face value")
		return
	}
	listPrice, err := pricing.ParseUSD(req.ListPrice)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid list price")
		return
	}

	t, err := h.service.CreateTemplate(c.Request.Context(), adminID, req.InitialSupply, req.ActivationDelayMonths, req.ExpiryYears, faceValue, listPrice)
	if err != nil {
		respondError(c, err)
		return
	}

	common.SuccessResponseWithStatus(c, http.StatusCreated, newTemplateView(*t), "Template created successfully")
}

// SetActive activates or deactivates a template
func (h *AdminHandler) SetActive(c *gin.Context) {
	adminID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := parseID(c, "invalid template ID")
	if !ok {
		return
	}

	var req SetActiveRequest
	if !middleware.ValidateAndBind(c, &req) {
		return
	}

	if err := h.service.SetTemplateActive(c.Request.Context(), adminID, id, *req.Active); err != nil {
		respondError(c, err)
		return
	}

	h.respondTemplate(c, id)
}

// SetRemainingSupply overrides the remaining supply of a template
func (h *AdminHandler) SetRemainingSupply(c *gin.Context) {
	h.setSupply(c, h.service.SetRemainingSupply)
}

// SetInitialSupply overrides the initial supply of a template
func (h *AdminHandler) SetInitialSupply(c *gin.Context) {
	h.setSupply(c, h.service.SetInitialSupply)
}

func (h *AdminHandler) setSupply(c *gin.Context, set func(ctx context.Context, caller uuid.UUID, templateID, value uint64) error) {
	adminID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := parseID(c, "invalid template ID")
	if !ok {
		return
	}

	var req SetSupplyRequest
	if !middleware.ValidateAndBind(c, &req) {
		return
	}

	if err := set(c.Request.Context(), adminID, id, *req.Value); err != nil {
		respondError(c, err)
		return
	}

	h.respondTemplate(c, id)
}

func (h *AdminHandler) respondTemplate(c *gin.Context, id uint64) {
	t, err := h.service.GetTemplate(id)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, newTemplateView(*t))
}

// ========================================
// REDEMPTION
// ========================================

// Redeem consumes part of a card balance at the till
func (h *AdminHandler) Redeem(c *gin.Context) {
	adminID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := parseID(c, "invalid card ID")
	if !ok {
		return
	}

	var req RedeemRequest
	if !middleware.ValidateAndBind(c, &req) {
		return
	}
	amount, err := pricing.ParseUSD(req.Amount)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid amount")
		return
	}

	balance, err := h.service.Redeem(c.Request.Context(), adminID, id, amount, req.Reference)
	if err != nil {
		respondError(c, err)
		return
	}

	common.SuccessResponse(c, gin.H{
		"card_id":  id,
		"redeemed": pricing.FormatUSD(amount),
		"balance":  pricing.FormatUSD(balance),
	})
}

// ListRedemptions returns the redemption history of a card
func (h *AdminHandler) ListRedemptions(c *gin.Context) {
	id, ok := parseID(c, "invalid card ID")
	if !ok {
		return
	}

	trail, err := h.service.Redemptions(id)
	if err != nil {
		respondError(c, err)
		return
	}

	common.SuccessResponse(c, newRedemptionViews(trail))
}

// ========================================
// CUSTODY
// ========================================

// GetCustody returns the native funds held by the shop
func (h *AdminHandler) GetCustody(c *gin.Context) {
	common.SuccessResponse(c, gin.H{"custody": h.converter.FormatNative(h.service.Custody())})
}

// Withdraw moves custody funds to an account
func (h *AdminHandler) Withdraw(c *gin.Context) {
	adminID, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req WithdrawRequest
	if !middleware.ValidateAndBind(c, &req) {
		return
	}

	amount, err := h.converter.ParseNative(req.Amount)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid amount")
		return
	}
	to, err := uuid.Parse(req.To)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid recipient")
		return
	}

	if err := h.service.Withdraw(c.Request.Context(), adminID, amount, to); err != nil {
		respondError(c, err)
		return
	}

	common.SuccessResponse(c, gin.H{
		"withdrawn": h.converter.FormatNative(amount),
		"to":        to,
		"custody":   h.converter.FormatNative(h.service.Custody()),
	})
}
