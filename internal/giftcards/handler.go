package giftcards

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/giftcard-ledger/internal/pricing"
	"github.com/richxcame/giftcard-ledger/pkg/common"
	"github.com/richxcame/giftcard-ledger/pkg/logger"
	"github.com/richxcame/giftcard-ledger/pkg/middleware"
	"github.com/richxcame/giftcard-ledger/pkg/pagination"
	"go.uber.org/zap"
)

// Handler handles public and card holder HTTP requests
type Handler struct {
	service   *Service
	converter *pricing.Converter
}

// NewHandler creates a new gift card handler
func NewHandler(service *Service, converter *pricing.Converter) *Handler {
	return &Handler{service: service, converter: converter}
}

// ========================================
// PUBLIC ENDPOINTS
// ========================================

// ListTemplates lists purchasable templates
// GET /api/v1/giftcards/templates
func (h *Handler) ListTemplates(c *gin.Context) {
	common.SuccessResponse(c, newTemplateViews(h.service.ListActiveTemplates()))
}

// GetTemplate returns one template
// GET /api/v1/giftcards/templates/:id
func (h *Handler) GetTemplate(c *gin.Context) {
	id, ok := parseID(c, "invalid template ID")
	if !ok {
		return
	}

	t, err := h.service.GetTemplate(id)
	if err != nil {
		respondError(c, err)
		return
	}

	common.SuccessResponse(c, newTemplateView(*t))
}

// QuoteTemplate previews the native price of a purchase
// GET /api/v1/giftcards/templates/:id/quote?quantity=N
func (h *Handler) QuoteTemplate(c *gin.Context) {
	id, ok := parseID(c, "invalid template ID")
	if !ok {
		return
	}

	quantity := uint64(1)
	if q := c.Query("quantity"); q != "" {
		parsed, err := strconv.ParseUint(q, 10, 64)
		if err != nil {
			common.ErrorResponse(c, http.StatusBadRequest, "invalid quantity")
			return
		}
		quantity = parsed
	}

	quote, err := h.service.Quote(c.Request.Context(), id, quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	common.SuccessResponse(c, QuoteView{
		TemplateID: quote.TemplateID,
		Quantity:   quote.Quantity,
		Total:      pricing.FormatUSD(quote.TotalCents),
		Native:     h.converter.FormatNative(quote.Native),
		RateAnswer: quote.Rate.Answer,
	})
}

// GetCard returns a card with its redemption state
// GET /api/v1/giftcards/cards/:id
func (h *Handler) GetCard(c *gin.Context) {
	id, ok := parseID(c, "invalid card ID")
	if !ok {
		return
	}

	card, err := h.service.GetCard(id)
	if err != nil {
		respondError(c, err)
		return
	}

	common.SuccessResponse(c, newCardView(*card))
}

// GetOwner returns the holder of a card
// GET /api/v1/giftcards/cards/:id/owner
func (h *Handler) GetOwner(c *gin.Context) {
	id, ok := parseID(c, "invalid card ID")
	if !ok {
		return
	}

	owner, err := h.service.OwnerOf(id)
	if err != nil {
		respondError(c, err)
		return
	}

	common.SuccessResponse(c, gin.H{"card_id": id, "owner": owner})
}

// GetTokenURI returns the metadata URI of a card
// GET /api/v1/giftcards/cards/:id/token-uri
func (h *Handler) GetTokenURI(c *gin.Context) {
	id, ok := parseID(c, "invalid card ID")
	if !ok {
		return
	}

	uri, err := h.service.TokenURI(id)
	if err != nil {
		respondError(c, err)
		return
	}

	common.SuccessResponse(c, gin.H{"card_id": id, "token_uri": uri})
}

// GetHolderBalance returns how many cards a holder owns
// GET /api/v1/giftcards/holders/:owner/balance
func (h *Handler) GetHolderBalance(c *gin.Context) {
	owner, err := uuid.Parse(c.Param("owner"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid holder ID")
		return
	}

	common.SuccessResponse(c, gin.H{"owner": owner, "balance": h.service.BalanceOf(owner)})
}

// ListMarket lists cards offered for resale
// GET /api/v1/giftcards/market
func (h *Handler) ListMarket(c *gin.Context) {
	params := pagination.ParseParams(c)
	listings := h.service.ForSale(c.Request.Context())

	start, end := params.Window(len(listings))
	views := make([]ListingView, 0, end-start)
	for _, l := range listings[start:end] {
		views = append(views, newListingView(l, h.converter))
	}
	meta := pagination.BuildMeta(params.Limit, params.Offset, int64(len(listings)))
	common.SuccessResponseWithMeta(c, views, meta)
}

// ========================================
// CARD HOLDER ENDPOINTS
// ========================================

// Purchase buys cards from a template
// POST /api/v1/giftcards/purchases
func (h *Handler) Purchase(c *gin.Context) {
	buyer, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req PurchaseRequest
	if !middleware.ValidateAndBind(c, &req) {
		return
	}

	paid, err := h.converter.ParseNative(req.Payment)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid payment amount")
		return
	}

	receipt, err := h.service.Buy(c.Request.Context(), *req.TemplateID, buyer, req.Quantity, paid)
	if err != nil {
		respondError(c, err)
		return
	}

	common.SuccessResponseWithStatus(c, http.StatusCreated, newReceiptView(receipt, h.converter), "Gift cards purchased")
}

// Transfer moves a card to another holder
// POST /api/v1/giftcards/cards/:id/transfer
func (h *Handler) Transfer(c *gin.Context) {
	caller, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := parseID(c, "invalid card ID")
	if !ok {
		return
	}

	var req TransferRequest
	if !middleware.ValidateAndBind(c, &req) {
		return
	}
	to, err := uuid.Parse(req.To)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid recipient")
		return
	}

	if err := h.service.Transfer(c.Request.Context(), caller, id, to); err != nil {
		respondError(c, err)
		return
	}

	common.SuccessResponseWithStatus(c, http.StatusOK, gin.H{"card_id": id, "owner": to}, "Gift card transferred")
}

// SetResale lists or unlists a card for resale
// PUT /api/v1/giftcards/cards/:id/resale
func (h *Handler) SetResale(c *gin.Context) {
	caller, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := parseID(c, "invalid card ID")
	if !ok {
		return
	}

	var req ResaleRequest
	if !middleware.ValidateAndBind(c, &req) {
		return
	}

	var price int64
	if *req.Sellable {
		if req.Price == "" {
			common.ErrorResponse(c, http.StatusBadRequest, "price is required when listing a card")
			return
		}
		if price, err = pricing.ParseUSD(req.Price); err != nil {
			common.ErrorResponse(c, http.StatusBadRequest, "invalid price")
			return
		}
	}

	if err := h.service.SetSellable(c.Request.Context(), caller, id, *req.Sellable, price); err != nil {
		respondError(c, err)
		return
	}

	h.respondCard(c, id)
}

// SetResalePrice changes the asking price of a card
// PUT /api/v1/giftcards/cards/:id/resale-price
func (h *Handler) SetResalePrice(c *gin.Context) {
	caller, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := parseID(c, "invalid card ID")
	if !ok {
		return
	}

	var req ResalePriceRequest
	if !middleware.ValidateAndBind(c, &req) {
		return
	}
	price, err := pricing.ParseUSD(req.Price)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid price")
		return
	}

	if err := h.service.SetSellPrice(c.Request.Context(), caller, id, price); err != nil {
		respondError(c, err)
		return
	}

	h.respondCard(c, id)
}

// MyCards lists the caller's cards
// GET /api/v1/giftcards/me/cards
func (h *Handler) MyCards(c *gin.Context) {
	caller, err := middleware.GetUserID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	cards, err := h.service.CardsOf(caller)
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]CardView, 0, len(cards))
	for _, card := range cards {
		views = append(views, newCardView(card))
	}
	common.SuccessResponse(c, views)
}

func (h *Handler) respondCard(c *gin.Context, id uint64) {
	card, err := h.service.GetCard(id)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, newCardView(*card))
}

// ========================================
// HELPERS
// ========================================

func parseID(c *gin.Context, message string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, message)
		return 0, false
	}
	return id, true
}

func respondError(c *gin.Context, err error) {
	appErr := toAppError(err)
	if appErr.Code >= http.StatusInternalServerError {
		logger.WithContext(c.Request.Context()).Error("gift card request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	common.AppErrorResponse(c, appErr)
}

// ========================================
// ROUTE REGISTRATION
// ========================================

// RegisterRoutes registers public and card holder routes. Extra handlers run
// on every route, after authentication on holder routes.
func (h *Handler) RegisterRoutes(r *gin.Engine, jwtSecret string, extra ...gin.HandlerFunc) {
	public := r.Group("/api/v1/giftcards")
	public.Use(extra...)
	{
		public.GET("/templates", h.ListTemplates)
		public.GET("/templates/:id", h.GetTemplate)
		public.GET("/templates/:id/quote", h.QuoteTemplate)
		public.GET("/cards/:id", h.GetCard)
		public.GET("/cards/:id/owner", h.GetOwner)
		public.GET("/cards/:id/token-uri", h.GetTokenURI)
		public.GET("/holders/:owner/balance", h.GetHolderBalance)
		public.GET("/market", h.ListMarket)
	}

	holder := r.Group("/api/v1/giftcards")
	holder.Use(middleware.AuthMiddleware(jwtSecret))
	holder.Use(extra...)
	{
		holder.POST("/purchases", h.Purchase)
		holder.POST("/cards/:id/transfer", h.Transfer)
		holder.PUT("/cards/:id/resale", h.SetResale)
		holder.PUT("/cards/:id/resale-price", h.SetResalePrice)
		holder.GET("/me/cards", h.MyCards)
	}
}
