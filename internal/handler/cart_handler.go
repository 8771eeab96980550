package handler

import (
	"errors"
	"net/http"

	"github.com/cloud-wave-best-zizon/promotion-service/internal/cart"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/domain"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type PutLineRequest struct {
	ItemID    string  `json:"item_id"`
	VariantID string  `json:"variant_id"`
	AddonRef  string  `json:"addon_ref"`
	UnitPrice float64 `json:"unit_price" binding:"gte=0"`
	Quantity  int     `json:"quantity" binding:"gte=0"`
}

type SetChannelRequest struct {
	Mode string `json:"mode" binding:"required"`
}

type CartHandler struct {
	registry *service.Registry
	logger   *zap.Logger
}

func NewCartHandler(registry *service.Registry, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		registry: registry,
		logger:   logger,
	}
}

// PutLine handles PUT /carts/:cartId/lines/:key
func (h *CartHandler) PutLine(c *gin.Context) {
	// Request binding
	var req PutLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	session := h.registry.Open(c.Request.Context(), c.Param("cartId"))
	line := domain.CartLine{
		Key:       c.Param("key"),
		ItemID:    req.ItemID,
		VariantID: req.VariantID,
		AddonRef:  req.AddonRef,
		UnitPrice: req.UnitPrice,
		Quantity:  req.Quantity,
	}
	if err := session.Cart.Put(line); err != nil {
		// Request ID from middleware
		requestID := c.GetString("request_id")
		h.logger.Warn("Rejected cart line",
			zap.String("request_id", requestID),
			zap.String("cart_id", session.ID),
			zap.String("key", line.Key),
			zap.Error(err))

		status := http.StatusBadRequest
		if errors.Is(err, cart.ErrParentMissing) {
			status = http.StatusConflict
		}
		c.JSON(status, ErrorResponse{
			Error:     "INVALID_LINE",
			Message:   "Cart line rejected",
			Details:   err.Error(),
			RequestID: requestID,
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// GetCart handles GET /carts/:cartId. A pending reconciliation is run first
// so the summary reflects the latest cart.
func (h *CartHandler) GetCart(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	if session.Guard.Pending() {
		session.Guard.Flush()
	}

	// Response
	c.JSON(http.StatusOK, session.Summary())
}

// SetChannel handles PUT /carts/:cartId/channel
func (h *CartHandler) SetChannel(c *gin.Context) {
	var req SetChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	mode, ok := domain.ParseChannel(req.Mode)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "INVALID_INPUT",
			Message: "Unknown channel mode",
			Details: "mode must be delivery or dining",
		})
		return
	}

	session := h.registry.Open(c.Request.Context(), c.Param("cartId"))
	session.SetMode(mode)
	c.JSON(http.StatusOK, gin.H{"cart_id": session.ID, "mode": mode})
}

func (h *CartHandler) session(c *gin.Context) (*service.Session, bool) {
	session, err := h.registry.Get(c.Param("cartId"))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "NOT_FOUND",
				Message: "Cart not found",
			})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "INTERNAL", Message: err.Error()})
		return nil, false
	}
	return session, true
}

func badRequest(c *gin.Context, message string, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:     "INVALID_INPUT",
		Message:   message,
		Details:   err.Error(),
		RequestID: c.GetString("request_id"),
	})
}
