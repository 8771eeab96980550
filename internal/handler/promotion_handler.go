package handler

import (
	"net/http"

	"github.com/cloud-wave-best-zizon/promotion-service/internal/domain"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ApplyCouponRequest struct {
	Code string `json:"code" binding:"required"`
}

type PromotionHandler struct {
	registry *service.Registry
	carts    *CartHandler
	logger   *zap.Logger
}

func NewPromotionHandler(registry *service.Registry, carts *CartHandler, logger *zap.Logger) *PromotionHandler {
	return &PromotionHandler{
		registry: registry,
		carts:    carts,
		logger:   logger,
	}
}

// ApplyCoupon handles POST /carts/:cartId/coupon
func (h *PromotionHandler) ApplyCoupon(c *gin.Context) {
	var req ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	session := h.registry.Open(c.Request.Context(), c.Param("cartId"))
	// Settle pending cart writes so the code is judged against the current cart.
	if session.Guard.Pending() {
		session.Guard.Flush()
	}

	// Apply coupon
	result := session.ApplyCode(c.Request.Context(), req.Code)
	if !result.Applied {
		h.logger.Info("Coupon rejected",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("cart_id", session.ID),
			zap.String("code", req.Code),
			zap.String("reason", string(result.Reason)))
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RemoveCoupon handles DELETE /carts/:cartId/coupon. The cart may auto-lock
// again on the next pass.
func (h *PromotionHandler) RemoveCoupon(c *gin.Context) {
	session, ok := h.carts.session(c)
	if !ok {
		return
	}
	session.Manager.Clear(c.Request.Context())
	// Let auto promotions take the slot back
	session.Guard.Trigger()
	c.JSON(http.StatusOK, gin.H{"cart_id": session.ID, "state": domain.StateEmpty})
}

// ListPromotions handles GET /carts/:cartId/promotions
func (h *PromotionHandler) ListPromotions(c *gin.Context) {
	session, ok := h.carts.session(c)
	if !ok {
		return
	}
	queue := session.Manager.Queue()
	if queue == nil {
		queue = []domain.QueueEntry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"cart_id": session.ID,
		"state":   session.Manager.State(),
		"queue":   queue,
	})
}
