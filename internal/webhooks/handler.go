package webhooks

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/leadforge/leadhooks/internal/auth"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for webhook subscriptions and event intake.
type Handler struct {
	svc      *Service
	tokens   *auth.TokenIssuer
	logger   *zap.Logger
	inflight sync.WaitGroup
}

// NewHandler creates a new webhook Handler.
func NewHandler(svc *Service, tokens *auth.TokenIssuer, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, tokens: tokens, logger: logger}
}

// Register registers all webhook routes on the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	wh := rg.Group("/webhooks")
	wh.Use(auth.RequireToken(h.tokens, auth.RoleAdmin))
	{
		wh.POST("", h.CreateSubscription)
		wh.GET("", h.ListSubscriptions)
		wh.PATCH("/:id", h.UpdateSubscription)
		wh.DELETE("/:id", h.DeleteSubscription)
		wh.POST("/:id/test", h.TestSubscription)
		wh.GET("/:id/deliveries", h.ListDeliveries)
	}

	ev := rg.Group("/events")
	ev.Use(auth.RequireToken(h.tokens, auth.RoleService))
	ev.POST("", h.DispatchEvent)
}

// Wait blocks until every dispatch started by DispatchEvent has settled.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

func orgFromCtx(c *gin.Context) (uuid.UUID, bool) {
	claims := auth.ClaimsFromCtx(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return uuid.Nil, false
	}
	orgID, err := claims.Org()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization ID"})
		return uuid.Nil, false
	}
	return orgID, true
}

func subIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription ID"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeErr(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for this subscription"})
	case errors.Is(err, ErrUnknownEventType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error(op, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + op})
	}
}

// CreateSubscription handles POST /webhooks: creates a new subscription.
func (h *Handler) CreateSubscription(c *gin.Context) {
	orgID, ok := orgFromCtx(c)
	if !ok {
		return
	}

	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.svc.Subscribe(c.Request.Context(), orgID, &req)
	if err != nil {
		h.writeErr(c, "create subscription", err)
		return
	}

	// Return the secret once so the caller can store it.
	c.JSON(http.StatusCreated, gin.H{
		"subscription": sub,
		"secret":       sub.Secret,
		"note":         "Store the secret securely. It will not be shown again.",
	})
}

// ListSubscriptions handles GET /webhooks: lists the organization's subscriptions.
func (h *Handler) ListSubscriptions(c *gin.Context) {
	orgID, ok := orgFromCtx(c)
	if !ok {
		return
	}

	subs, err := h.svc.ListByOrg(c.Request.Context(), orgID)
	if err != nil {
		h.writeErr(c, "list subscriptions", err)
		return
	}
	if subs == nil {
		subs = []*WebhookSubscription{}
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions": subs, "count": len(subs)})
}

// UpdateSubscription handles PATCH /webhooks/:id.
func (h *Handler) UpdateSubscription(c *gin.Context) {
	orgID, ok := orgFromCtx(c)
	if !ok {
		return
	}
	subID, ok := subIDParam(c)
	if !ok {
		return
	}

	var req UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.svc.Update(c.Request.Context(), orgID, subID, &req)
	if err != nil {
		h.writeErr(c, "update subscription", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// DeleteSubscription handles DELETE /webhooks/:id: deletes a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	orgID, ok := orgFromCtx(c)
	if !ok {
		return
	}
	subID, ok := subIDParam(c)
	if !ok {
		return
	}

	if err := h.svc.Unsubscribe(c.Request.Context(), orgID, subID); err != nil {
		h.writeErr(c, "delete subscription", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TestSubscription handles POST /webhooks/:id/test: one synchronous test delivery.
func (h *Handler) TestSubscription(c *gin.Context) {
	orgID, ok := orgFromCtx(c)
	if !ok {
		return
	}
	subID, ok := subIDParam(c)
	if !ok {
		return
	}

	rec, err := h.svc.SendTest(c.Request.Context(), orgID, subID)
	if err != nil {
		h.writeErr(c, "send test webhook", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       rec.Success,
		"status_code":   rec.StatusCode,
		"response_time": rec.DurationMs,
		"error":         rec.ErrorMessage,
		"delivery":      rec,
	})
}

// ListDeliveries handles GET /webhooks/:id/deliveries?limit=N.
func (h *Handler) ListDeliveries(c *gin.Context) {
	orgID, ok := orgFromCtx(c)
	if !ok {
		return
	}
	subID, ok := subIDParam(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}

	recs, err := h.svc.Deliveries(c.Request.Context(), orgID, subID, limit)
	if err != nil {
		h.writeErr(c, "list deliveries", err)
		return
	}
	if recs == nil {
		recs = []*DeliveryAttempt{}
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": recs, "count": len(recs)})
}

// DispatchEvent handles POST /events: accepts a domain event and fans it out
// in the background. The caller is never blocked on delivery.
func (h *Handler) DispatchEvent(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Type.Subscribable() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event type cannot be dispatched: " + req.Type.String()})
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		h.svc.Dispatch(ctx, req.Type, req.Data)
	}()

	c.JSON(http.StatusAccepted, gin.H{"accepted": true, "type": req.Type})
}
