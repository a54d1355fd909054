package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"littlekobe-store/internal/gateway"
	"littlekobe-store/internal/models"
	"littlekobe-store/internal/service"
	"littlekobe-store/internal/store"
	"littlekobe-store/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	checkout   *service.CheckoutService
	reconcile  *service.ReconcileService
	admin      AdminStore
	publish    func(ctx context.Context, event *models.IPNReceivedEvent) error
	dropCache  func(ctx context.Context, productID string) error
	notifyTest NotificationTester
	adminAuth  gin.Accounts
	webhookKey string
	logger     *zap.Logger
}

// NotificationTester exposes the raw channel senders for operational checks
type NotificationTester interface {
	TestEmail(ctx context.Context, to string) error
	TestChat(ctx context.Context, to string) error
}

// HandlerConfig wires the handler's collaborators
type HandlerConfig struct {
	Checkout      *service.CheckoutService
	Reconcile     *service.ReconcileService
	Admin         AdminStore
	PublishIPN    func(ctx context.Context, event *models.IPNReceivedEvent) error
	DropCache     func(ctx context.Context, productID string) error
	NotifyTester  NotificationTester
	AdminAccounts gin.Accounts
	WebhookSecret string
}

// NewHandler creates a new HTTP handler
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		checkout:   cfg.Checkout,
		reconcile:  cfg.Reconcile,
		admin:      cfg.Admin,
		publish:    cfg.PublishIPN,
		dropCache:  cfg.DropCache,
		notifyTest: cfg.NotifyTester,
		adminAuth:  cfg.AdminAccounts,
		webhookKey: cfg.WebhookSecret,
		logger:     util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/checkout", h.checkoutCart)
		v1.POST("/payments/initiate", h.initiatePayment)
		v1.POST("/payments/verify", h.verifyPayment)
	}

	router.GET("/webhooks/payment/ipn", h.handleIPN)
	router.POST("/webhooks/payment/ipn", h.handleIPN)

	h.setupAdminRoutes(router)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type checkoutCartRequest struct {
	Items []service.CartLine `json:"items"`
}

// checkoutCart decrements stock for every cart line without initiating a
// payment; the storefront uses it to validate a cart before handing off
func (h *Handler) checkoutCart(c *gin.Context) {
	var req checkoutCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.checkout.ReserveStock(c.Request.Context(), req.Items); err != nil {
		h.respondCheckoutError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "STOCK_RESERVED"})
}

// initiatePayment runs the full checkout and returns the gateway redirect URL
func (h *Handler) initiatePayment(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.checkout.InitiatePayment(c.Request.Context(), &req)
	if err != nil {
		h.respondCheckoutError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) respondCheckoutError(c *gin.Context, err error) {
	var lineErr *service.LineError
	productID := ""
	if errors.As(err, &lineErr) {
		productID = lineErr.ProductID
	}

	switch {
	case errors.Is(err, store.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{
			"error":     "INSUFFICIENT_STOCK",
			"productId": productID,
		})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "PRODUCT_NOT_FOUND",
			"productId": productID,
		})
	case errors.Is(err, service.ErrEmptyCart), errors.Is(err, service.ErrBadQuantity):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "INVALID_CART",
			"message": err.Error(),
		})
	case gateway.IsRejected(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "PAYMENT_REJECTED",
			"message": err.Error(),
		})
	case gateway.IsUnavailable(err) || errors.Is(err, gateway.ErrAuth):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "PAYMENT_UNAVAILABLE",
			"message": "Payment service is temporarily unavailable, please try again",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "CHECKOUT_FAILED",
			"message": err.Error(),
		})
	}
}

type verifyRequest struct {
	TrackingID string `json:"orderTrackingId" binding:"required"`
}

// verifyPayment is the synchronous reconciliation path, hit when the
// customer's browser returns from the gateway
func (h *Handler) verifyPayment(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.reconcile.Reconcile(c.Request.Context(), req.TrackingID)
	if err != nil {
		if errors.Is(err, service.ErrUnknownTransaction) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ORDER_NOT_FOUND"})
			return
		}
		h.logger.Error("Payment verification failed",
			zap.String("tracking_id", req.TrackingID),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "VERIFICATION_FAILED",
			"message": "We could not confirm your payment yet. Please contact support with your order reference.",
		})
		return
	}

	rec := result.Record
	c.JSON(http.StatusOK, gin.H{
		"status":            rec.Status,
		"statusDescription": rec.StatusDescription,
		"confirmationCode":  rec.ConfirmationCode,
		"cartCleared":       rec.Status == models.PaymentStatusCompleted,
		"orderDetails": gin.H{
			"merchantReference": rec.MerchantReference,
			"totalAmount":       rec.Amount,
			"currency":          rec.Currency,
			"items":             rec.CartItems,
			"delivery_address":  rec.DeliveryAddress,
			"customer_email":    rec.CustomerEmail,
			"customer_phone":    rec.CustomerPhone,
		},
	})
}

// handleIPN is the asynchronous reconciliation path. The provider enforces a
// response-time SLA, so the event is queued and 200 returned before any
// provider-side work happens. Internal errors never surface to the provider.
func (h *Handler) handleIPN(c *gin.Context) {
	util.IPNReceivedTotal.Inc()

	trackingID := c.Query("OrderTrackingId")
	merchantRef := c.Query("OrderMerchantReference")
	notifType := c.Query("OrderNotificationType")

	if trackingID == "" && c.Request.Method == http.MethodPost {
		var body struct {
			TrackingID        string `json:"OrderTrackingId"`
			MerchantReference string `json:"OrderMerchantReference"`
			NotificationType  string `json:"OrderNotificationType"`
		}
		if err := c.ShouldBindJSON(&body); err == nil {
			trackingID = body.TrackingID
			merchantRef = body.MerchantReference
			notifType = body.NotificationType
		}
	}

	ack := gin.H{
		"orderTrackingId":       trackingID,
		"orderNotificationType": notifType,
		"status":                200,
	}

	if h.webhookKey != "" &&
		subtle.ConstantTimeCompare([]byte(c.Query("key")), []byte(h.webhookKey)) != 1 {
		h.logger.Warn("IPN with bad or missing shared secret",
			zap.String("tracking_id", trackingID))
		c.JSON(http.StatusOK, ack)
		return
	}

	if trackingID == "" {
		h.logger.Warn("IPN without tracking id")
		c.JSON(http.StatusOK, ack)
		return
	}

	event := &models.IPNReceivedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeIPNReceived,
			Timestamp: time.Now(),
		},
		TrackingID:        trackingID,
		MerchantReference: merchantRef,
		NotificationType:  notifType,
	}

	if err := h.publish(c.Request.Context(), event); err != nil {
		// Never let an internal failure trigger provider-side retry storms.
		h.logger.Error("Failed to queue IPN event",
			zap.String("tracking_id", trackingID),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, ack)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
