package api

import (
	"context"
	"net/http"
	"time"

	"littlekobe-store/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminStore is the slice of the store the admin area needs
type AdminStore interface {
	ListInventory(ctx context.Context) ([]models.InventoryRecord, error)
	ListLowStock(ctx context.Context) ([]models.InventoryRecord, error)
	GetInventory(ctx context.Context, productID string) (*models.InventoryRecord, error)
	UpsertInventory(ctx context.Context, productID string, update *models.InventoryUpdate) (*models.InventoryRecord, error)
	DeleteInventory(ctx context.Context, productID string) error
	ListRecentPayments(ctx context.Context, limit int) ([]models.PaymentRecord, error)
	GetPaymentByMerchantReference(ctx context.Context, reference string) (*models.PaymentRecord, error)
	SalesSummary(ctx context.Context, since time.Time) (*models.SalesSummary, error)
}

func (h *Handler) setupAdminRoutes(router *gin.Engine) {
	admin := router.Group("/admin", gin.BasicAuth(h.adminAuth))
	{
		admin.GET("/inventory", h.listInventory)
		admin.GET("/inventory/:id", h.getInventory)
		admin.PUT("/inventory/:id", h.updateInventory)
		admin.DELETE("/inventory/:id", h.deleteInventory)
		admin.GET("/payments", h.listPayments)
		admin.GET("/payments/:reference", h.getPayment)
		admin.GET("/sales/summary", h.salesSummary)
		admin.POST("/notifications/test-email", h.testEmail)
		admin.POST("/notifications/test-chat", h.testChat)
	}
}

// listInventory lists all records, or only those at/below their reorder
// threshold when ?low_stock=true
func (h *Handler) listInventory(c *gin.Context) {
	var recs []models.InventoryRecord
	var err error
	if c.Query("low_stock") == "true" {
		recs, err = h.admin.ListLowStock(c.Request.Context())
	} else {
		recs, err = h.admin.ListInventory(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list inventory"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"inventory": recs})
}

func (h *Handler) getInventory(c *gin.Context) {
	rec, err := h.admin.GetInventory(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "PRODUCT_NOT_FOUND", "productId": c.Param("id")})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// updateInventory applies an admin edit; only supplied fields are overwritten
func (h *Handler) updateInventory(c *gin.Context) {
	var update models.InventoryUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	rec, err := h.admin.UpsertInventory(c.Request.Context(), c.Param("id"), &update)
	if err != nil {
		h.logger.Error("Inventory update failed",
			zap.String("product_id", c.Param("id")),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update inventory"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) deleteInventory(c *gin.Context) {
	if err := h.admin.DeleteInventory(c.Request.Context(), c.Param("id")); err != nil {
		h.logger.Error("Inventory delete failed",
			zap.String("product_id", c.Param("id")),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete inventory"})
		return
	}
	if h.dropCache != nil {
		// The cached catalog payload for a retired product is stale now
		if err := h.dropCache(c.Request.Context(), c.Param("id")); err != nil {
			h.logger.Warn("Failed to drop cached catalog product",
				zap.String("product_id", c.Param("id")),
				zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "productId": c.Param("id")})
}

func (h *Handler) listPayments(c *gin.Context) {
	recs, err := h.admin.ListRecentPayments(c.Request.Context(), 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list payments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": recs})
}

// getPayment looks a payment up by the order reference shown to the customer,
// for support enquiries
func (h *Handler) getPayment(c *gin.Context) {
	rec, err := h.admin.GetPaymentByMerchantReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up payment"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ORDER_NOT_FOUND", "reference": c.Param("reference")})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// salesSummary aggregates completed payments for the admin dashboard;
// defaults to the last 30 days
func (h *Handler) salesSummary(c *gin.Context) {
	since := time.Now().AddDate(0, 0, -30)
	if s := c.Query("since"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		since = parsed
	}

	summary, err := h.admin.SalesSummary(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute sales summary"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since, "summary": summary})
}

type notificationTestRequest struct {
	To string `json:"to" binding:"required"`
}

func (h *Handler) testEmail(c *gin.Context) {
	var req notificationTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to is required"})
		return
	}
	if err := h.notifyTest.TestEmail(c.Request.Context(), req.To); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (h *Handler) testChat(c *gin.Context) {
	var req notificationTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to is required"})
		return
	}
	if err := h.notifyTest.TestChat(c.Request.Context(), req.To); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}
