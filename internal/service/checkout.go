package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"littlekobe-store/internal/gateway"
	"littlekobe-store/internal/models"
	"littlekobe-store/internal/store"
	"littlekobe-store/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Checkout validation errors
var (
	ErrEmptyCart   = errors.New("cart must contain at least one item")
	ErrBadQuantity = errors.New("requested quantity must be positive")
)

// LineError reports which cart line made the checkout fail
type LineError struct {
	ProductID string
	Err       error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("product %s: %v", e.ProductID, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// CartLine is one requested order line
type CartLine struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"requestedQuantity" binding:"required"`
}

// CheckoutRequest carries everything needed to initiate a payment
type CheckoutRequest struct {
	Items           []CartLine     `json:"items"`
	Currency        string         `json:"currency"`
	Description     string         `json:"description"`
	CustomerEmail   string         `json:"customer_email"`
	CustomerPhone   string         `json:"customer_phone"`
	DeliveryAddress models.Address `json:"delivery_address"`
}

// CheckoutResponse is returned once the gateway accepts the order
type CheckoutResponse struct {
	MerchantReference string `json:"merchantReference"`
	TrackingID        string `json:"orderTrackingId"`
	RedirectURL       string `json:"redirectUrl"`
}

// CheckoutService orchestrates cart validation, stock decrements, payment
// record creation and gateway submission
type CheckoutService struct {
	inventory   InventoryStore
	payments    PaymentStore
	gateway     Gateway
	catalog     ProductCatalog
	callbackURL string
	ipnID       string
	logger      *zap.Logger
}

// NewCheckoutService creates a new checkout orchestrator
func NewCheckoutService(
	inventory InventoryStore,
	payments PaymentStore,
	gw Gateway,
	catalog ProductCatalog,
	callbackURL string,
	ipnID string,
) *CheckoutService {
	return &CheckoutService{
		inventory:   inventory,
		payments:    payments,
		gateway:     gw,
		catalog:     catalog,
		callbackURL: callbackURL,
		ipnID:       ipnID,
		logger:      util.GetLogger(),
	}
}

// ReserveStock decrements stock for every cart line, in list order. Each
// decrement is its own atomic row-level operation; on the first failure the
// lines already decremented are incremented back and the failing product is
// reported.
func (s *CheckoutService) ReserveStock(ctx context.Context, items []CartLine) error {
	ctx, span := util.StartSpan(ctx, "CheckoutService.ReserveStock")
	defer span.End()

	if err := validateCart(items); err != nil {
		return err
	}

	decremented := make([]CartLine, 0, len(items))
	for _, line := range items {
		if _, err := s.inventory.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			reason := "error"
			if errors.Is(err, store.ErrInsufficientStock) {
				reason = "insufficient_stock"
			} else if errors.Is(err, store.ErrNotFound) {
				reason = "product_not_found"
			}
			util.StockDecrementFailedTotal.WithLabelValues(reason).Inc()
			s.releaseStock(ctx, decremented)
			return &LineError{ProductID: line.ProductID, Err: err}
		}
		util.StockDecrementsTotal.Inc()
		decremented = append(decremented, line)
	}
	return nil
}

// releaseStock increments back the lines already decremented (compensation)
func (s *CheckoutService) releaseStock(ctx context.Context, lines []CartLine) {
	for _, line := range lines {
		if err := s.inventory.IncrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			s.logger.Error("Failed to release stock during compensation",
				zap.String("product_id", line.ProductID),
				zap.Int("quantity", line.Quantity),
				zap.Error(err))
			continue
		}
		util.StockReleasedTotal.Inc()
	}
}

// InitiatePayment runs the full checkout: validate, snapshot prices, decrement
// stock, create a PENDING payment record, submit to the gateway and hand back
// the redirect URL
func (s *CheckoutService) InitiatePayment(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.InitiatePayment")
	defer span.End()

	util.CheckoutAttemptsTotal.Inc()

	if err := validateCart(req.Items); err != nil {
		util.CheckoutFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}
	if req.Currency == "" {
		req.Currency = "JPY"
	}

	// Price and name snapshot before touching stock; the snapshot is what the
	// customer is charged for, regardless of later catalog changes.
	snapshot := make(models.CartItems, 0, len(req.Items))
	var total int64
	for _, line := range req.Items {
		rec, err := s.inventory.GetInventory(ctx, line.ProductID)
		if err != nil {
			util.CheckoutFailedTotal.WithLabelValues("product_not_found").Inc()
			return nil, &LineError{ProductID: line.ProductID, Err: err}
		}

		name := line.ProductID
		if product, err := s.catalog.GetProduct(ctx, line.ProductID); err == nil {
			name = product.Name
		} else {
			s.logger.Warn("Catalog lookup failed, snapshotting product id as name",
				zap.String("product_id", line.ProductID),
				zap.Error(err))
		}

		snapshot = append(snapshot, models.CartItem{
			ProductID: line.ProductID,
			Name:      name,
			Quantity:  line.Quantity,
			UnitPrice: rec.Price,
		})
		total += rec.Price * int64(line.Quantity)
	}

	decremented := make([]CartLine, 0, len(req.Items))
	for _, line := range req.Items {
		if _, err := s.inventory.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			reason := "error"
			if errors.Is(err, store.ErrInsufficientStock) {
				reason = "insufficient_stock"
			} else if errors.Is(err, store.ErrNotFound) {
				reason = "product_not_found"
			}
			util.StockDecrementFailedTotal.WithLabelValues(reason).Inc()
			util.CheckoutFailedTotal.WithLabelValues(reason).Inc()
			s.releaseStock(ctx, decremented)
			return nil, &LineError{ProductID: line.ProductID, Err: err}
		}
		util.StockDecrementsTotal.Inc()
		decremented = append(decremented, line)
	}

	rec := &models.PaymentRecord{
		MerchantReference: newMerchantReference(),
		Amount:            total,
		Currency:          req.Currency,
		Description:       req.Description,
		CustomerEmail:     req.CustomerEmail,
		CustomerPhone:     req.CustomerPhone,
		DeliveryAddress:   req.DeliveryAddress,
		CartItems:         snapshot,
	}
	if rec.Description == "" {
		rec.Description = fmt.Sprintf("Little Kobe order %s", rec.MerchantReference)
	}

	if err := s.payments.CreatePendingPayment(ctx, rec); err != nil {
		util.CheckoutFailedTotal.WithLabelValues("db_error").Inc()
		s.releaseStock(ctx, decremented)
		return nil, fmt.Errorf("failed to create payment record: %w", err)
	}

	submitResp, err := s.gateway.SubmitOrder(ctx, &gateway.SubmitOrderRequest{
		MerchantReference: rec.MerchantReference,
		Amount:            rec.Amount,
		Currency:          rec.Currency,
		Description:       rec.Description,
		CallbackURL:       s.callbackURL,
		NotificationID:    s.ipnID,
		BillingAddress:    req.DeliveryAddress,
		CustomerEmail:     req.CustomerEmail,
		CustomerPhone:     req.CustomerPhone,
	})
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("gateway").Inc()
		s.releaseStock(ctx, decremented)
		if markErr := s.payments.MarkFailedByID(ctx, rec.ID, err.Error()); markErr != nil {
			s.logger.Error("Failed to mark payment record failed after gateway error",
				zap.Int64("payment_id", rec.ID),
				zap.Error(markErr))
		}
		return nil, err
	}

	util.PaymentsInitiatedTotal.Inc()

	// Best-effort: a pending record without a tracking id can still be
	// reconciled later by merchant reference.
	if err := s.payments.AttachTrackingID(ctx, rec.ID, submitResp.TrackingID); err != nil {
		s.logger.Error("Failed to attach tracking id",
			zap.Int64("payment_id", rec.ID),
			zap.String("tracking_id", submitResp.TrackingID),
			zap.Error(err))
	}

	s.logger.Info("Payment initiated",
		zap.String("merchant_reference", rec.MerchantReference),
		zap.String("tracking_id", submitResp.TrackingID),
		zap.Int64("amount", rec.Amount))

	return &CheckoutResponse{
		MerchantReference: rec.MerchantReference,
		TrackingID:        submitResp.TrackingID,
		RedirectURL:       submitResp.RedirectURL,
	}, nil
}

func validateCart(items []CartLine) error {
	if len(items) == 0 {
		return ErrEmptyCart
	}
	for _, line := range items {
		if line.Quantity <= 0 {
			return &LineError{ProductID: line.ProductID, Err: ErrBadQuantity}
		}
		if line.ProductID == "" {
			return fmt.Errorf("%w: missing product id", ErrBadQuantity)
		}
	}
	return nil
}

// newMerchantReference generates an externally visible, collision-resistant
// order reference
func newMerchantReference() string {
	suffix := strings.ToUpper(uuid.New().String()[:8])
	return fmt.Sprintf("LK-%s-%s", time.Now().UTC().Format("20060102150405"), suffix)
}
