package service

import (
	"context"

	"littlekobe-store/internal/gateway"
	"littlekobe-store/internal/models"
)

// InventoryStore is the slice of the store the checkout path needs
type InventoryStore interface {
	GetInventory(ctx context.Context, productID string) (*models.InventoryRecord, error)
	DecrementStock(ctx context.Context, productID string, amount int) (int, error)
	IncrementStock(ctx context.Context, productID string, amount int) error
}

// PaymentStore is the slice of the store the payment pipeline needs
type PaymentStore interface {
	CreatePendingPayment(ctx context.Context, rec *models.PaymentRecord) error
	AttachTrackingID(ctx context.Context, paymentID int64, trackingID string) error
	MarkFailedByID(ctx context.Context, paymentID int64, statusDescription string) error
	CompleteTransition(ctx context.Context, trackingID, status, confirmationCode, statusDescription string) (*models.PaymentRecord, bool, error)
	TouchStatusCheck(ctx context.Context, trackingID, statusDescription string) error
	GetPaymentByTrackingID(ctx context.Context, trackingID string) (*models.PaymentRecord, error)
}

// Gateway is the provider client surface the services depend on, so both the
// orchestrator and the reconciler can be tested against a fake
type Gateway interface {
	SubmitOrder(ctx context.Context, req *gateway.SubmitOrderRequest) (*gateway.SubmitOrderResponse, error)
	QueryStatus(ctx context.Context, trackingID string) (*gateway.TransactionStatus, error)
}

// ProductCatalog resolves product display data for cart snapshots
type ProductCatalog interface {
	GetProduct(ctx context.Context, productID string) (*models.Product, error)
}

// Notifier fans out order confirmations
type Notifier interface {
	NotifyOrderCompleted(ctx context.Context, rec *models.PaymentRecord)
}

// Publisher emits payment lifecycle events
type Publisher interface {
	PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}
