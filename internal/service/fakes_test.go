package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"littlekobe-store/internal/gateway"
	"littlekobe-store/internal/models"
	"littlekobe-store/internal/store"
)

type fakeInventory struct {
	mu       sync.Mutex
	records  map[string]*models.InventoryRecord
	released map[string]int
}

func newFakeInventory(records ...*models.InventoryRecord) *fakeInventory {
	m := make(map[string]*models.InventoryRecord)
	for _, rec := range records {
		m[rec.ProductID] = rec
	}
	return &fakeInventory{records: m, released: make(map[string]int)}
}

func (f *fakeInventory) GetInventory(ctx context.Context, productID string) (*models.InventoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (f *fakeInventory) DecrementStock(ctx context.Context, productID string, amount int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[productID]
	if !ok {
		return 0, store.ErrNotFound
	}
	if rec.Quantity < amount {
		return 0, store.ErrInsufficientStock
	}
	rec.Quantity -= amount
	return rec.Quantity, nil
}

func (f *fakeInventory) IncrementStock(ctx context.Context, productID string, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[productID]
	if !ok {
		return store.ErrNotFound
	}
	rec.Quantity += amount
	f.released[productID] += amount
	return nil
}

func (f *fakeInventory) quantity(productID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[productID].Quantity
}

type fakePayments struct {
	mu      sync.Mutex
	nextID  int64
	records map[string]*models.PaymentRecord // by tracking id
	byID    map[int64]*models.PaymentRecord
	failed  []int64
	touched int
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		records: make(map[string]*models.PaymentRecord),
		byID:    make(map[int64]*models.PaymentRecord),
	}
}

func (f *fakePayments) CreatePendingPayment(ctx context.Context, rec *models.PaymentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rec.ID = f.nextID
	rec.Status = models.PaymentStatusPending
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	f.byID[rec.ID] = rec
	return nil
}

func (f *fakePayments) AttachTrackingID(ctx context.Context, paymentID int64, trackingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byID[paymentID]
	if !ok {
		return fmt.Errorf("payment %d not found", paymentID)
	}
	if rec.TrackingID != nil {
		return fmt.Errorf("payment %d already has a tracking id", paymentID)
	}
	rec.TrackingID = &trackingID
	f.records[trackingID] = rec
	return nil
}

func (f *fakePayments) MarkFailedByID(ctx context.Context, paymentID int64, statusDescription string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byID[paymentID]
	if !ok {
		return fmt.Errorf("payment %d not found", paymentID)
	}
	if rec.Status == models.PaymentStatusPending {
		rec.Status = models.PaymentStatusFailed
		rec.StatusDescription = &statusDescription
		f.failed = append(f.failed, paymentID)
	}
	return nil
}

func (f *fakePayments) CompleteTransition(ctx context.Context, trackingID, status, confirmationCode, statusDescription string) (*models.PaymentRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[trackingID]
	if !ok {
		return nil, false, nil
	}
	if rec.Status != models.PaymentStatusPending {
		f.touched++
		return rec, false, nil
	}
	rec.Status = status
	if confirmationCode != "" {
		rec.ConfirmationCode = &confirmationCode
	}
	if statusDescription != "" {
		rec.StatusDescription = &statusDescription
	}
	now := time.Now()
	rec.LastCheckedAt = &now
	rec.UpdatedAt = now
	return rec, true, nil
}

func (f *fakePayments) TouchStatusCheck(ctx context.Context, trackingID, statusDescription string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched++
	if rec, ok := f.records[trackingID]; ok {
		now := time.Now()
		rec.LastCheckedAt = &now
	}
	return nil
}

func (f *fakePayments) GetPaymentByTrackingID(ctx context.Context, trackingID string) (*models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[trackingID]
	if !ok {
		return nil, nil
	}
	return rec, nil
}

type fakeGateway struct {
	mu            sync.Mutex
	submitResp    *gateway.SubmitOrderResponse
	submitErr     error
	statusResp    *gateway.TransactionStatus
	statusErr     error
	submitCalls   int
	statusCalls   int
	lastSubmitted *gateway.SubmitOrderRequest
}

func (f *fakeGateway) SubmitOrder(ctx context.Context, req *gateway.SubmitOrderRequest) (*gateway.SubmitOrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	f.lastSubmitted = req
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.submitResp, nil
}

func (f *fakeGateway) QueryStatus(ctx context.Context, trackingID string) (*gateway.TransactionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.statusResp, nil
}

type fakeCatalog struct {
	products map[string]*models.Product
}

func (f *fakeCatalog) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	if p, ok := f.products[productID]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("product %s not found in catalog", productID)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []*models.PaymentRecord
}

func (f *fakeNotifier) NotifyOrderCompleted(ctx context.Context, rec *models.PaymentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rec)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePublisher struct {
	mu        sync.Mutex
	completed []*models.PaymentCompletedEvent
	failed    []*models.PaymentFailedEvent
}

func (f *fakePublisher) PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, event)
	return nil
}

func (f *fakePublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, event)
	return nil
}
