package service

import (
	"context"
	"errors"
	"time"

	"littlekobe-store/internal/models"
	"littlekobe-store/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnknownTransaction is returned when no payment record matches the
// provider tracking id
var ErrUnknownTransaction = errors.New("no payment record for tracking id")

// ReconcileResult reports the record's state after reconciliation and whether
// this call caused the terminal transition
type ReconcileResult struct {
	Record       *models.PaymentRecord
	Transitioned bool
}

// ReconcileService resolves a payment's final status against the provider.
// Both the synchronous verify endpoint and the asynchronous IPN worker land
// here; the conditional transition in the payment store guarantees that only
// one of them fires the completion side-effects.
type ReconcileService struct {
	payments  PaymentStore
	gateway   Gateway
	notifier  Notifier
	publisher Publisher
	logger    *zap.Logger
}

// NewReconcileService creates a new reconciliation service
func NewReconcileService(payments PaymentStore, gw Gateway, notifier Notifier, publisher Publisher) *ReconcileService {
	return &ReconcileService{
		payments:  payments,
		gateway:   gw,
		notifier:  notifier,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Reconcile queries the provider for the transaction's status, applies the
// terminal transition at most once, and fires side-effects only on the call
// that caused the transition. Safe to invoke repeatedly and concurrently for
// the same tracking id.
func (s *ReconcileService) Reconcile(ctx context.Context, trackingID string) (*ReconcileResult, error) {
	ctx, span := util.StartSpan(ctx, "ReconcileService.Reconcile")
	defer span.End()

	rec, err := s.payments.GetPaymentByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrUnknownTransaction
	}

	// Already terminal: skip all provider work. This is the guard against
	// duplicate webhook deliveries and against racing the other path.
	if models.IsTerminal(rec.Status) {
		s.logger.Info("Payment already terminal, skipping reconciliation",
			zap.String("tracking_id", trackingID),
			zap.String("status", rec.Status))
		return &ReconcileResult{Record: rec, Transitioned: false}, nil
	}

	status, err := s.gateway.QueryStatus(ctx, trackingID)
	if err != nil {
		return nil, err
	}

	mapped := models.StatusFromProviderCode(status.StatusCode)
	if mapped == models.PaymentStatusPending {
		// Unresolved at the provider; record the check and stay PENDING so
		// no side-effects can fire yet.
		if err := s.payments.TouchStatusCheck(ctx, trackingID, status.StatusDescription); err != nil {
			s.logger.Error("Failed to record status check",
				zap.String("tracking_id", trackingID),
				zap.Error(err))
		}
		return &ReconcileResult{Record: rec, Transitioned: false}, nil
	}

	updated, transitioned, err := s.payments.CompleteTransition(
		ctx, trackingID, mapped, status.ConfirmationCode, status.StatusDescription)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrUnknownTransaction
	}

	if !transitioned {
		if updated.Status != mapped {
			// A late differing report against a terminal record. Forward-only
			// transitions: keep the stored status, leave this for manual
			// reconciliation.
			s.logger.Warn("Provider reported a different status for a terminal payment",
				zap.String("tracking_id", trackingID),
				zap.String("stored_status", updated.Status),
				zap.String("reported_status", mapped))
		}
		return &ReconcileResult{Record: updated, Transitioned: false}, nil
	}

	util.PaymentsTerminalTotal.WithLabelValues(mapped).Inc()
	s.logger.Info("Payment transitioned",
		zap.String("tracking_id", trackingID),
		zap.String("merchant_reference", updated.MerchantReference),
		zap.String("status", mapped))

	switch mapped {
	case models.PaymentStatusCompleted:
		util.PaymentsCompletedTotal.Inc()
		s.notifier.NotifyOrderCompleted(ctx, updated)
		s.publishCompleted(ctx, updated, status.ConfirmationCode)
	default:
		s.publishFailed(ctx, updated, mapped, status.StatusDescription)
	}

	return &ReconcileResult{Record: updated, Transitioned: true}, nil
}

func (s *ReconcileService) publishCompleted(ctx context.Context, rec *models.PaymentRecord, confirmationCode string) {
	event := &models.PaymentCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentCompleted,
			Timestamp: time.Now(),
		},
		PaymentID:         rec.ID,
		TrackingID:        derefTrackingID(rec),
		MerchantReference: rec.MerchantReference,
		Amount:            rec.Amount,
		Currency:          rec.Currency,
		ConfirmationCode:  confirmationCode,
	}
	if err := s.publisher.PublishPaymentCompleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish PaymentCompleted event",
			zap.String("merchant_reference", rec.MerchantReference),
			zap.Error(err))
	}
}

func (s *ReconcileService) publishFailed(ctx context.Context, rec *models.PaymentRecord, status, reason string) {
	event := &models.PaymentFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentFailed,
			Timestamp: time.Now(),
		},
		PaymentID:         rec.ID,
		TrackingID:        derefTrackingID(rec),
		MerchantReference: rec.MerchantReference,
		Status:            status,
		Reason:            reason,
	}
	if err := s.publisher.PublishPaymentFailed(ctx, event); err != nil {
		s.logger.Error("Failed to publish PaymentFailed event",
			zap.String("merchant_reference", rec.MerchantReference),
			zap.Error(err))
	}
}

func derefTrackingID(rec *models.PaymentRecord) string {
	if rec.TrackingID != nil {
		return *rec.TrackingID
	}
	return ""
}
