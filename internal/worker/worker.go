package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"littlekobe-store/internal/broker"
	"littlekobe-store/internal/models"
	"littlekobe-store/internal/service"
	"littlekobe-store/internal/util"

	"go.uber.org/zap"
)

// ipnSeenTTL collapses bursts of duplicate provider deliveries without
// blocking a later genuine re-notification for the same transaction
const ipnSeenTTL = 2 * time.Minute

// DedupStore marks provider notifications in flight so bursts of duplicate
// deliveries collapse onto one reconciliation
type DedupStore interface {
	MarkIPNSeen(ctx context.Context, trackingID string, ttl time.Duration) (bool, error)
	ClearIPNSeen(ctx context.Context, trackingID string) error
}

// IPNWorker consumes IPNReceived events and runs reconciliation in the
// background, after the webhook handler has already acknowledged the provider
type IPNWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	reconciler   *service.ReconcileService
	redis        DedupStore
	logger       *zap.Logger
}

// NewIPNWorker creates a new IPN worker
func NewIPNWorker(
	consumer *broker.Consumer,
	reconciler *service.ReconcileService,
	redis DedupStore,
) *IPNWorker {
	w := &IPNWorker{
		consumer:   consumer,
		reconciler: reconciler,
		redis:      redis,
		logger:     util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnIPNReceived(w.handleIPN)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *IPNWorker) Start(ctx context.Context) error {
	log.Println("Starting IPN worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *IPNWorker) Stop() error {
	log.Println("Stopping IPN worker...")
	return w.consumer.Close()
}

// handleIPN processes a single provider notification. There is no caller to
// report back to; failures are logged for manual follow-up and the message is
// redelivered by the broker, which the reconciler's conditional transition
// makes harmless.
func (w *IPNWorker) handleIPN(ctx context.Context, event *models.IPNReceivedEvent) error {
	if event.TrackingID == "" {
		w.logger.Warn("IPN event without tracking id, dropping",
			zap.String("event_id", event.EventID),
			zap.String("merchant_reference", event.MerchantReference))
		return nil
	}

	if w.redis != nil {
		claimed, err := w.redis.MarkIPNSeen(ctx, event.TrackingID, ipnSeenTTL)
		if err != nil {
			w.logger.Warn("IPN dedup mark failed, continuing anyway",
				zap.String("tracking_id", event.TrackingID),
				zap.Error(err))
		} else if !claimed {
			util.IPNDuplicateTotal.Inc()
			w.logger.Info("Duplicate IPN delivery skipped",
				zap.String("tracking_id", event.TrackingID))
			return nil
		}
	}

	result, err := w.reconciler.Reconcile(ctx, event.TrackingID)
	if err != nil {
		if errors.Is(err, service.ErrUnknownTransaction) {
			w.logger.Warn("IPN for unknown transaction",
				zap.String("tracking_id", event.TrackingID),
				zap.String("merchant_reference", event.MerchantReference))
			return nil
		}
		// Release the dedup mark so the redelivery is not swallowed.
		if w.redis != nil {
			if clearErr := w.redis.ClearIPNSeen(ctx, event.TrackingID); clearErr != nil {
				w.logger.Warn("Failed to clear IPN dedup mark",
					zap.String("tracking_id", event.TrackingID),
					zap.Error(clearErr))
			}
		}
		w.logger.Error("IPN reconciliation failed",
			zap.String("tracking_id", event.TrackingID),
			zap.Error(err))
		return err
	}

	// The provider may still report the payment unresolved. Drop the mark in
	// that case: the follow-up notification carrying the real status change
	// must not be collapsed as a duplicate. Only a terminal record may keep
	// its mark, where the reconciler's own guard makes duplicates free.
	if w.redis != nil && !models.IsTerminal(result.Record.Status) {
		if clearErr := w.redis.ClearIPNSeen(ctx, event.TrackingID); clearErr != nil {
			w.logger.Warn("Failed to clear IPN dedup mark",
				zap.String("tracking_id", event.TrackingID),
				zap.Error(clearErr))
		}
	}

	w.logger.Info("IPN processed",
		zap.String("tracking_id", event.TrackingID),
		zap.String("status", result.Record.Status),
		zap.Bool("transitioned", result.Transitioned))
	return nil
}
