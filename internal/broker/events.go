package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"littlekobe-store/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishIPNReceived publishes an IPNReceived event. The webhook handler
// calls this before responding so the provider never waits on our work.
func (ep *EventPublisher) PublishIPNReceived(ctx context.Context, event *models.IPNReceivedEvent) error {
	key := fmt.Sprintf("payment-%s", event.TrackingID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPaymentCompleted publishes a PaymentCompleted event
func (ep *EventPublisher) PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	key := fmt.Sprintf("payment-%s", event.TrackingID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPaymentFailed publishes a PaymentFailed event
func (ep *EventPublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	key := fmt.Sprintf("payment-%s", event.TrackingID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming events to registered handlers
type EventHandler struct {
	onIPNReceived func(context.Context, *models.IPNReceivedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnIPNReceived registers a handler for IPNReceived events
func (eh *EventHandler) OnIPNReceived(handler func(context.Context, *models.IPNReceivedEvent) error) {
	eh.onIPNReceived = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeIPNReceived:
		if eh.onIPNReceived != nil {
			var event models.IPNReceivedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal IPNReceived event: %w", err)
			}
			return eh.onIPNReceived(ctx, &event)
		}

	default:
		// PaymentCompleted/PaymentFailed are produced for downstream
		// consumers; this service does not act on them.
	}

	return nil
}
