package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"littlekobe-store/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessageRoutesIPNReceived(t *testing.T) {
	handler := NewEventHandler()

	var got *models.IPNReceivedEvent
	handler.OnIPNReceived(func(ctx context.Context, event *models.IPNReceivedEvent) error {
		got = event
		return nil
	})

	event := &models.IPNReceivedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeIPNReceived,
			Timestamp: time.Now(),
		},
		TrackingID:        "trk-1",
		MerchantReference: "LK-1",
		NotificationType:  "IPNCHANGE",
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	err = handler.HandleMessage(context.Background(), kafka.Message{Value: payload})

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "trk-1", got.TrackingID)
	assert.Equal(t, "LK-1", got.MerchantReference)
}

func TestHandleMessageIgnoresDownstreamEventTypes(t *testing.T) {
	handler := NewEventHandler()
	handler.OnIPNReceived(func(ctx context.Context, event *models.IPNReceivedEvent) error {
		t.Fatal("IPN handler must not fire for a PaymentCompleted event")
		return nil
	})

	event := &models.PaymentCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-2",
			EventType: models.EventTypePaymentCompleted,
			Timestamp: time.Now(),
		},
		TrackingID: "trk-1",
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	assert.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: payload}))
}

func TestHandleMessageRejectsMalformedPayload(t *testing.T) {
	handler := NewEventHandler()

	err := handler.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})

	assert.Error(t, err)
}
