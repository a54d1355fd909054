package models

import "time"

// Event types
const (
	EventTypeIPNReceived      = "IPN_RECEIVED"
	EventTypePaymentCompleted = "PAYMENT_COMPLETED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// IPNReceivedEvent is published when the provider pushes a payment
// notification; the webhook handler acknowledges immediately and the
// reconciliation worker picks the event up from here
type IPNReceivedEvent struct {
	BaseEvent
	TrackingID        string `json:"tracking_id"`
	MerchantReference string `json:"merchant_reference"`
	NotificationType  string `json:"notification_type"`
}

// PaymentCompletedEvent is published on the first transition into COMPLETED
type PaymentCompletedEvent struct {
	BaseEvent
	PaymentID         int64  `json:"payment_id"`
	TrackingID        string `json:"tracking_id"`
	MerchantReference string `json:"merchant_reference"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	ConfirmationCode  string `json:"confirmation_code,omitempty"`
}

// PaymentFailedEvent is published on the first transition into
// FAILED, REVERSED or INVALID
type PaymentFailedEvent struct {
	BaseEvent
	PaymentID         int64  `json:"payment_id"`
	TrackingID        string `json:"tracking_id"`
	MerchantReference string `json:"merchant_reference"`
	Status            string `json:"status"`
	Reason            string `json:"reason,omitempty"`
}
