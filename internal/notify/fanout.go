package notify

import (
	"context"

	"littlekobe-store/internal/models"
	"littlekobe-store/internal/util"

	"go.uber.org/zap"
)

// Mailer delivers an order confirmation email
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, to, heading string, rec *models.PaymentRecord) error
}

// Messenger delivers an order confirmation chat message
type Messenger interface {
	SendOrderConfirmation(ctx context.Context, to, heading string, rec *models.PaymentRecord) error
}

// MerchantContact is where merchant-side notifications go
type MerchantContact struct {
	Email string
	Phone string
}

// FanOut delivers an order confirmation to both audiences over both channels.
// Every delivery is attempted regardless of how the others fare; failures are
// logged and counted, never escalated to the payment flow.
type FanOut struct {
	mailer    Mailer
	messenger Messenger
	merchant  MerchantContact
	logger    *zap.Logger
}

// NewFanOut creates a new notification fan-out
func NewFanOut(mailer Mailer, messenger Messenger, merchant MerchantContact) *FanOut {
	return &FanOut{
		mailer:    mailer,
		messenger: messenger,
		merchant:  merchant,
		logger:    util.GetLogger(),
	}
}

// NotifyOrderCompleted sends all four confirmations for a completed payment
func (f *FanOut) NotifyOrderCompleted(ctx context.Context, rec *models.PaymentRecord) {
	deliveries := []struct {
		channel  string
		audience string
		skip     bool
		send     func() error
	}{
		{
			channel: "email", audience: "customer",
			skip: rec.CustomerEmail == "",
			send: func() error {
				return f.mailer.SendOrderConfirmation(ctx, rec.CustomerEmail, "Thank you for your order!", rec)
			},
		},
		{
			channel: "email", audience: "merchant",
			skip: f.merchant.Email == "",
			send: func() error {
				return f.mailer.SendOrderConfirmation(ctx, f.merchant.Email, "New paid order received", rec)
			},
		},
		{
			channel: "chat", audience: "customer",
			skip: rec.CustomerPhone == "",
			send: func() error {
				return f.messenger.SendOrderConfirmation(ctx, rec.CustomerPhone, "Thank you for your order!", rec)
			},
		},
		{
			channel: "chat", audience: "merchant",
			skip: f.merchant.Phone == "",
			send: func() error {
				return f.messenger.SendOrderConfirmation(ctx, f.merchant.Phone, "New paid order received", rec)
			},
		},
	}

	for _, d := range deliveries {
		if d.skip {
			util.NotificationsTotal.WithLabelValues(d.channel, d.audience, "skipped").Inc()
			continue
		}
		if err := d.send(); err != nil {
			util.NotificationsTotal.WithLabelValues(d.channel, d.audience, "failed").Inc()
			f.logger.Warn("Order notification delivery failed",
				zap.String("channel", d.channel),
				zap.String("audience", d.audience),
				zap.String("merchant_reference", rec.MerchantReference),
				zap.Error(err))
			continue
		}
		util.NotificationsTotal.WithLabelValues(d.channel, d.audience, "sent").Inc()
	}
}
