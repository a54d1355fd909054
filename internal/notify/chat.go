package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"littlekobe-store/internal/models"
)

// ChatConfig holds settings for the chat-messaging provider's REST API
type ChatConfig struct {
	BaseURL       string
	AccessToken   string
	PhoneNumberID string
}

// ChatSender delivers order confirmations through the chat-messaging provider
type ChatSender struct {
	cfg        ChatConfig
	httpClient *http.Client
}

// NewChatSender creates a new chat sender
func NewChatSender(cfg ChatConfig) *ChatSender {
	return &ChatSender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers a plain text chat message to a phone number
func (c *ChatSender) Send(ctx context.Context, to, text string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": text},
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/messages", c.cfg.BaseURL, c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("chat provider returned %d", resp.StatusCode)
	}
	return nil
}

// SendOrderConfirmation formats a confirmation message from the payment
// record snapshot and delivers it
func (c *ChatSender) SendOrderConfirmation(ctx context.Context, to, heading string, rec *models.PaymentRecord) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nOrder %s\n", heading, rec.MerchantReference)
	for _, item := range rec.CartItems {
		fmt.Fprintf(&b, "- %s x%d @ %d\n", item.Name, item.Quantity, item.UnitPrice)
	}
	fmt.Fprintf(&b, "Total: %d %s", rec.Amount, rec.Currency)
	if rec.ConfirmationCode != nil {
		fmt.Fprintf(&b, "\nConfirmation: %s", *rec.ConfirmationCode)
	}

	return c.Send(ctx, to, b.String())
}
