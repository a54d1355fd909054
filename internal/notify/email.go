package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"littlekobe-store/internal/models"
)

// SMTPConfig holds mail transport settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailSender delivers order confirmations over SMTP
type EmailSender struct {
	cfg SMTPConfig
}

// NewEmailSender creates a new SMTP email sender
func NewEmailSender(cfg SMTPConfig) *EmailSender {
	return &EmailSender{cfg: cfg}
}

var orderEmailTmpl = template.Must(template.New("order_confirmation").Parse(`
<h2>{{.Heading}}</h2>
<p>Order reference: <strong>{{.Record.MerchantReference}}</strong></p>
{{if .Record.ConfirmationCode}}<p>Payment confirmation: {{.Record.ConfirmationCode}}</p>{{end}}
<table>
  <tr><th>Item</th><th>Qty</th><th>Unit price</th></tr>
  {{range .Record.CartItems}}
  <tr><td>{{.Name}}</td><td>{{.Quantity}}</td><td>{{.UnitPrice}}</td></tr>
  {{end}}
</table>
<p>Total: {{.Record.Amount}} {{.Record.Currency}}</p>
<p>Delivery: {{.Record.DeliveryAddress.Line1}}, {{.Record.DeliveryAddress.City}}, {{.Record.DeliveryAddress.Country}}</p>
`))

// Send delivers a single HTML email
func (e *EmailSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n%s\r\n%s", to, subject, mime, htmlBody))

	return smtp.SendMail(addr, auth, e.cfg.From, []string{to}, msg)
}

// SendOrderConfirmation renders the confirmation template from the payment
// record snapshot and delivers it. Everything in the body comes from the
// snapshot, never from a live catalog lookup.
func (e *EmailSender) SendOrderConfirmation(ctx context.Context, to, heading string, rec *models.PaymentRecord) error {
	var body bytes.Buffer
	data := struct {
		Heading string
		Record  *models.PaymentRecord
	}{heading, rec}

	if err := orderEmailTmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("rendering order email: %w", err)
	}

	subject := fmt.Sprintf("Little Kobe order %s", rec.MerchantReference)
	return e.Send(ctx, to, subject, body.String())
}
