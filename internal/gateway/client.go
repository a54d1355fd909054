package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"littlekobe-store/internal/models"
	"littlekobe-store/internal/util"

	"go.uber.org/zap"
)

// Per-operation timeouts. Submission gets more headroom because the provider
// validates the whole order synchronously.
const (
	authTimeout   = 10 * time.Second
	submitTimeout = 20 * time.Second
	statusTimeout = 10 * time.Second
)

// Client talks to the external payment provider's REST API. All provider I/O
// is confined here so the orchestrator and reconciliation service can be
// tested against a fake.
type Client struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	httpClient     *http.Client
	logger         *zap.Logger
}

// NewClient creates a new payment gateway client
func NewClient(baseURL, consumerKey, consumerSecret string) *Client {
	return &Client{
		baseURL:        baseURL,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		httpClient:     &http.Client{},
		logger:         util.GetLogger(),
	}
}

// SubmitOrderRequest is the order submission payload
type SubmitOrderRequest struct {
	MerchantReference string         `json:"id"`
	Amount            int64          `json:"amount"`
	Currency          string         `json:"currency"`
	Description       string         `json:"description"`
	CallbackURL       string         `json:"callback_url"`
	NotificationID    string         `json:"notification_id"`
	BillingAddress    models.Address `json:"billing_address"`
	CustomerEmail     string         `json:"email_address"`
	CustomerPhone     string         `json:"phone_number"`
}

// SubmitOrderResponse carries the provider's acceptance of a submission
type SubmitOrderResponse struct {
	TrackingID  string `json:"order_tracking_id"`
	RedirectURL string `json:"redirect_url"`
}

// TransactionStatus is the provider's view of a submitted transaction
type TransactionStatus struct {
	StatusCode        int    `json:"status_code"`
	StatusDescription string `json:"payment_status_description"`
	ConfirmationCode  string `json:"confirmation_code"`
	PaymentMethod     string `json:"payment_method"`
	Amount            int64  `json:"amount"`
}

// IPNRegistration describes a registered notification channel
type IPNRegistration struct {
	ID     string `json:"ipn_id"`
	URL    string `json:"url"`
	Method string `json:"ipn_notification_type"`
}

// RefundRequest asks the provider to return funds for a confirmed payment
type RefundRequest struct {
	ConfirmationCode string `json:"confirmation_code"`
	Amount           int64  `json:"amount"`
	Username         string `json:"username"`
	Remarks          string `json:"remarks"`
}

type tokenResponse struct {
	Token  string         `json:"token"`
	Expiry string         `json:"expiryDate"`
	Error  *providerError `json:"error"`
}

type providerError struct {
	Type    string `json:"error_type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RequestAccessToken exchanges the merchant credentials for a short-lived
// bearer token. Tokens are fetched fresh per logical operation.
func (c *Client) RequestAccessToken(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{
		"consumer_key":    c.consumerKey,
		"consumer_secret": c.consumerSecret,
	})
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.post(ctx, "/api/Auth/RequestToken", "", body)
	util.GatewayRequestDuration.WithLabelValues("auth").Observe(time.Since(start).Seconds())
	if err != nil {
		util.GatewayErrorsTotal.WithLabelValues("auth", "unavailable").Inc()
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		util.GatewayErrorsTotal.WithLabelValues("auth", "rejected").Inc()
		return "", fmt.Errorf("%w: provider returned %d", ErrAuth, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("%w: decoding token response: %v", ErrAuth, err)
	}
	if tr.Error != nil && tr.Error.Code != "" {
		util.GatewayErrorsTotal.WithLabelValues("auth", "rejected").Inc()
		return "", fmt.Errorf("%w: %s", ErrAuth, tr.Error.Message)
	}
	if tr.Token == "" {
		return "", fmt.Errorf("%w: empty token", ErrAuth)
	}
	return tr.Token, nil
}

// SubmitOrder submits an order and returns the provider tracking id plus the
// URL the customer's browser must be sent to
func (c *Client) SubmitOrder(ctx context.Context, req *SubmitOrderRequest) (*SubmitOrderResponse, error) {
	token, err := c.RequestAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	var out SubmitOrderResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/Transactions/SubmitOrderRequest", token, req, &out, "submit"); err != nil {
		return nil, err
	}
	if out.TrackingID == "" || out.RedirectURL == "" {
		return nil, rejected(http.StatusBadGateway, "provider accepted order %s without tracking id or redirect URL", req.MerchantReference)
	}

	c.logger.Info("Order submitted to gateway",
		zap.String("merchant_reference", req.MerchantReference),
		zap.String("tracking_id", out.TrackingID))
	return &out, nil
}

// QueryStatus fetches the provider's current view of a transaction
func (c *Client) QueryStatus(ctx context.Context, trackingID string) (*TransactionStatus, error) {
	token, err := c.RequestAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	path := "/api/Transactions/GetTransactionStatus?orderTrackingId=" + trackingID
	var out TransactionStatus
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &out, "status"); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestRefund asks the provider to refund a confirmed payment. Administrative;
// not on the checkout path.
func (c *Client) RequestRefund(ctx context.Context, req *RefundRequest) error {
	token, err := c.RequestAccessToken(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	var out struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	return c.doJSON(ctx, http.MethodPost, "/api/Transactions/RefundRequest", token, req, &out, "refund")
}

// CancelOrder cancels a still-pending order at the provider
func (c *Client) CancelOrder(ctx context.Context, trackingID string) error {
	token, err := c.RequestAccessToken(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	body := map[string]string{"order_tracking_id": trackingID}
	var out struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	return c.doJSON(ctx, http.MethodPost, "/api/Transactions/CancelOrder", token, body, &out, "cancel")
}

// RegisterIPNURL registers the webhook endpoint with the provider. One-time
// setup; the returned id must accompany every order submission.
func (c *Client) RegisterIPNURL(ctx context.Context, url, method string) (*IPNRegistration, error) {
	token, err := c.RequestAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	body := map[string]string{"url": url, "ipn_notification_type": method}
	var out IPNRegistration
	if err := c.doJSON(ctx, http.MethodPost, "/api/URLSetup/RegisterIPN", token, body, &out, "register_ipn"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListIPNURLs lists the notification channels registered for this merchant
func (c *Client) ListIPNURLs(ctx context.Context) ([]IPNRegistration, error) {
	token, err := c.RequestAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	var out []IPNRegistration
	if err := c.doJSON(ctx, http.MethodGet, "/api/URLSetup/GetIpnList", token, nil, &out, "list_ipn"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path, token string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.httpClient.Do(req)
}

// doJSON performs an authenticated JSON round trip and maps failures onto the
// gateway error taxonomy
func (c *Client) doJSON(ctx context.Context, method, path, token string, in, out interface{}, operation string) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", operation, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	util.GatewayRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		util.GatewayErrorsTotal.WithLabelValues(operation, "unavailable").Inc()
		return unavailable(http.StatusGatewayTimeout, "%s: %v", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		util.GatewayErrorsTotal.WithLabelValues(operation, "unavailable").Inc()
		return unavailable(http.StatusBadGateway, "%s: reading response: %v", operation, err)
	}

	if resp.StatusCode >= 500 {
		util.GatewayErrorsTotal.WithLabelValues(operation, "unavailable").Inc()
		return unavailable(resp.StatusCode, "%s: provider returned %d", operation, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		util.GatewayErrorsTotal.WithLabelValues(operation, "rejected").Inc()
		return rejected(resp.StatusCode, "%s: %s", operation, providerMessage(raw))
	}

	// 2xx responses may still carry a structured business error
	var probe struct {
		Error *providerError `json:"error"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.Error != nil && probe.Error.Code != "" {
		util.GatewayErrorsTotal.WithLabelValues(operation, "rejected").Inc()
		return rejected(http.StatusUnprocessableEntity, "%s: %s", operation, probe.Error.Message)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return unavailable(http.StatusBadGateway, "%s: decoding response: %v", operation, err)
		}
	}
	return nil
}

func providerMessage(raw []byte) string {
	var probe struct {
		Error   *providerError `json:"error"`
		Message string         `json:"message"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil {
		if probe.Error != nil && probe.Error.Message != "" {
			return probe.Error.Message
		}
		if probe.Message != "" {
			return probe.Message
		}
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return string(raw)
}
