package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is an httptest-backed provider with the token endpoint wired
// and per-path handlers for everything else
type fakeProvider struct {
	t        *testing.T
	token    string
	authFail bool
	handlers map[string]http.HandlerFunc
}

func newFakeProvider(t *testing.T) (*fakeProvider, *httptest.Server) {
	p := &fakeProvider{t: t, token: "tok-abc", handlers: make(map[string]http.HandlerFunc)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/Auth/RequestToken" {
			if p.authFail {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var creds map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			assert.Equal(t, "key-1", creds["consumer_key"])
			assert.Equal(t, "secret-1", creds["consumer_secret"])
			json.NewEncoder(w).Encode(map[string]string{"token": p.token})
			return
		}
		h, ok := p.handlers[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request to %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, "Bearer "+p.token, r.Header.Get("Authorization"))
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return p, srv
}

func TestRequestAccessToken(t *testing.T) {
	_, srv := newFakeProvider(t)
	client := NewClient(srv.URL, "key-1", "secret-1")

	token, err := client.RequestAccessToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "tok-abc", token)
}

func TestRequestAccessTokenRejectedCredentials(t *testing.T) {
	p, srv := newFakeProvider(t)
	p.authFail = true
	client := NewClient(srv.URL, "key-1", "secret-1")

	_, err := client.RequestAccessToken(context.Background())

	assert.ErrorIs(t, err, ErrAuth)
}

func TestSubmitOrder(t *testing.T) {
	p, srv := newFakeProvider(t)
	p.handlers["/api/Transactions/SubmitOrderRequest"] = func(w http.ResponseWriter, r *http.Request) {
		var req SubmitOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "LK-test-1", req.MerchantReference)
		assert.Equal(t, int64(3400), req.Amount)
		assert.Equal(t, "ipn-123", req.NotificationID)
		json.NewEncoder(w).Encode(map[string]string{
			"order_tracking_id": "trk-77",
			"redirect_url":      "https://pay.example/trk-77",
		})
	}
	client := NewClient(srv.URL, "key-1", "secret-1")

	resp, err := client.SubmitOrder(context.Background(), &SubmitOrderRequest{
		MerchantReference: "LK-test-1",
		Amount:            3400,
		Currency:          "JPY",
		CallbackURL:       "https://shop.example/payment-callback",
		NotificationID:    "ipn-123",
	})

	require.NoError(t, err)
	assert.Equal(t, "trk-77", resp.TrackingID)
	assert.Equal(t, "https://pay.example/trk-77", resp.RedirectURL)
}

func TestSubmitOrderMissingTrackingID(t *testing.T) {
	p, srv := newFakeProvider(t)
	p.handlers["/api/Transactions/SubmitOrderRequest"] = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}
	client := NewClient(srv.URL, "key-1", "secret-1")

	_, err := client.SubmitOrder(context.Background(), &SubmitOrderRequest{MerchantReference: "LK-test-1"})

	assert.True(t, IsRejected(err))
}

func TestSubmitOrderEmbeddedProviderError(t *testing.T) {
	p, srv := newFakeProvider(t)
	p.handlers["/api/Transactions/SubmitOrderRequest"] = func(w http.ResponseWriter, r *http.Request) {
		// 200 with a structured business error in the body
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{
				"error_type": "api_error",
				"code":       "invalid_currency",
				"message":    "currency not supported",
			},
		})
	}
	client := NewClient(srv.URL, "key-1", "secret-1")

	_, err := client.SubmitOrder(context.Background(), &SubmitOrderRequest{MerchantReference: "LK-test-1"})

	require.Error(t, err)
	assert.True(t, IsRejected(err))
	assert.Contains(t, err.Error(), "currency not supported")
}

func TestQueryStatus(t *testing.T) {
	p, srv := newFakeProvider(t)
	p.handlers["/api/Transactions/GetTransactionStatus"] = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "trk-77", r.URL.Query().Get("orderTrackingId"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status_code":                1,
			"payment_status_description": "Completed",
			"confirmation_code":          "CONF-9",
			"payment_method":             "Visa",
			"amount":                     3400,
		})
	}
	client := NewClient(srv.URL, "key-1", "secret-1")

	status, err := client.QueryStatus(context.Background(), "trk-77")

	require.NoError(t, err)
	assert.Equal(t, 1, status.StatusCode)
	assert.Equal(t, "Completed", status.StatusDescription)
	assert.Equal(t, "CONF-9", status.ConfirmationCode)
	assert.Equal(t, "Visa", status.PaymentMethod)
}

func TestServerErrorIsUnavailable(t *testing.T) {
	p, srv := newFakeProvider(t)
	p.handlers["/api/Transactions/GetTransactionStatus"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	client := NewClient(srv.URL, "key-1", "secret-1")

	_, err := client.QueryStatus(context.Background(), "trk-77")

	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.False(t, IsRejected(err))

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.True(t, gwErr.Retryable)
}

func TestClientErrorIsRejected(t *testing.T) {
	p, srv := newFakeProvider(t)
	p.handlers["/api/Transactions/SubmitOrderRequest"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"message": "amount must be positive"})
	}
	client := NewClient(srv.URL, "key-1", "secret-1")

	_, err := client.SubmitOrder(context.Background(), &SubmitOrderRequest{MerchantReference: "LK-test-1"})

	require.Error(t, err)
	assert.True(t, IsRejected(err))
	assert.Contains(t, err.Error(), "amount must be positive")
}

func TestUnreachableProviderIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-abc"})
	}))
	client := NewClient(srv.URL, "key-1", "secret-1")
	srv.Close() // token exchange hits a dead socket

	_, err := client.RequestAccessToken(context.Background())

	assert.ErrorIs(t, err, ErrAuth)
}

func TestRegisterIPNURL(t *testing.T) {
	p, srv := newFakeProvider(t)
	p.handlers["/api/URLSetup/RegisterIPN"] = func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://shop.example/webhooks/payment/ipn", body["url"])
		assert.Equal(t, "GET", body["ipn_notification_type"])
		json.NewEncoder(w).Encode(map[string]string{
			"ipn_id":                "ipn-555",
			"url":                   body["url"],
			"ipn_notification_type": "GET",
		})
	}
	client := NewClient(srv.URL, "key-1", "secret-1")

	reg, err := client.RegisterIPNURL(context.Background(), "https://shop.example/webhooks/payment/ipn", "GET")

	require.NoError(t, err)
	assert.Equal(t, "ipn-555", reg.ID)
}

func TestCancelOrder(t *testing.T) {
	p, srv := newFakeProvider(t)
	p.handlers["/api/Transactions/CancelOrder"] = func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "trk-77", body["order_tracking_id"])
		json.NewEncoder(w).Encode(map[string]string{"status": "200", "message": "cancelled"})
	}
	client := NewClient(srv.URL, "key-1", "secret-1")

	err := client.CancelOrder(context.Background(), "trk-77")

	assert.NoError(t, err)
}
