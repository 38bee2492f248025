package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mapleandrye/backend-bakeshop/internal/resilience"
)

func stripeCompletedEvent(reference string, amount int64) []byte {
	payload, _ := json.Marshal(map[string]any{
		"type": "checkout.session.completed",
		"data": map[string]any{
			"object": map[string]any{
				"id":                  "cs_test_123",
				"client_reference_id": reference,
				"amount_total":        amount,
				"payment_status":      "paid",
			},
		},
	})
	return payload
}

func signedStripeRequest(t *testing.T, secret string, ts int64, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook/stripe", nil)
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, SignPayload(secret, ts, body)))
	return req
}

func TestStripeCreateIntent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "sk_test_abc", user)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "BK-abc12345", r.PostForm.Get("client_reference_id"))
		require.Equal(t, "4051", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":  "cs_test_123",
			"url": "https://checkout.stripe.com/c/pay/cs_test_123",
		})
	}))
	t.Cleanup(srv.Close)

	s := Stripe{
		SecretKey: "sk_test_abc",
		BaseURL:   srv.URL,
		HTTP:      resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1},
	}
	resp, err := s.CreateIntent(context.Background(), IntentRequest{
		Reference:       "BK-abc12345",
		Description:     "Bakeshop order",
		Amount:          4051,
		Currency:        "USD",
		BuyerEmail:      "customer@example.com",
		CallbackBaseURL: "https://shop.example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "stripe", resp.Provider)
	require.Equal(t, "cs_test_123", resp.SessionID)
	require.Contains(t, resp.RedirectURL, "checkout.stripe.com")
}

func TestStripeVerifyWebhook(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := Stripe{WebhookSecret: "whsec_test", Now: func() time.Time { return now }}
	body := stripeCompletedEvent("BK-abc12345", 4051)

	result, err := s.VerifyWebhook(signedStripeRequest(t, "whsec_test", now.Unix(), body), body)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, "BK-abc12345", result.OrderReference)
	require.EqualValues(t, 4051, result.Amount)
	require.Equal(t, StatusPaid, result.Status)
	require.Equal(t, "cs_test_123", result.TransactionID)
}

func TestStripeVerifyWebhookRejectsStaleTimestamp(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := Stripe{WebhookSecret: "whsec_test", Now: func() time.Time { return now }}
	body := stripeCompletedEvent("BK-abc12345", 4051)
	stale := now.Add(-10 * time.Minute).Unix()

	result, err := s.VerifyWebhook(signedStripeRequest(t, "whsec_test", stale, body), body)
	require.NoError(t, err)
	require.False(t, result.Valid)
}

func TestStripeVerifyWebhookRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := Stripe{WebhookSecret: "whsec_test", Now: func() time.Time { return now }}
	body := stripeCompletedEvent("BK-abc12345", 4051)

	result, err := s.VerifyWebhook(signedStripeRequest(t, "whsec_other", now.Unix(), body), body)
	require.NoError(t, err)
	require.False(t, result.Valid)
}

func TestStripeVerifyWebhookExpiredSession(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := Stripe{WebhookSecret: "whsec_test", Now: func() time.Time { return now }}
	body, _ := json.Marshal(map[string]any{
		"type": "checkout.session.expired",
		"data": map[string]any{
			"object": map[string]any{
				"id":                  "cs_test_456",
				"client_reference_id": "BK-expired",
			},
		},
	})

	result, err := s.VerifyWebhook(signedStripeRequest(t, "whsec_test", now.Unix(), body), body)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, StatusExpired, result.Status)
}
