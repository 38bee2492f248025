package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mapleandrye/backend-bakeshop/internal/resilience"
)

// signatureTolerance bounds how stale a signed webhook timestamp may be.
const signatureTolerance = 5 * time.Minute

// Stripe implements Provider against hosted Checkout Sessions. Intents are
// created server-side over HTTPS; webhooks carry an HMAC-SHA256 signature in
// the Stripe-Signature header.
type Stripe struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	HTTP          resilience.HTTPClient
	Now           func() time.Time
}

func (s Stripe) baseURL() string {
	if u := strings.TrimSpace(s.BaseURL); u != "" {
		return u
	}
	return "https://api.stripe.com"
}

func (s Stripe) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CreateIntent opens a hosted checkout session and returns its redirect URL.
func (s Stripe) CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error) {
	if strings.TrimSpace(req.Reference) == "" {
		return IntentResponse{}, errors.New("stripe: order reference is required")
	}
	if req.Amount <= 0 {
		return IntentResponse{}, errors.New("stripe: amount must be positive")
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", req.Reference)
	form.Set("customer_email", req.BuyerEmail)
	form.Set("success_url", req.CallbackBaseURL+"/checkout/return?session_id={CHECKOUT_SESSION_ID}")
	form.Set("cancel_url", req.CallbackBaseURL+"/checkout/cancel")
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Description)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL()+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return IntentResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(s.SecretKey, "")

	resp, err := s.HTTP.Do(ctx, httpReq)
	if err != nil {
		return IntentResponse{}, fmt.Errorf("stripe: create session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return IntentResponse{}, fmt.Errorf("stripe: create session: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return IntentResponse{}, fmt.Errorf("stripe: decode session: %w", err)
	}
	if session.URL == "" {
		return IntentResponse{}, errors.New("stripe: session missing redirect url")
	}
	return IntentResponse{
		Provider:    "stripe",
		RedirectURL: session.URL,
		SessionID:   session.ID,
	}, nil
}

// SignPayload computes the v1 signature over a timestamped payload. Exposed
// for webhook tests.
func SignPayload(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook checks the Stripe-Signature header and normalises
// checkout.session events.
func (s Stripe) VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error) {
	header := r.Header.Get("Stripe-Signature")
	if header == "" {
		return WebhookVerifyResult{Valid: false, Err: errors.New("missing Stripe-Signature header")}, nil
	}

	var ts int64
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return WebhookVerifyResult{Valid: false, Err: errors.New("malformed timestamp")}, nil
			}
			ts = parsed
		case "v1":
			candidates = append(candidates, value)
		}
	}
	if ts == 0 || len(candidates) == 0 {
		return WebhookVerifyResult{Valid: false, Err: errors.New("malformed Stripe-Signature header")}, nil
	}
	if age := s.now().Sub(time.Unix(ts, 0)); age > signatureTolerance || age < -signatureTolerance {
		return WebhookVerifyResult{Valid: false, Err: errors.New("signature timestamp outside tolerance")}, nil
	}

	expected := SignPayload(s.WebhookSecret, ts, body)
	matched := false
	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			matched = true
			break
		}
	}
	if !matched {
		return WebhookVerifyResult{Valid: false, Err: errors.New("invalid signature")}, nil
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID                string `json:"id"`
				ClientReferenceID string `json:"client_reference_id"`
				AmountTotal       int64  `json:"amount_total"`
				PaymentStatus     string `json:"payment_status"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookVerifyResult{Valid: false, Err: err}, nil
	}
	if event.Data.Object.ClientReferenceID == "" {
		return WebhookVerifyResult{Valid: false, Err: errors.New("missing client_reference_id")}, nil
	}

	return WebhookVerifyResult{
		Valid:           true,
		OrderReference:  event.Data.Object.ClientReferenceID,
		Amount:          event.Data.Object.AmountTotal,
		Status:          stripeStatus(event.Type, event.Data.Object.PaymentStatus),
		TransactionID:   event.Data.Object.ID,
		ProviderPayload: body,
	}, nil
}

func stripeStatus(eventType, paymentStatus string) string {
	switch eventType {
	case "checkout.session.completed":
		if strings.EqualFold(paymentStatus, "paid") {
			return StatusPaid
		}
		return StatusPending
	case "checkout.session.expired":
		return StatusExpired
	case "checkout.session.async_payment_failed":
		return StatusFailed
	default:
		return StatusPending
	}
}
