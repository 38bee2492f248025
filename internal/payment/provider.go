package payment

import (
	"context"
	"net/http"
	"strings"
)

// IntentRequest captures the information required to open a payment with a provider.
type IntentRequest struct {
	OrderID         string
	Reference       string
	Description     string
	Amount          int64
	Currency        string
	BuyerEmail      string
	BuyerName       string
	CallbackBaseURL string

	// Shipping destination, passed through to form-based gateways.
	ShipStreet string
	ShipCity   string
	ShipState  string
	ShipZIP    string
}

// IntentResponse is what the storefront needs to send the shopper to the
// provider: either a redirect URL, or a form POST target plus its fields.
type IntentResponse struct {
	Provider    string            `json:"provider"`
	RedirectURL string            `json:"redirectUrl,omitempty"`
	FormURL     string            `json:"formUrl,omitempty"`
	FormFields  map[string]string `json:"formFields,omitempty"`
	SessionID   string            `json:"sessionId,omitempty"`
}

// WebhookVerifyResult contains the normalised data extracted from a provider
// notification after signature verification.
type WebhookVerifyResult struct {
	Valid           bool
	OrderReference  string
	Amount          int64
	Status          string
	TransactionID   string
	ProviderPayload []byte
	Err             error
}

// Provider abstracts the operations required from an upstream payment provider.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error)
	VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error)
}

// Statuses every provider normalises to.
const (
	StatusPaid    = "PAID"
	StatusPending = "PENDING"
	StatusFailed  = "FAILED"
	StatusExpired = "EXPIRED"
)

func normaliseStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case StatusPaid, StatusPending, StatusFailed, StatusExpired:
		return strings.ToUpper(strings.TrimSpace(status))
	default:
		return StatusPending
	}
}
