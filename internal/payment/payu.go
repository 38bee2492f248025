package payment

import (
	"context"
	"crypto/hmac"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mapleandrye/backend-bakeshop/internal/common"
	"github.com/mapleandrye/backend-bakeshop/internal/pricing"
)

// PayU implements Provider for PayU WebCheckout. The shopper is sent to the
// gateway with a signed form POST; settlement arrives on the confirmation
// callback, also MD5-signed.
type PayU struct {
	APIKey      string
	MerchantID  string
	AccountID   string
	CheckoutURL string
	Test        bool
}

func (p PayU) checkoutURL() string {
	if u := strings.TrimSpace(p.CheckoutURL); u != "" {
		return u
	}
	if p.Test {
		return "https://sandbox.checkout.payulatam.com/ppp-web-gateway-payu/"
	}
	return "https://checkout.payulatam.com/ppp-web-gateway-payu/"
}

// formatAmount renders a checkout amount the way the gateway signs it: two
// decimals, no thousands separators.
func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// CreateIntent builds the signed WebCheckout form. No network call is made;
// the gateway only sees the shopper's browser.
func (p PayU) CreateIntent(_ context.Context, req IntentRequest) (IntentResponse, error) {
	if strings.TrimSpace(req.Reference) == "" {
		return IntentResponse{}, errors.New("payu: order reference is required")
	}
	if req.Amount <= 0 {
		return IntentResponse{}, errors.New("payu: amount must be positive")
	}
	amount := formatAmount(req.Amount)
	signature := common.Md5Hex(strings.Join([]string{
		p.APIKey, p.MerchantID, req.Reference, amount, req.Currency,
	}, "~"))

	test := "0"
	if p.Test {
		test = "1"
	}
	fields := map[string]string{
		"merchantId":      p.MerchantID,
		"accountId":       p.AccountID,
		"description":     req.Description,
		"referenceCode":   req.Reference,
		"amount":          amount,
		"tax":             "0",
		"taxReturnBase":   "0",
		"currency":        req.Currency,
		"signature":       signature,
		"test":            test,
		"buyerEmail":      req.BuyerEmail,
		"responseUrl":     req.CallbackBaseURL + "/checkout/return",
		"confirmationUrl": req.CallbackBaseURL + "/api/v1/payments/webhook/payu",
	}
	if req.BuyerName != "" {
		fields["buyerFullName"] = req.BuyerName
	}
	if req.ShipStreet != "" {
		fields["shippingAddress"] = req.ShipStreet
		fields["shippingCity"] = req.ShipCity
		fields["shippingCountry"] = "US"
		fields["zipCode"] = req.ShipZIP
	}
	return IntentResponse{
		Provider:   "payu",
		FormURL:    p.checkoutURL(),
		FormFields: fields,
	}, nil
}

// confirmationValue renders value the way the gateway signs confirmations:
// when the second decimal is zero it is dropped, so 150.00 signs as "150.0"
// but 150.26 signs as "150.26".
func confirmationValue(raw string) string {
	trimmed := strings.TrimSpace(raw)
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return trimmed
	}
	withTwo := fmt.Sprintf("%.2f", f)
	if strings.HasSuffix(withTwo, "0") {
		return fmt.Sprintf("%.1f", f)
	}
	return withTwo
}

// VerifyWebhook validates a form-encoded confirmation callback.
func (p PayU) VerifyWebhook(_ *http.Request, body []byte) (WebhookVerifyResult, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return WebhookVerifyResult{Valid: false, Err: err}, nil
	}
	reference := values.Get("reference_sale")
	if reference == "" {
		return WebhookVerifyResult{Valid: false, Err: errors.New("missing reference_sale")}, nil
	}
	statePol := values.Get("state_pol")
	value := values.Get("value")
	currency := values.Get("currency")

	expected := common.Md5Hex(strings.Join([]string{
		p.APIKey, p.MerchantID, reference, confirmationValue(value), currency, statePol,
	}, "~"))
	provided := strings.ToLower(strings.TrimSpace(values.Get("sign")))
	if provided == "" || !hmac.Equal([]byte(expected), []byte(provided)) {
		return WebhookVerifyResult{Valid: false, Err: errors.New("invalid signature")}, nil
	}

	amount, err := parseAmountDollars(value)
	if err != nil {
		return WebhookVerifyResult{Valid: false, Err: err}, nil
	}
	return WebhookVerifyResult{
		Valid:           true,
		OrderReference:  reference,
		Amount:          amount,
		Status:          payuState(statePol),
		TransactionID:   values.Get("transaction_id"),
		ProviderPayload: body,
	}, nil
}

func parseAmountDollars(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, err
	}
	return pricing.FromDollars(f), nil
}

// state_pol codes: 4 approved, 5 expired, 6 declined.
func payuState(statePol string) string {
	switch strings.TrimSpace(statePol) {
	case "4":
		return StatusPaid
	case "5":
		return StatusExpired
	case "6":
		return StatusFailed
	case "7":
		return StatusPending
	default:
		return StatusPending
	}
}
