package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mapleandrye/backend-bakeshop/internal/pricing"
	"github.com/mapleandrye/backend-bakeshop/internal/resilience"
)

// ErrNoRate is returned by a Carrier when the requested mail class has no
// published price for the parcel.
var ErrNoRate = errors.New("shipping: no rate for mail class")

// RateRequest is a single rate lookup for one mail class.
type RateRequest struct {
	OriginZIP      string
	DestinationZIP string
	Dimensions     Dimensions
	MailClass      MailClass
}

// Carrier produces one quote per request. Implementations must be safe for
// concurrent use; the quoter fans calls out in parallel.
type Carrier interface {
	Rate(ctx context.Context, req RateRequest) (Rate, error)
}

// USPSClient talks to the USPS prices API. Tokens from the OAuth
// client-credentials flow are cached until shortly before expiry.
type USPSClient struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTP         resilience.HTTPClient
	Now          func() time.Time

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func (c *USPSClient) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// AccessToken returns a valid bearer token, minting one when the cache is
// empty or stale. Shared by the rates and address-lookup clients.
func (c *USPSClient) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.tokenExp) {
		return c.token, nil
	}

	payload, err := json.Marshal(map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/oauth2/v3/token", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("usps token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("usps token: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("usps token: decode: %w", err)
	}
	if out.AccessToken == "" {
		return "", errors.New("usps token: empty access_token")
	}
	c.token = out.AccessToken
	// refresh a minute early so in-flight calls never carry a stale token
	c.tokenExp = c.now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}

type uspsRateRequest struct {
	OriginZIPCode                string    `json:"originZIPCode"`
	DestinationZIPCode           string    `json:"destinationZIPCode"`
	Weight                       float64   `json:"weight"`
	Length                       float64   `json:"length"`
	Width                        float64   `json:"width"`
	Height                       float64   `json:"height"`
	MailClass                    MailClass `json:"mailClass"`
	ProcessingCategory           string    `json:"processingCategory"`
	RateIndicator                string    `json:"rateIndicator"`
	DestinationEntryFacilityType string    `json:"destinationEntryFacilityType"`
	PriceType                    string    `json:"priceType"`
}

type uspsRate struct {
	SKU               string    `json:"SKU"`
	Description       string    `json:"description"`
	Price             float64   `json:"price"`
	MailClass         MailClass `json:"mailClass"`
	Zone              string    `json:"zone"`
	ProductName       string    `json:"productName"`
	ProductDefinition string    `json:"productDefinition"`
	Commitment        *struct {
		Name                 string `json:"name"`
		ScheduleDeliveryDate string `json:"scheduleDeliveryDate"`
		GuaranteedDelivery   bool   `json:"guaranteedDelivery"`
	} `json:"commitment"`
}

// Rate implements Carrier against the USPS base-rates search endpoint.
func (c *USPSClient) Rate(ctx context.Context, req RateRequest) (Rate, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return Rate{}, err
	}

	payload, err := json.Marshal(uspsRateRequest{
		OriginZIPCode:                req.OriginZIP,
		DestinationZIPCode:           req.DestinationZIP,
		Weight:                       req.Dimensions.WeightLb,
		Length:                       req.Dimensions.Length,
		Width:                        req.Dimensions.Width,
		Height:                       req.Dimensions.Height,
		MailClass:                    req.MailClass,
		ProcessingCategory:           "MACHINABLE",
		RateIndicator:                "SP",
		DestinationEntryFacilityType: "NONE",
		PriceType:                    "RETAIL",
	})
	if err != nil {
		return Rate{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/prices/v3/base-rates/search", bytes.NewReader(payload))
	if err != nil {
		return Rate{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(ctx, httpReq)
	if err != nil {
		return Rate{}, fmt.Errorf("usps rates: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Rate{}, ErrNoRate
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return Rate{}, fmt.Errorf("usps rates: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out struct {
		Rates []uspsRate `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Rate{}, fmt.Errorf("usps rates: decode: %w", err)
	}
	if len(out.Rates) == 0 {
		return Rate{}, ErrNoRate
	}

	raw := out.Rates[0]
	rate := Rate{
		MailClass:         raw.MailClass,
		ProductName:       raw.ProductName,
		ProductDefinition: raw.ProductDefinition,
		TotalPrice:        pricing.FromDollars(raw.Price),
		Zone:              raw.Zone,
		SKU:               raw.SKU,
	}
	if rate.MailClass == "" {
		rate.MailClass = req.MailClass
	}
	if rate.ProductName == "" {
		rate.ProductName = raw.Description
	}
	if raw.Commitment != nil {
		rate.Commitment = &Commitment{
			Name:                 raw.Commitment.Name,
			ScheduleDeliveryDate: raw.Commitment.ScheduleDeliveryDate,
			GuaranteedDelivery:   raw.Commitment.GuaranteedDelivery,
		}
	}
	return rate, nil
}
