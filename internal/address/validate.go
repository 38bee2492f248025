package address

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/mapleandrye/backend-bakeshop/internal/resilience"
)

// ErrAddressNotFound is returned when the carrier cannot standardize the
// submitted address.
var ErrAddressNotFound = errors.New("address: no match for submitted address")

// TokenSource mints carrier API bearer tokens.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Input is a raw address as typed at checkout.
type Input struct {
	Street string `json:"street" validate:"required"`
	City   string `json:"city"`
	State  string `json:"state"`
	ZIP    string `json:"zip"`
}

// Standardized is the carrier's canonical form of an address.
type Standardized struct {
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state"`
	ZIP5     string `json:"zip5"`
	ZIP4     string `json:"zip4,omitempty"`
	Vacant   bool   `json:"vacant,omitempty"`
	Business bool   `json:"business,omitempty"`
}

// Validator standardizes addresses against the USPS addresses API.
type Validator struct {
	BaseURL string
	Tokens  TokenSource
	HTTP    resilience.HTTPClient
}

// Validate standardizes an address. State names are mapped to codes before
// the call so "florida" works as well as "FL".
func (v *Validator) Validate(ctx context.Context, in Input) (Standardized, error) {
	if v.Tokens == nil {
		return Standardized{}, errors.New("address: token source not configured")
	}
	token, err := v.Tokens.AccessToken(ctx)
	if err != nil {
		return Standardized{}, err
	}

	state := in.State
	if code := StateCode(state); code != "" {
		state = code
	}
	query := url.Values{}
	query.Set("streetAddress", in.Street)
	if in.City != "" {
		query.Set("city", in.City)
	}
	if state != "" {
		query.Set("state", state)
	}
	if in.ZIP != "" {
		query.Set("ZIPCode", in.ZIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.BaseURL+"/addresses/v3/address?"+query.Encode(), nil)
	if err != nil {
		return Standardized{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.HTTP.Do(ctx, req)
	if err != nil {
		return Standardized{}, fmt.Errorf("address lookup: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		return Standardized{}, ErrAddressNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return Standardized{}, fmt.Errorf("address lookup: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out struct {
		Address struct {
			StreetAddress string `json:"streetAddress"`
			City          string `json:"city"`
			State         string `json:"state"`
			ZIPCode       string `json:"ZIPCode"`
			ZIPPlus4      string `json:"ZIPPlus4"`
		} `json:"address"`
		AdditionalInfo struct {
			Vacant   string `json:"vacant"`
			Business string `json:"business"`
		} `json:"additionalInfo"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Standardized{}, fmt.Errorf("address lookup: decode: %w", err)
	}
	if out.Address.StreetAddress == "" {
		return Standardized{}, ErrAddressNotFound
	}
	return Standardized{
		Street:   out.Address.StreetAddress,
		City:     out.Address.City,
		State:    out.Address.State,
		ZIP5:     out.Address.ZIPCode,
		ZIP4:     out.Address.ZIPPlus4,
		Vacant:   out.AdditionalInfo.Vacant == "Y",
		Business: out.AdditionalInfo.Business == "Y",
	}, nil
}
