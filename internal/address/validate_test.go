package address

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/mapleandrye/backend-bakeshop/internal/resilience"
)

type staticTokens struct{}

func (staticTokens) AccessToken(ctx context.Context) (string, error) {
	return "tok-abc", nil
}

func newTestValidator(t *testing.T, handler http.HandlerFunc) *Validator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Validator{
		BaseURL: srv.URL,
		Tokens:  staticTokens{},
		HTTP:    resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1},
	}
}

func TestValidateStandardizesAddress(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))
		require.Equal(t, "123 main st", r.URL.Query().Get("streetAddress"))
		// state names are mapped to codes before the carrier sees them
		require.Equal(t, "FL", r.URL.Query().Get("state"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"address": map[string]any{
				"streetAddress": "123 MAIN ST",
				"city":          "MIAMI",
				"state":         "FL",
				"ZIPCode":       "33101",
				"ZIPPlus4":      "1234",
			},
			"additionalInfo": map[string]any{"vacant": "N", "business": "Y"},
		})
	})

	std, err := v.Validate(context.Background(), Input{Street: "123 main st", City: "miami", State: "florida"})
	require.NoError(t, err)
	require.Equal(t, "123 MAIN ST", std.Street)
	require.Equal(t, "33101", std.ZIP5)
	require.Equal(t, "1234", std.ZIP4)
	require.True(t, std.Business)
	require.False(t, std.Vacant)
}

func TestValidateReportsNotFound(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := v.Validate(context.Background(), Input{Street: "nowhere"})
	require.ErrorIs(t, err, ErrAddressNotFound)
}

func newAddressRouter(v *Validator) http.Handler {
	h := &Handler{Validator: v, Validate: validator.New()}
	r := chi.NewRouter()
	r.Get("/api/v1/address/states", h.States)
	r.Post("/api/v1/address/validate", h.Standardize)
	return r
}

func TestStatesHandler(t *testing.T) {
	t.Parallel()

	router := newAddressRouter(nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/address/states?q=FL", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data struct {
			States []State `json:"states"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data.States, 1)
	require.Equal(t, "florida", body.Data.States[0].Name)
}

func TestStatesHandlerEmptyQuery(t *testing.T) {
	t.Parallel()

	router := newAddressRouter(nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/address/states", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"data":{"states":[]}}`, rec.Body.String())
}

func TestStandardizeHandlerRequiresStreet(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	router := newAddressRouter(v)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/address/validate", strings.NewReader(`{"city":"miami"}`))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}
