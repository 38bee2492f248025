package address

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/mapleandrye/backend-bakeshop/internal/common"
)

// Handler exposes state lookup and address standardization.
type Handler struct {
	Validator *Validator
	Validate  *validator.Validate
}

// States answers typeahead queries against the state table.
func (h *Handler) States(w http.ResponseWriter, r *http.Request) {
	matches := FindMatches(r.URL.Query().Get("q"))
	if matches == nil {
		matches = []State{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"states": matches}})
}

// Standardize proxies an address to the carrier for canonicalization.
func (h *Handler) Standardize(w http.ResponseWriter, r *http.Request) {
	if h.Validator == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "address validator not configured", nil)
		return
	}
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(in); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "street is required", nil)
			return
		}
	}

	std, err := h.Validator.Validate(r.Context(), in)
	switch {
	case err == nil:
	case errors.Is(err, ErrAddressNotFound):
		common.JSONError(w, http.StatusNotFound, "ADDRESS_NOT_FOUND", "address could not be standardized", nil)
		return
	default:
		common.JSONError(w, http.StatusBadGateway, "CARRIER_ERROR", "address lookup unavailable", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"address": std}})
}
