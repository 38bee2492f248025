package shipping

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/mapleandrye/backend-bakeshop/internal/common"
	"github.com/mapleandrye/backend-bakeshop/internal/events"
)

// Handler exposes rate quoting over HTTP.
type Handler struct {
	Quoter *Quoter
	Events *events.Bus
}

// Rates quotes shipping options for a destination ZIP and item count.
func (h *Handler) Rates(w http.ResponseWriter, r *http.Request) {
	if h.Quoter == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "shipping quoter not configured", nil)
		return
	}
	var payload struct {
		DestinationZip string `json:"destinationZip"`
		ItemCount      int    `json:"itemCount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}

	result, err := h.Quoter.Quote(r.Context(), payload.DestinationZip, payload.ItemCount)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidZIP):
		common.JSONError(w, http.StatusBadRequest, "INVALID_ZIP", "destinationZip must be exactly five digits", nil)
		return
	case errors.Is(err, ErrInvalidItemCount):
		common.JSONError(w, http.StatusBadRequest, "INVALID_ITEM_COUNT", "itemCount must be positive", nil)
		return
	case errors.Is(err, r.Context().Err()) && r.Context().Err() != nil:
		// client went away mid-quote, nothing useful to write
		return
	default:
		common.JSONError(w, http.StatusBadGateway, "CARRIER_ERROR", "unable to quote shipping rates", nil)
		return
	}

	if result.Fallback && h.Events != nil {
		_, _ = h.Events.Emit(r.Context(), events.TopicShippingFallbackServed, uuid.New(), map[string]any{
			"destinationZip": payload.DestinationZip,
			"itemCount":      payload.ItemCount,
		})
	}

	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"rates":      result.Rates,
			"dimensions": result.Dimensions,
			"fallback":   result.Fallback,
		},
	})
}
