package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mapleandrye/backend-bakeshop/internal/common"
	"github.com/mapleandrye/backend-bakeshop/internal/order"
)

// Handler exposes checkout and order lookup over HTTP.
type Handler struct {
	Service  *Service
	Validate *validator.Validate
}

// Checkout places an order from a cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout not configured", nil)
		return
	}
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			details := map[string]string{}
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) {
				for _, fe := range fieldErrs {
					details[fe.Field()] = fe.Tag()
				}
			}
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid checkout payload", details)
			return
		}
	}

	result, err := h.Service.Checkout(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, ErrCartNotFound):
		common.JSONError(w, http.StatusNotFound, "CART_NOT_FOUND", "cart not found", nil)
		return
	case errors.Is(err, ErrCartEmpty):
		common.JSONError(w, http.StatusUnprocessableEntity, "CART_EMPTY", "cart has no items", nil)
		return
	case errors.Is(err, ErrProviderUnknown):
		common.JSONError(w, http.StatusBadRequest, "PROVIDER_NOT_SUPPORTED", "unknown payment provider", nil)
		return
	case errors.Is(err, ErrInvalidAddress):
		common.JSONError(w, http.StatusBadRequest, "INVALID_ADDRESS", err.Error(), nil)
		return
	default:
		common.JSONError(w, http.StatusBadGateway, "PAYMENT_ERROR", "unable to open payment", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": result})
}

// GetOrder returns order status by id.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	o, err := h.Service.Orders.Get(id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"order": o}})
}
