package payment

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"

	"github.com/mapleandrye/backend-bakeshop/internal/common"
	"github.com/mapleandrye/backend-bakeshop/internal/events"
	"github.com/mapleandrye/backend-bakeshop/internal/obs"
	"github.com/mapleandrye/backend-bakeshop/internal/order"
)

// Webhook handles payment provider callbacks, including signature
// verification, replay suppression and order settlement.
type Webhook struct {
	Providers map[string]Provider
	Orders    *order.Store
	Replay    *redis.Client
	ReplayTTL time.Duration
	Events    *events.Bus
}

func (h Webhook) count(provider, result string) {
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues(provider, result).Inc()
	}
}

// Handle processes webhook callbacks for the provider named in the path.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Providers == nil || h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	providerKey := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	provider, ok := h.Providers[providerKey]
	if !ok {
		common.JSONError(w, http.StatusNotFound, "PROVIDER_NOT_SUPPORTED", "unknown provider", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	result, err := provider.VerifyWebhook(r, body)
	if err != nil {
		h.count(providerKey, "error")
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}
	if !result.Valid {
		h.count(providerKey, "invalid_signature")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}

	if h.Replay != nil && h.ReplayTTL > 0 {
		key := fmt.Sprintf("wh:%s:%s", providerKey, common.Sha256Hex(string(body)))
		ok, err := h.Replay.SetNX(r.Context(), key, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !ok {
			h.count(providerKey, "replay")
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook", nil)
			return
		}
	}

	settled, err := h.Orders.GetByReference(result.OrderReference)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			h.count(providerKey, "order_not_found")
			common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "ORDER_FETCH_ERROR", err.Error(), nil)
		return
	}
	if result.Amount > 0 && result.Amount != settled.Pricing.Total {
		h.count(providerKey, "amount_mismatch")
		common.JSONError(w, http.StatusBadRequest, "AMOUNT_MISMATCH", "provider amount mismatch", nil)
		return
	}

	ctx := r.Context()
	switch normaliseStatus(result.Status) {
	case StatusPaid:
		updated, err := h.Orders.Transition(settled.ID, order.StatusPaid, func(o *order.Order) {
			o.Provider = providerKey
			o.ProviderRef = result.TransactionID
		})
		if err != nil {
			if errors.Is(err, order.ErrBadTransition) {
				// already settled, acknowledge so the provider stops retrying
				h.count(providerKey, "already_settled")
				common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"status": string(settled.Status)}})
				return
			}
			common.JSONError(w, http.StatusInternalServerError, "ORDER_UPDATE_ERROR", err.Error(), nil)
			return
		}
		if h.Events != nil {
			// settlement already happened, failed side effects must not 500
			_, _ = h.Events.Emit(ctx, events.TopicOrderPaid, updated.ID, orderEventPayload(updated))
		}
		h.count(providerKey, "paid")
		common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"status": string(updated.Status)}})
	case StatusFailed, StatusExpired:
		updated, err := h.Orders.Transition(settled.ID, order.StatusFailed, func(o *order.Order) {
			o.Provider = providerKey
			o.ProviderRef = result.TransactionID
			o.FailureReason = strings.ToLower(result.Status)
		})
		if err != nil {
			if errors.Is(err, order.ErrBadTransition) {
				common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"status": string(settled.Status)}})
				return
			}
			common.JSONError(w, http.StatusInternalServerError, "ORDER_UPDATE_ERROR", err.Error(), nil)
			return
		}
		if h.Events != nil {
			_, _ = h.Events.Emit(ctx, events.TopicPaymentFailed, updated.ID, orderEventPayload(updated))
		}
		h.count(providerKey, "failed")
		common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"status": string(updated.Status)}})
	default:
		h.count(providerKey, "pending")
		common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"status": string(settled.Status)}})
	}
}

func orderEventPayload(o *order.Order) map[string]any {
	return map[string]any{
		"orderId":   o.ID.String(),
		"reference": o.Reference,
		"email":     o.Email,
		"total":     o.Pricing.Total,
		"currency":  o.Currency,
	}
}
