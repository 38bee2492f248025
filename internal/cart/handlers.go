package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mapleandrye/backend-bakeshop/internal/common"
	"github.com/mapleandrye/backend-bakeshop/internal/pricing"
)

// ErrProductNotFound indicates the requested product does not exist in the catalog.
var ErrProductNotFound = errors.New("product not found")

// ProductSource resolves catalog products for cart mutations.
type ProductSource interface {
	Product(ctx context.Context, id int64) (Item, error)
}

// Handler wires the cart registry to HTTP.
type Handler struct {
	Registry *Registry
	Products ProductSource
	TaxBps   int
	Currency string
}

// Create allocates a new cart and returns its identifier.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Registry == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart registry not configured", nil)
		return
	}
	id, _ := h.Registry.Create()
	common.JSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{"cartId": id.String()},
	})
}

// Get returns cart contents and a pricing preview.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	store, ok := h.resolve(w, r)
	if !ok {
		return
	}
	h.render(w, chi.URLParam(r, "id"), store)
}

// AddItem adds or increments a cart line item.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	store, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if h.Products == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "product source not configured", nil)
		return
	}
	var payload struct {
		ProductID int64 `json:"productId"`
		Qty       int   `json:"qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if payload.Qty == 0 {
		payload.Qty = 1
	}
	if payload.Qty < 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "qty must be positive", nil)
		return
	}
	item, err := h.Products.Product(r.Context(), payload.ProductID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
			return
		}
		common.JSONError(w, http.StatusBadGateway, "CONTENT_ERROR", "unable to load product", nil)
		return
	}
	if err := store.AddItem(item, payload.Qty); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	h.render(w, chi.URLParam(r, "id"), store)
}

// RemoveItem decrements a line item, removing it when the quantity hits zero.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	store, ok := h.resolve(w, r)
	if !ok {
		return
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	store.RemoveItem(productID)
	h.render(w, chi.URLParam(r, "id"), store)
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	store, ok := h.resolve(w, r)
	if !ok {
		return
	}
	store.Clear()
	h.render(w, chi.URLParam(r, "id"), store)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (*Store, bool) {
	if h.Registry == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart registry not configured", nil)
		return nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart id", nil)
		return nil, false
	}
	store, ok := h.Registry.Get(id)
	if !ok {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
		return nil, false
	}
	return store, true
}

func (h *Handler) render(w http.ResponseWriter, id string, store *Store) {
	items := store.Items()
	pricingItems := make([]pricing.Item, 0, len(items))
	responseItems := make([]map[string]any, 0, len(items))
	for _, it := range items {
		pricingItems = append(pricingItems, pricing.Item{Qty: it.Qty, UnitPrice: it.UnitPrice})
		responseItems = append(responseItems, map[string]any{
			"productId": it.ID,
			"name":      it.Name,
			"imageUrl":  it.ImageURL,
			"unitPrice": it.UnitPrice,
			"qty":       it.Qty,
			"subtotal":  it.Subtotal(),
		})
	}
	summary := pricing.Compute(pricingItems, 0, h.TaxBps, 0)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"id":    id,
			"items": responseItems,
			"count": store.Count(),
			"pricing": map[string]any{
				"subtotal": summary.Subtotal,
				"tax":      summary.Tax,
				"total":    summary.Total,
			},
			"currency": h.Currency,
		},
	})
}
