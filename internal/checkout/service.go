package checkout

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/mapleandrye/backend-bakeshop/internal/address"
	"github.com/mapleandrye/backend-bakeshop/internal/cart"
	"github.com/mapleandrye/backend-bakeshop/internal/events"
	"github.com/mapleandrye/backend-bakeshop/internal/obs"
	"github.com/mapleandrye/backend-bakeshop/internal/order"
	"github.com/mapleandrye/backend-bakeshop/internal/payment"
	"github.com/mapleandrye/backend-bakeshop/internal/pricing"
	"github.com/mapleandrye/backend-bakeshop/internal/shipping"
)

var (
	// ErrCartNotFound indicates the cart id is unknown or expired.
	ErrCartNotFound = errors.New("checkout: cart not found")
	// ErrCartEmpty indicates a checkout against a cart with no lines.
	ErrCartEmpty = errors.New("checkout: cart is empty")
	// ErrProviderUnknown indicates a payment provider this deployment does not carry.
	ErrProviderUnknown = errors.New("checkout: unknown payment provider")
	// ErrInvalidAddress indicates a shipping destination that cannot be used.
	ErrInvalidAddress = errors.New("checkout: invalid shipping address")
)

var shipZIPRe = regexp.MustCompile(`^\d{5}$`)

// ShipTo is the destination submitted with a checkout. State accepts either a
// two-letter code or a full state name.
type ShipTo struct {
	Street string `json:"street" validate:"required"`
	City   string `json:"city" validate:"required"`
	State  string `json:"state" validate:"required"`
	ZIP    string `json:"zip" validate:"required"`
}

// Request is a validated checkout submission.
type Request struct {
	CartID       string         `json:"cartId" validate:"required,uuid4"`
	Email        string         `json:"email" validate:"required,email"`
	Name         string         `json:"name" validate:"required"`
	ShipTo       ShipTo         `json:"shipTo"`
	Provider     string         `json:"provider"`
	ShippingRate *shipping.Rate `json:"shippingRate"`
}

// shipToAddress normalises the submitted destination into an order address.
func shipToAddress(in ShipTo) (order.Address, error) {
	code := address.StateCode(in.State)
	if code == "" {
		return order.Address{}, fmt.Errorf("%w: unknown state %q", ErrInvalidAddress, in.State)
	}
	if !shipZIPRe.MatchString(strings.TrimSpace(in.ZIP)) {
		return order.Address{}, fmt.Errorf("%w: ZIP must be 5 digits", ErrInvalidAddress)
	}
	return order.Address{
		Street: strings.TrimSpace(in.Street),
		City:   strings.TrimSpace(in.City),
		State:  code,
		ZIP:    strings.TrimSpace(in.ZIP),
	}, nil
}

// Result carries the placed order and where to send the shopper next.
type Result struct {
	Order  *order.Order           `json:"order"`
	Intent payment.IntentResponse `json:"payment"`
}

// Service turns a cart into a PENDING order with an open payment intent.
type Service struct {
	Carts           *cart.Registry
	Orders          *order.Store
	Providers       map[string]payment.Provider
	DefaultProvider string
	TaxBps          int
	Currency        string
	CallbackBaseURL string
	Events          *events.Bus
}

func (s *Service) provider(name string) (string, payment.Provider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = s.DefaultProvider
	}
	provider, ok := s.Providers[key]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrProviderUnknown, key)
	}
	return key, provider, nil
}

func (s *Service) countIntent(provider, result string) {
	if obs.PaymentIntentTotal != nil {
		obs.PaymentIntentTotal.WithLabelValues(provider, result).Inc()
	}
}

// Checkout snapshots the cart, prices it, opens a payment intent and emits
// order.created. The cart is cleared only after everything else succeeded.
func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	cartID, err := uuid.Parse(req.CartID)
	if err != nil {
		return Result{}, ErrCartNotFound
	}
	store, ok := s.Carts.Get(cartID)
	if !ok {
		return Result{}, ErrCartNotFound
	}
	lines := store.Items()
	if len(lines) == 0 {
		return Result{}, ErrCartEmpty
	}

	providerKey, provider, err := s.provider(req.Provider)
	if err != nil {
		return Result{}, err
	}

	shipTo, err := shipToAddress(req.ShipTo)
	if err != nil {
		return Result{}, err
	}

	items := make([]pricing.Item, 0, len(lines))
	for _, line := range lines {
		items = append(items, pricing.Item{Qty: line.Qty, UnitPrice: line.UnitPrice})
	}
	var shippingCost pricing.Money
	if req.ShippingRate != nil {
		shippingCost = req.ShippingRate.TotalPrice
	}
	summary := pricing.Compute(items, 0, s.TaxBps, shippingCost)

	placed, err := s.Orders.Create(order.Order{
		Email:        req.Email,
		Name:         req.Name,
		ShipTo:       shipTo,
		Items:        lines,
		Pricing:      summary,
		Currency:     s.Currency,
		ShippingRate: req.ShippingRate,
	})
	if err != nil {
		return Result{}, err
	}

	intent, err := provider.CreateIntent(ctx, payment.IntentRequest{
		OrderID:         placed.ID.String(),
		Reference:       placed.Reference,
		Description:     fmt.Sprintf("Bakeshop order %s", placed.Reference),
		Amount:          summary.Total,
		Currency:        s.Currency,
		BuyerEmail:      req.Email,
		BuyerName:       req.Name,
		CallbackBaseURL: s.CallbackBaseURL,
		ShipStreet:      shipTo.Street,
		ShipCity:        shipTo.City,
		ShipState:       shipTo.State,
		ShipZIP:         shipTo.ZIP,
	})
	if err != nil {
		s.countIntent(providerKey, "error")
		_, _ = s.Orders.Transition(placed.ID, order.StatusFailed, func(o *order.Order) {
			o.FailureReason = "payment intent failed"
		})
		if s.Events != nil {
			_, _ = s.Events.Emit(ctx, events.TopicOrderFailed, placed.ID, map[string]any{
				"orderId":   placed.ID.String(),
				"reference": placed.Reference,
				"reason":    "payment intent failed",
			})
		}
		return Result{}, fmt.Errorf("checkout: open payment intent: %w", err)
	}
	s.countIntent(providerKey, "success")

	if s.Events != nil {
		_, _ = s.Events.Emit(ctx, events.TopicOrderCreated, placed.ID, map[string]any{
			"orderId":   placed.ID.String(),
			"reference": placed.Reference,
			"email":     placed.Email,
			"total":     summary.Total,
			"currency":  s.Currency,
		})
	}

	store.Clear()
	s.Carts.Delete(cartID)
	return Result{Order: placed, Intent: intent}, nil
}
