package checkout

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mapleandrye/backend-bakeshop/internal/cart"
	"github.com/mapleandrye/backend-bakeshop/internal/events"
	"github.com/mapleandrye/backend-bakeshop/internal/order"
	"github.com/mapleandrye/backend-bakeshop/internal/payment"
	"github.com/mapleandrye/backend-bakeshop/internal/shipping"
)

type fakeProvider struct {
	lastReq payment.IntentRequest
	err     error
}

func (f *fakeProvider) CreateIntent(_ context.Context, req payment.IntentRequest) (payment.IntentResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return payment.IntentResponse{}, f.err
	}
	return payment.IntentResponse{Provider: "fake", RedirectURL: "https://pay.example.com/" + req.Reference}, nil
}

func (f *fakeProvider) VerifyWebhook(r *http.Request, body []byte) (payment.WebhookVerifyResult, error) {
	return payment.WebhookVerifyResult{}, nil
}

type serviceFixture struct {
	service  *Service
	registry *cart.Registry
	cartID   uuid.UUID
	provider *fakeProvider
	topics   []string
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		registry: cart.NewRegistry(time.Hour),
		provider: &fakeProvider{},
	}
	id, store := f.registry.Create()
	f.cartID = id
	require.NoError(t, store.AddItem(cart.Item{ID: 1, Name: "Sourdough Loaf", UnitPrice: 1250}, 2))
	require.NoError(t, store.AddItem(cart.Item{ID: 2, Name: "Croissant", UnitPrice: 450}, 1))

	bus := &events.Bus{Notifiers: []events.Notifier{
		events.NotifierFunc(func(_ context.Context, event events.Event) error {
			f.topics = append(f.topics, event.Topic)
			return nil
		}),
	}}
	f.service = &Service{
		Carts:           f.registry,
		Orders:          order.NewStore(time.Hour),
		Providers:       map[string]payment.Provider{"fake": f.provider},
		DefaultProvider: "fake",
		TaxBps:          700,
		Currency:        "USD",
		CallbackBaseURL: "https://shop.example.com",
		Events:          bus,
	}
	return f
}

func validRequest(f *serviceFixture) Request {
	return Request{
		CartID: f.cartID.String(),
		Email:  "pat@example.com",
		Name:   "Pat Baker",
		ShipTo: ShipTo{
			Street: "410 Terry Ave N",
			City:   "Miami",
			State:  "Florida",
			ZIP:    "33101",
		},
		ShippingRate: &shipping.Rate{
			MailClass:   shipping.MailClassGround,
			ProductName: "USPS Ground Advantage",
			TotalPrice:  895,
		},
	}
}

func TestCheckoutPlacesOrder(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	result, err := f.service.Checkout(context.Background(), validRequest(f))
	require.NoError(t, err)

	// 2*1250 + 450 = 2950 subtotal, 7% tax = 206, shipping 895
	require.EqualValues(t, 2950, result.Order.Pricing.Subtotal)
	require.EqualValues(t, 206, result.Order.Pricing.Tax)
	require.EqualValues(t, 4051, result.Order.Pricing.Total)
	require.Equal(t, order.StatusPending, result.Order.Status)
	require.Len(t, result.Order.Items, 2)

	require.Equal(t, result.Order.Reference, f.provider.lastReq.Reference)
	require.EqualValues(t, 4051, f.provider.lastReq.Amount)
	require.Equal(t, "FL", result.Order.ShipTo.State, "state names normalise to codes")
	require.Equal(t, "FL", f.provider.lastReq.ShipState)
	require.Equal(t, "410 Terry Ave N", f.provider.lastReq.ShipStreet)
	require.Contains(t, result.Intent.RedirectURL, result.Order.Reference)
	require.Contains(t, f.topics, events.TopicOrderCreated)

	// the cart is consumed
	_, ok := f.registry.Get(f.cartID)
	require.False(t, ok)
}

func TestCheckoutUnknownCart(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	req := validRequest(f)
	req.CartID = uuid.NewString()
	_, err := f.service.Checkout(context.Background(), req)
	require.ErrorIs(t, err, ErrCartNotFound)
}

func TestCheckoutEmptyCart(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	emptyID, _ := f.registry.Create()
	req := validRequest(f)
	req.CartID = emptyID.String()
	_, err := f.service.Checkout(context.Background(), req)
	require.ErrorIs(t, err, ErrCartEmpty)
}

func TestCheckoutUnknownProvider(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	req := validRequest(f)
	req.Provider = "venmo"
	_, err := f.service.Checkout(context.Background(), req)
	require.ErrorIs(t, err, ErrProviderUnknown)
}

func TestCheckoutRejectsBadDestination(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)

	req := validRequest(f)
	req.ShipTo.State = "Atlantis"
	_, err := f.service.Checkout(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidAddress)

	req = validRequest(f)
	req.ShipTo.ZIP = "3310"
	_, err = f.service.Checkout(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidAddress)

	// nothing consumed the cart
	store, ok := f.registry.Get(f.cartID)
	require.True(t, ok)
	require.Equal(t, 3, store.Count())
}

func TestCheckoutIntentFailureKeepsCart(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.provider.err = errors.New("gateway down")

	_, err := f.service.Checkout(context.Background(), validRequest(f))
	require.Error(t, err)

	// the shopper can retry with the same cart
	store, ok := f.registry.Get(f.cartID)
	require.True(t, ok)
	require.Equal(t, 3, store.Count())
}
