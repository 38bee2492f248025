package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mapleandrye/backend-bakeshop/internal/cart"
	"github.com/mapleandrye/backend-bakeshop/internal/common"
	"github.com/mapleandrye/backend-bakeshop/internal/events"
	"github.com/mapleandrye/backend-bakeshop/internal/order"
	"github.com/mapleandrye/backend-bakeshop/internal/pricing"
	"github.com/mapleandrye/backend-bakeshop/internal/shipping"
)

func paidOrder(t *testing.T, store *order.Store) *order.Order {
	t.Helper()
	created, err := store.Create(order.Order{
		Email: "pat@example.com",
		Name:  "Pat Baker",
		Items: []cart.LineItem{
			{Item: cart.Item{ID: 1, Name: "Sourdough Loaf", UnitPrice: 1250}, Qty: 2},
			{Item: cart.Item{ID: 2, Name: "Croissant", UnitPrice: 450}, Qty: 1},
		},
		Pricing:  pricing.Summary{Subtotal: 2950, Tax: 206, Shipping: 895, Total: 4051},
		Currency: "USD",
		ShippingRate: &shipping.Rate{
			MailClass:   shipping.MailClassGround,
			ProductName: "USPS Ground Advantage",
			TotalPrice:  895,
		},
	})
	require.NoError(t, err)
	paid, err := store.Transition(created.ID, order.StatusPaid, nil)
	require.NoError(t, err)
	return paid
}

func TestConfirmationBodyContents(t *testing.T) {
	t.Parallel()

	store := order.NewStore(time.Hour)
	o := paidOrder(t, store)

	body := ConfirmationBody(o)
	require.Contains(t, body, "Thanks for your order, Pat!")
	require.Contains(t, body, o.Reference)
	require.Contains(t, body, "Sourdough Loaf")
	require.Contains(t, body, "$25.00")
	require.Contains(t, body, "Total: $40.51 USD")
	require.Contains(t, body, "USPS Ground Advantage")

	require.Contains(t, ConfirmationSubject(o), o.Reference)
}

func TestConfirmationBodyEscapesContent(t *testing.T) {
	t.Parallel()

	store := order.NewStore(time.Hour)
	created, err := store.Create(order.Order{
		Email:    "x@example.com",
		Name:     "<script>alert(1)</script>",
		Items:    []cart.LineItem{{Item: cart.Item{ID: 1, Name: "Rye & Caraway"}, Qty: 1}},
		Currency: "USD",
	})
	require.NoError(t, err)

	body := ConfirmationBody(created)
	require.NotContains(t, body, "<script>")
	require.Contains(t, body, "Rye &amp; Caraway")
}

func TestWorkerSendsAndMarksEmailed(t *testing.T) {
	t.Parallel()

	store := order.NewStore(time.Hour)
	o := paidOrder(t, store)
	mail := &common.InMemoryEmail{}
	var emitted []events.Event
	bus := &events.Bus{Notifiers: []events.Notifier{
		events.NotifierFunc(func(ctx context.Context, ev events.Event) error {
			emitted = append(emitted, ev)
			return nil
		}),
	}}
	worker := EmailWorker{Mail: mail, Orders: store, Logger: zerolog.Nop(), Events: bus}

	task, err := NewOrderConfirmationTask(o.ID)
	require.NoError(t, err)
	require.NoError(t, worker.HandleOrderConfirmation(context.Background(), task))

	require.Len(t, mail.Outbox, 1)
	require.Equal(t, "pat@example.com", mail.Outbox[0].To)

	after, err := store.Get(o.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusEmailed, after.Status)

	require.Len(t, emitted, 1)
	require.Equal(t, events.TopicOrderEmailed, emitted[0].Topic)
	require.Equal(t, o.ID, emitted[0].AggregateID)
}

func TestWorkerCopiesMerchant(t *testing.T) {
	t.Parallel()

	store := order.NewStore(time.Hour)
	o := paidOrder(t, store)
	mail := &common.InMemoryEmail{}
	worker := EmailWorker{Mail: mail, Orders: store, Logger: zerolog.Nop(), Merchant: "orders@mapleandrye.com"}

	task, err := NewOrderConfirmationTask(o.ID)
	require.NoError(t, err)
	require.NoError(t, worker.HandleOrderConfirmation(context.Background(), task))

	require.Len(t, mail.Outbox, 2)
	require.Equal(t, "pat@example.com", mail.Outbox[0].To)
	require.Equal(t, "orders@mapleandrye.com", mail.Outbox[1].To)
	require.Equal(t, mail.Outbox[0].Subject, mail.Outbox[1].Subject)
}

func TestWorkerIsIdempotent(t *testing.T) {
	t.Parallel()

	store := order.NewStore(time.Hour)
	o := paidOrder(t, store)
	mail := &common.InMemoryEmail{}
	worker := EmailWorker{Mail: mail, Orders: store, Logger: zerolog.Nop()}

	task, err := NewOrderConfirmationTask(o.ID)
	require.NoError(t, err)
	require.NoError(t, worker.HandleOrderConfirmation(context.Background(), task))
	require.NoError(t, worker.HandleOrderConfirmation(context.Background(), task))
	require.Len(t, mail.Outbox, 1, "a redelivered task must not send twice")
}

func TestWorkerSkipsRetryOnBadPayload(t *testing.T) {
	t.Parallel()

	worker := EmailWorker{Mail: &common.InMemoryEmail{}, Orders: order.NewStore(time.Hour), Logger: zerolog.Nop()}
	task := asynq.NewTask(TaskOrderConfirmation, []byte("{not json"))

	err := worker.HandleOrderConfirmation(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestWorkerSkipsRetryOnExpiredOrder(t *testing.T) {
	t.Parallel()

	store := order.NewStore(time.Hour)
	o := paidOrder(t, store)
	worker := EmailWorker{Mail: &common.InMemoryEmail{}, Orders: order.NewStore(time.Hour), Logger: zerolog.Nop()}

	task, err := NewOrderConfirmationTask(o.ID)
	require.NoError(t, err)
	err = worker.HandleOrderConfirmation(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestTaskPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	store := order.NewStore(time.Hour)
	o := paidOrder(t, store)
	task, err := NewOrderConfirmationTask(o.ID)
	require.NoError(t, err)
	require.Equal(t, TaskOrderConfirmation, task.Type())

	var payload OrderConfirmationPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, o.ID.String(), payload.OrderID)
}
