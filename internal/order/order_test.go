package order

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mapleandrye/backend-bakeshop/internal/cart"
)

func sampleOrder() Order {
	return Order{
		Email: "customer@example.com",
		Name:  "Pat",
		Items: []cart.LineItem{
			{Item: cart.Item{ID: 1, Name: "Sourdough Loaf", UnitPrice: 1250}, Qty: 2},
		},
		Currency: "USD",
	}
}

func TestCreateAssignsPendingAndReference(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour)
	created, err := store.Create(sampleOrder())
	require.NoError(t, err)
	require.Equal(t, StatusPending, created.Status)
	require.NotEqual(t, uuid.Nil, created.ID)
	require.NotEmpty(t, created.Reference)

	byRef, err := store.GetByReference(created.Reference)
	require.NoError(t, err)
	require.Equal(t, created.ID, byRef.ID)
}

func TestCreateValidates(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour)
	o := sampleOrder()
	o.Email = ""
	_, err := store.Create(o)
	require.Error(t, err)

	o = sampleOrder()
	o.Items = nil
	_, err = store.Create(o)
	require.Error(t, err)
}

func TestLifecycleHappyPath(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour)
	created, err := store.Create(sampleOrder())
	require.NoError(t, err)

	paid, err := store.Transition(created.ID, StatusPaid, func(o *Order) {
		o.Provider = "payu"
		o.ProviderRef = "txn-1"
	})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.Equal(t, "txn-1", paid.ProviderRef)

	emailed, err := store.Transition(created.ID, StatusEmailed, nil)
	require.NoError(t, err)
	require.Equal(t, StatusEmailed, emailed.Status)
}

func TestIllegalTransitionsRejected(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour)
	created, err := store.Create(sampleOrder())
	require.NoError(t, err)

	// cannot email an unpaid order
	_, err = store.Transition(created.ID, StatusEmailed, nil)
	require.ErrorIs(t, err, ErrBadTransition)

	_, err = store.Transition(created.ID, StatusPaid, nil)
	require.NoError(t, err)

	// paid is not re-enterable
	_, err = store.Transition(created.ID, StatusPaid, nil)
	require.ErrorIs(t, err, ErrBadTransition)

	_, err = store.Transition(created.ID, StatusEmailed, nil)
	require.NoError(t, err)

	// terminal states stay put
	_, err = store.Transition(created.ID, StatusFailed, nil)
	require.ErrorIs(t, err, ErrBadTransition)
}

func TestFailureReachableFromPendingAndPaid(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour)
	first, err := store.Create(sampleOrder())
	require.NoError(t, err)
	failed, err := store.Transition(first.ID, StatusFailed, func(o *Order) {
		o.FailureReason = "payment declined"
	})
	require.NoError(t, err)
	require.Equal(t, "payment declined", failed.FailureReason)

	second, err := store.Create(sampleOrder())
	require.NoError(t, err)
	_, err = store.Transition(second.ID, StatusPaid, nil)
	require.NoError(t, err)
	_, err = store.Transition(second.ID, StatusFailed, nil)
	require.NoError(t, err)
}

func TestOrdersExpire(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := NewStore(time.Hour)
	store.Now = func() time.Time { return now }

	created, err := store.Create(sampleOrder())
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = store.Get(created.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.Transition(created.ID, StatusPaid, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSweepRemovesExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := NewStore(time.Hour)
	store.Now = func() time.Time { return now }

	_, err := store.Create(sampleOrder())
	require.NoError(t, err)
	now = now.Add(30 * time.Minute)
	keep, err := store.Create(sampleOrder())
	require.NoError(t, err)

	now = now.Add(45 * time.Minute)
	require.Equal(t, 1, store.Sweep())
	require.Equal(t, 1, store.Len())
	_, err = store.Get(keep.ID)
	require.NoError(t, err)
}

func TestGetReturnsCopies(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour)
	created, err := store.Create(sampleOrder())
	require.NoError(t, err)

	got, err := store.Get(created.ID)
	require.NoError(t, err)
	got.Items[0].Qty = 99
	got.Status = StatusPaid

	again, err := store.Get(created.ID)
	require.NoError(t, err)
	require.Equal(t, 2, again.Items[0].Qty)
	require.Equal(t, StatusPending, again.Status)
}
