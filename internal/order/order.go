package order

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mapleandrye/backend-bakeshop/internal/cart"
	"github.com/mapleandrye/backend-bakeshop/internal/obs"
	"github.com/mapleandrye/backend-bakeshop/internal/pricing"
	"github.com/mapleandrye/backend-bakeshop/internal/shipping"
)

// Status is an order lifecycle state.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusEmailed Status = "EMAILED"
	StatusFailed  Status = "FAILED"
)

var (
	// ErrNotFound indicates the order does not exist or has expired.
	ErrNotFound = errors.New("order: not found")
	// ErrBadTransition indicates a lifecycle move the state machine forbids.
	ErrBadTransition = errors.New("order: illegal status transition")
)

// Legal lifecycle moves. FAILED is reachable from any non-terminal state;
// EMAILED and FAILED are terminal.
var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusFailed},
	StatusPaid:    {StatusEmailed, StatusFailed},
}

func canTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Order is a checkout snapshot held until payment settles and the
// confirmation email goes out.
// Address is the shipping destination captured at checkout. State always
// holds the two-letter code once an order is created.
type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	ZIP    string `json:"zip"`
}

type Order struct {
	ID            uuid.UUID       `json:"id"`
	Reference     string          `json:"reference"`
	Email         string          `json:"email"`
	Name          string          `json:"name"`
	ShipTo        Address         `json:"shipTo"`
	Items         []cart.LineItem `json:"items"`
	Pricing       pricing.Summary `json:"pricing"`
	Currency      string          `json:"currency"`
	ShippingRate  *shipping.Rate  `json:"shippingRate,omitempty"`
	Status        Status          `json:"status"`
	Provider      string          `json:"provider,omitempty"`
	ProviderRef   string          `json:"providerRef,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type storeEntry struct {
	order     *Order
	expiresAt time.Time
}

// Store holds orders in memory with a TTL. Orders never outlive the TTL:
// unpaid carts age out, and even settled orders only need to survive until
// the confirmation email is sent.
type Store struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*storeEntry
	byRef   map[string]uuid.UUID
	TTL     time.Duration
	Now     func() time.Time
}

// NewStore constructs an order store. A non-positive ttl defaults to 24h.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		entries: make(map[uuid.UUID]*storeEntry),
		byRef:   make(map[string]uuid.UUID),
		TTL:     ttl,
	}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create registers a new PENDING order and assigns its identifier and
// human-facing reference.
func (s *Store) Create(o Order) (*Order, error) {
	if o.Email == "" {
		return nil, errors.New("order: email is required")
	}
	if len(o.Items) == 0 {
		return nil, errors.New("order: at least one item is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	o.ID = uuid.New()
	if o.Reference == "" {
		o.Reference = fmt.Sprintf("BK-%s", o.ID.String()[:8])
	}
	o.Status = StatusPending
	o.CreatedAt = now
	o.UpdatedAt = now
	s.entries[o.ID] = &storeEntry{order: &o, expiresAt: now.Add(s.TTL)}
	s.byRef[o.Reference] = o.ID
	return cloneOrder(&o), nil
}

// Get returns an order by id.
func (s *Store) Get(id uuid.UUID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok || s.now().After(entry.expiresAt) {
		s.evictLocked(id)
		return nil, ErrNotFound
	}
	return cloneOrder(entry.order), nil
}

// GetByReference returns an order by its human-facing reference.
func (s *Store) GetByReference(ref string) (*Order, error) {
	s.mu.Lock()
	id, ok := s.byRef[ref]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.Get(id)
}

// Transition moves an order to the next lifecycle state, applying updates
// while the lock is held so payment and email workers never race.
func (s *Store) Transition(id uuid.UUID, to Status, update func(*Order)) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok || s.now().After(entry.expiresAt) {
		s.evictLocked(id)
		return nil, ErrNotFound
	}
	from := entry.order.Status
	if !canTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrBadTransition, from, to)
	}
	entry.order.Status = to
	entry.order.UpdatedAt = s.now()
	if update != nil {
		update(entry.order)
	}
	if obs.OrderTransitionTotal != nil {
		obs.OrderTransitionTotal.WithLabelValues(string(from), string(to)).Inc()
	}
	return cloneOrder(entry.order), nil
}

// Len reports the number of live orders.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops expired orders and reports how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			s.evictLocked(id)
			removed++
		}
	}
	return removed
}

func (s *Store) evictLocked(id uuid.UUID) {
	if entry, ok := s.entries[id]; ok {
		delete(s.byRef, entry.order.Reference)
		delete(s.entries, id)
	}
}

func cloneOrder(o *Order) *Order {
	clone := *o
	clone.Items = append([]cart.LineItem(nil), o.Items...)
	if o.ShippingRate != nil {
		rate := *o.ShippingRate
		clone.ShippingRate = &rate
	}
	return &clone
}
