package cart

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mapleandrye/backend-bakeshop/internal/pricing"
)

// ErrNotFound indicates the requested cart could not be located.
var ErrNotFound = errors.New("cart not found")

// ErrInvalidQuantity is returned when a mutation carries a non-positive
// quantity delta.
var ErrInvalidQuantity = errors.New("quantity delta must be positive")

// Item describes a product as it enters the cart.
type Item struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	UnitPrice   pricing.Money `json:"unitPrice"`
	ImageURL    string        `json:"imageUrl"`
}

// LineItem is one product entry in the cart with its accumulated quantity.
type LineItem struct {
	Item
	Qty int `json:"qty"`
}

// Subtotal returns the line total in minor units.
func (l LineItem) Subtotal() pricing.Money {
	return pricing.Money(l.Qty) * l.UnitPrice
}

// Store holds the line items for a single cart. All mutations and reads are
// guarded by a mutex; derived values are recomputed on every read so they are
// never stale relative to the latest mutation.
type Store struct {
	mu    sync.Mutex
	lines map[int64]*LineItem
	order []int64
}

// NewStore constructs an empty cart.
func NewStore() *Store {
	return &Store{lines: make(map[int64]*LineItem)}
}

// AddItem inserts the item or increments the existing line by qtyDelta.
// A non-positive delta is rejected: the storefront has no "add negative"
// gesture, and silently clamping would hide caller bugs.
func (s *Store) AddItem(item Item, qtyDelta int) error {
	if qtyDelta <= 0 {
		return fmt.Errorf("add %d of product %d: %w", qtyDelta, item.ID, ErrInvalidQuantity)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if line, ok := s.lines[item.ID]; ok {
		line.Qty += qtyDelta
		return nil
	}
	s.lines[item.ID] = &LineItem{Item: item, Qty: qtyDelta}
	s.order = append(s.order, item.ID)
	return nil
}

// RemoveItem decrements the line by one, deleting it entirely when the
// quantity reaches zero. Removing an absent id is a no-op.
func (s *Store) RemoveItem(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line, ok := s.lines[id]
	if !ok {
		return
	}
	if line.Qty <= 1 {
		delete(s.lines, id)
		s.dropFromOrder(id)
		return
	}
	line.Qty--
}

// Clear empties the cart unconditionally.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = make(map[int64]*LineItem)
	s.order = nil
}

// Items returns a snapshot of the line items in insertion order.
func (s *Store) Items() []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LineItem, 0, len(s.order))
	for _, id := range s.order {
		if line, ok := s.lines[id]; ok {
			out = append(out, *line)
		}
	}
	return out
}

// Item returns the line for the given product id.
func (s *Store) Item(id int64) (LineItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line, ok := s.lines[id]
	if !ok {
		return LineItem{}, false
	}
	return *line, true
}

// Count returns the total quantity across all lines.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, line := range s.lines {
		total += line.Qty
	}
	return total
}

// SubTotal returns the sum of price times quantity across all lines.
func (s *Store) SubTotal() pricing.Money {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total pricing.Money
	for _, line := range s.lines {
		total += line.Subtotal()
	}
	return total
}

// Len returns the number of distinct lines.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

func (s *Store) dropFromOrder(id int64) {
	for i, candidate := range s.order {
		if candidate == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
