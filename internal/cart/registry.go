package cart

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry owns the live carts for the process, keyed by cart id. Carts are
// never persisted server-side; an idle cart is evicted once its TTL lapses.
// The registry is constructed once at startup and handed to consumers
// explicitly rather than living as a package singleton.
type Registry struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*registryEntry
	TTL     time.Duration
	Now     func() time.Time
}

type registryEntry struct {
	store     *Store
	expiresAt time.Time
}

// NewRegistry constructs a registry with the provided idle TTL.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Registry{
		entries: make(map[uuid.UUID]*registryEntry),
		TTL:     ttl,
	}
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Create allocates a fresh cart and returns its identifier.
func (r *Registry) Create() (uuid.UUID, *Store) {
	id := uuid.New()
	store := NewStore()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &registryEntry{store: store, expiresAt: r.now().Add(r.TTL)}
	return id, store
}

// Get returns the cart for the given id, extending its lifetime. Expired
// carts are treated as absent.
func (r *Registry) Get(id uuid.UUID) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	now := r.now()
	if entry.expiresAt.Before(now) {
		delete(r.entries, id)
		return nil, false
	}
	entry.expiresAt = now.Add(r.TTL)
	return entry.store, true
}

// Delete removes the cart outright.
func (r *Registry) Delete(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len reports the number of live carts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep drops all expired carts.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	removed := 0
	for id, entry := range r.entries {
		if entry.expiresAt.Before(now) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on the provided interval until ctx is cancelled.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}
