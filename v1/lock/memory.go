package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/railstack/go-resv/v1/syncbus"
)

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// InMemory implements Manager with process-local state. Release events are
// propagated through a syncbus Bus so waiters on other goroutines (or, with
// a networked bus, other nodes) wake without polling. Expiry is lazy: a
// lapsed entry is reclaimed by the next TryAcquire on its key.
type InMemory struct {
	bus syncbus.Bus
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewInMemory returns a new in-memory lock manager that uses bus to
// propagate release events. A nil bus falls back to a private in-memory bus.
func NewInMemory(bus syncbus.Bus) *InMemory {
	if bus == nil {
		bus = syncbus.NewInMemoryBus()
	}
	return &InMemory{bus: bus, now: time.Now, entries: make(map[string]memoryEntry)}
}

// TryAcquire implements Manager.TryAcquire.
func (m *InMemory) TryAcquire(ctx context.Context, key string, hold time.Duration) (Handle, error) {
	if err := validate(key, hold); err != nil {
		return Handle{}, err
	}
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}

	now := m.now()
	m.mu.Lock()
	if e, ok := m.entries[key]; ok && now.Before(e.expiresAt) {
		m.mu.Unlock()
		return Handle{}, ErrNotAcquired
	}
	token := uuid.NewString()
	m.entries[key] = memoryEntry{token: token, expiresAt: now.Add(hold)}
	m.mu.Unlock()

	return Handle{Key: key, OwnerToken: token, AcquiredAt: now, ExpiresAt: now.Add(hold)}, nil
}

// Acquire implements Manager.Acquire.
func (m *InMemory) Acquire(ctx context.Context, key string, hold, wait time.Duration) (Handle, error) {
	return acquireWithWait(ctx, m.bus, key, wait, func(ctx context.Context) (Handle, error) {
		return m.TryAcquire(ctx, key, hold)
	})
}

// Release implements Manager.Release.
func (m *InMemory) Release(ctx context.Context, h Handle) error {
	if h.Key == "" {
		return ErrEmptyKey
	}

	now := m.now()
	m.mu.Lock()
	e, ok := m.entries[h.Key]
	if !ok {
		m.mu.Unlock()
		return ErrExpired
	}
	if e.token != h.OwnerToken {
		m.mu.Unlock()
		return ErrNotOwner
	}
	delete(m.entries, h.Key)
	m.mu.Unlock()

	if now.After(e.expiresAt) {
		return ErrExpired
	}
	_ = m.bus.Publish(ctx, "unlock:"+h.Key)
	return nil
}
