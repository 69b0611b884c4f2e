package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	resp    *Response
	expires time.Time
}

// MemoryStore is an in-process Store for single-instance deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	lockTTL time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a MemoryStore. A non-positive ttl uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		lockTTL: DefaultLockTTL,
		now:     time.Now,
	}
}

func (m *MemoryStore) Begin(ctx context.Context, key string) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		if e.resp == nil {
			return nil, ErrInFlight
		}
		return e.resp, nil
	}
	m.entries[key] = memoryEntry{expires: now.Add(m.lockTTL)}
	return nil, nil
}

func (m *MemoryStore) Complete(ctx context.Context, key string, resp *Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{resp: resp, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
