package store

import (
	"context"
	"sync"
	"time"

	"segment-cache/internal/domain"
)

var (
	_ Store   = (*MemoryStore)(nil)
	_ Sweeper = (*MemoryStore)(nil)
)

// memoryItem is the physical slot for one address
type memoryItem struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is the reference in-process backend: a map from address to
// record guarded by a RWMutex.
//
// Expired records are evicted when a read finds them and by Sweep. Neither
// is what keeps expired values from callers; the engine checks every record
// it reads.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[domain.Address]memoryItem // nil until Start
	now   func() time.Time
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the clock used for read-time eviction and sweeps
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an unstarted memory store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Store
func (s *MemoryStore) Name() string {
	return "memory"
}

// Start allocates the map. Starting an already started store keeps its contents.
func (s *MemoryStore) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.items == nil {
		s.items = make(map[domain.Address]memoryItem)
	}
	return nil
}

// Stop drops every record and releases the map
func (s *MemoryStore) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	return nil
}

// Get returns a copy of the stored record so callers cannot mutate it.
//
// An expired record found here is evicted: the read lock is released, the
// write lock taken, and the record re-checked before deletion because a
// fresh Set may have landed in between.
func (s *MemoryStore) Get(ctx context.Context, addr domain.Address) ([]byte, bool, error) {
	now := s.now()

	s.mu.RLock()
	if s.items == nil {
		s.mu.RUnlock()
		return nil, false, ErrNotStarted
	}
	item, ok := s.items[addr]
	if !ok {
		s.mu.RUnlock()
		return nil, false, nil
	}
	if item.expiresAt.After(now) {
		data := cloneBytes(item.data)
		s.mu.RUnlock()
		return data, true, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		return nil, false, ErrNotStarted
	}
	if current, ok := s.items[addr]; ok && !current.expiresAt.After(now) {
		delete(s.items, addr)
	}
	return nil, false, nil
}

// Set stores a copy of data
func (s *MemoryStore) Set(ctx context.Context, addr domain.Address, data []byte, ttl time.Duration) error {
	item := memoryItem{
		data:      cloneBytes(data),
		expiresAt: s.now().Add(ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.items == nil {
		return ErrNotStarted
	}
	s.items[addr] = item
	return nil
}

// Delete removes addr if present
func (s *MemoryStore) Delete(ctx context.Context, addr domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.items == nil {
		return ErrNotStarted
	}
	delete(s.items, addr)
	return nil
}

// Sweep removes every expired record.
// This is O(n) over all segments.
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.items == nil {
		return 0, ErrNotStarted
	}

	removed := 0
	for addr, item := range s.items {
		if !item.expiresAt.After(now) {
			delete(s.items, addr)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of physically stored records, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
