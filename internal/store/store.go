package store

import (
	"context"
	"errors"
	"time"

	"segment-cache/internal/domain"
)

// ErrNotStarted is returned by a store used before Start or after Stop
var ErrNotStarted = errors.New("store not started")

// Store defines the raw storage contract the cache engine delegates to.
// This abstraction allows swapping backends (memory, Redis, bolt, Postgres)
// without changing engine behavior. A store holds encoded entry records and
// owns no expiry policy of its own beyond physical reclamation; the engine
// decides what is readable.
//
// Implementations must be safe for concurrent use. Writes to one address
// replace the whole record atomically; ordering between concurrent writes to
// the same address is whatever the backend provides.
type Store interface {
	// Name identifies the backend in logs and stats
	Name() string

	// Start allocates or opens the underlying resource
	Start(ctx context.Context) error

	// Stop releases the underlying resource
	Stop(ctx context.Context) error

	// Get returns the record stored at addr; ok is false when nothing is stored
	Get(ctx context.Context, addr domain.Address) (data []byte, ok bool, err error)

	// Set stores a record at addr, replacing any previous one.
	// ttl lets the backend reclaim the record once it can no longer be read.
	Set(ctx context.Context, addr domain.Address, data []byte, ttl time.Duration) error

	// Delete removes the record at addr. Missing addresses are not an error.
	Delete(ctx context.Context, addr domain.Address) error
}

// Sweeper is implemented by stores that physically reclaim expired records
// on a schedule rather than relying on a server-side expiry.
type Sweeper interface {
	// Sweep removes records whose TTL has elapsed and returns how many were removed
	Sweep(ctx context.Context) (int, error)
}
