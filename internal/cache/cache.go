package cache

import (
	"context"
	"encoding/json"
	"time"

	"segment-cache/internal/domain"
	"segment-cache/internal/store"
	"segment-cache/pkg/logger"
	"segment-cache/pkg/validator"
)

// Cache is the segmented TTL cache engine. It normalizes addresses, stamps
// and checks entry lifetimes, and delegates storage to a store.Store.
//
// A Cache is owned by whoever constructs it: New, then Initialize, use,
// Shutdown. All methods are safe for concurrent use.
type Cache struct {
	store         store.Store
	lifecycle     *Lifecycle
	logger        *logger.Logger
	now           func() time.Time
	defaultTTL    time.Duration
	sweepSchedule string
	janitor       *store.Janitor
	stats         counters
}

// New creates an unstarted cache on top of st
func New(st store.Store, log *logger.Logger, opts ...Option) *Cache {
	c := &Cache{
		store:      st,
		logger:     log.Named("cache"),
		now:        time.Now,
		defaultTTL: domain.DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lifecycle = NewLifecycle(c.start, c.stop)
	return c
}

// Initialize starts the backend and makes the cache Ready. It is idempotent
// and safe to call concurrently; a failure leaves the cache retryable.
func (c *Cache) Initialize(ctx context.Context) error {
	if err := c.lifecycle.Initialize(ctx); err != nil {
		c.logger.Errorw("Failed to start cache backend", "backend", c.store.Name(), "error", err)
		return domain.NewLifecycleError(domain.ErrBackendStart, "initialize", err)
	}
	return nil
}

// Shutdown stops accepting operations, waits for in-flight ones (bounded by
// ctx) and releases the backend.
func (c *Cache) Shutdown(ctx context.Context) error {
	if err := c.lifecycle.Shutdown(ctx); err != nil {
		c.logger.Errorw("Failed to stop cache backend", "backend", c.store.Name(), "error", err)
		return domain.NewLifecycleError(domain.ErrBackendStop, "shutdown", err)
	}
	return nil
}

// State returns the lifecycle state
func (c *Cache) State() State {
	return c.lifecycle.State()
}

// Ready reports whether operations are currently accepted
func (c *Cache) Ready() bool {
	return c.State() == StateReady
}

// Backend returns the name of the underlying store
func (c *Cache) Backend() string {
	return c.store.Name()
}

// Get returns the entry at (segment, key) with its remaining TTL, or nil when
// nothing readable is stored. An entry whose TTL has elapsed is reported as
// absent even if the backend still holds it.
func (c *Cache) Get(ctx context.Context, segment, key string) (*domain.CachedItem[json.RawMessage], error) {
	release, addr, err := c.begin("get", segment, key)
	if err != nil {
		return nil, err
	}
	defer release()

	data, ok, err := c.store.Get(ctx, addr)
	if err != nil {
		c.logger.Errorw("Backend read failed", "segment", addr.Segment, "key", addr.Key, "error", err)
		return nil, domain.NewCacheError(domain.ErrBackend, "get", addr, err)
	}
	if !ok {
		c.stats.misses.Add(1)
		c.logger.Debugw("Cache miss", "segment", addr.Segment, "key", addr.Key)
		return nil, nil
	}

	entry, err := domain.UnmarshalEntry(data)
	if err != nil {
		c.logger.Errorw("Corrupt record in backend", "segment", addr.Segment, "key", addr.Key, "error", err)
		return nil, domain.NewCacheError(domain.ErrBackend, "get", addr, err)
	}

	now := c.now()
	if entry.IsExpired(now) {
		c.stats.expired.Add(1)
		c.stats.misses.Add(1)
		c.logger.Debugw("Cache entry expired", "segment", addr.Segment, "key", addr.Key)
		return nil, nil
	}

	c.stats.hits.Add(1)
	c.logger.Debugw("Cache hit", "segment", addr.Segment, "key", addr.Key)
	return entry.View(now), nil
}

// GetValue is Get with the stored value decoded into V
func GetValue[V any](ctx context.Context, c *Cache, segment, key string) (*domain.CachedItem[V], error) {
	raw, err := c.Get(ctx, segment, key)
	if err != nil || raw == nil {
		return nil, err
	}

	var item V
	if err := json.Unmarshal(raw.Item, &item); err != nil {
		return nil, domain.NewCacheError(domain.ErrSerialization, "get", domain.NewAddress(segment, key), err)
	}

	return &domain.CachedItem[V]{
		Item:   item,
		Stored: raw.Stored,
		TTL:    raw.TTL,
	}, nil
}

// Set stores value at (segment, key), fully replacing any previous entry.
// The TTL defaults to the cache's default (60 minutes unless configured);
// pass WithTTL to override. value must be JSON-encodable.
func (c *Cache) Set(ctx context.Context, segment, key string, value interface{}, opts ...SetOption) error {
	release, addr, err := c.begin("set", segment, key)
	if err != nil {
		return err
	}
	defer release()

	o := setOptions{ttl: c.defaultTTL}
	for _, opt := range opts {
		opt(&o)
	}

	// Sub-millisecond TTLs would be stored as zero
	if o.ttl < time.Millisecond {
		return domain.NewCacheError(domain.ErrInvalidTTL, "set", addr, nil)
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return domain.NewCacheError(domain.ErrSerialization, "set", addr, err)
	}

	data, err := domain.NewEntry(encoded, c.now(), o.ttl).Marshal()
	if err != nil {
		return domain.NewCacheError(domain.ErrSerialization, "set", addr, err)
	}

	if err := c.store.Set(ctx, addr, data, o.ttl); err != nil {
		c.logger.Errorw("Backend write failed", "segment", addr.Segment, "key", addr.Key, "error", err)
		return domain.NewCacheError(domain.ErrBackend, "set", addr, err)
	}

	c.stats.sets.Add(1)
	return nil
}

// Delete removes the entry at (segment, key). Deleting a missing entry succeeds.
func (c *Cache) Delete(ctx context.Context, segment, key string) error {
	release, addr, err := c.begin("delete", segment, key)
	if err != nil {
		return err
	}
	defer release()

	if err := c.store.Delete(ctx, addr); err != nil {
		c.logger.Errorw("Backend delete failed", "segment", addr.Segment, "key", addr.Key, "error", err)
		return domain.NewCacheError(domain.ErrBackend, "delete", addr, err)
	}

	c.stats.deletes.Add(1)
	return nil
}

// begin gates an operation on the lifecycle and resolves its address
func (c *Cache) begin(op, segment, key string) (func(), domain.Address, error) {
	addr := domain.NewAddress(segment, key)

	release, err := c.lifecycle.Acquire()
	if err != nil {
		return nil, addr, domain.NewCacheError(domain.ErrNotInitialized, op, addr, nil)
	}

	if err := validator.ValidateAddress(segment, key); err != nil {
		release()
		return nil, addr, domain.NewCacheError(domain.ErrInvalidAddress, op, addr, err)
	}

	return release, addr, nil
}

func (c *Cache) start(ctx context.Context) error {
	if err := c.store.Start(ctx); err != nil {
		return err
	}

	if sweeper, ok := c.store.(store.Sweeper); ok && c.sweepSchedule != "" {
		janitor, err := store.NewJanitor(sweeper, c.sweepSchedule, c.logger)
		if err != nil {
			_ = c.store.Stop(ctx)
			return err
		}
		janitor.Start()
		c.janitor = janitor
	}

	c.logger.Infow("Cache ready", "backend", c.store.Name(), "default_ttl", c.defaultTTL)
	return nil
}

func (c *Cache) stop(ctx context.Context) error {
	if c.janitor != nil {
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		c.janitor.Stop(stopCtx)
		cancel()
		c.janitor = nil
	}

	if err := c.store.Stop(ctx); err != nil {
		return err
	}

	c.logger.Infow("Cache stopped", "backend", c.store.Name())
	return nil
}
