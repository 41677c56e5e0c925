package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"segment-cache/internal/domain"
	"segment-cache/internal/store"
	"segment-cache/pkg/logger"
)

// MockStore is a mock implementation of store.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Name() string {
	return "mock"
}

func (m *MockStore) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) Stop(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) Get(ctx context.Context, addr domain.Address) ([]byte, bool, error) {
	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *MockStore) Set(ctx context.Context, addr domain.Address, data []byte, ttl time.Duration) error {
	args := m.Called(ctx, addr, data, ttl)
	return args.Error(0)
}

func (m *MockStore) Delete(ctx context.Context, addr domain.Address) error {
	args := m.Called(ctx, addr)
	return args.Error(0)
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type order struct {
	Total int `json:"total"`
}

func setupCache(t *testing.T) (*Cache, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	c := New(store.NewMemoryStore(store.WithMemoryClock(clock.Now)), logger.NewNop(), WithClock(clock.Now))
	require.NoError(t, c.Initialize(context.Background()))
	t.Cleanup(func() {
		_ = c.Shutdown(context.Background())
	})

	return c, clock
}

func TestCache_SetThenGet(t *testing.T) {
	c, clock := setupCache(t)
	ctx := context.Background()
	written := clock.Now()

	err := c.Set(ctx, "orders", "A123", order{Total: 42}, WithTTLMillis(5000))
	require.NoError(t, err)

	clock.Advance(1000 * time.Millisecond)

	item, err := GetValue[order](ctx, c, "orders", "A123")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 42, item.Item.Total)
	assert.Equal(t, written.UnixMilli(), item.Stored)
	assert.Equal(t, int64(4000), item.TTL)
}

func TestCache_GetAfterExpiry(t *testing.T) {
	c, clock := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "orders", "A123", order{Total: 42}, WithTTLMillis(5000)))

	clock.Advance(6000 * time.Millisecond)

	item, err := c.Get(ctx, "orders", "A123")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestCache_ExpiryAtExactBoundary(t *testing.T) {
	c, clock := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "s", "k", "v", WithTTLMillis(100)))

	clock.Advance(99 * time.Millisecond)
	item, err := c.Get(ctx, "s", "k")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, int64(1), item.TTL)

	clock.Advance(time.Millisecond)
	item, err = c.Get(ctx, "s", "k")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestCache_ExpiredEntryHiddenWhileBackendStillHoldsIt(t *testing.T) {
	clock := newFakeClock()
	// The store runs on real time, so it never considers the record expired
	st := store.NewMemoryStore()
	c := New(st, logger.NewNop(), WithClock(clock.Now))
	require.NoError(t, c.Initialize(context.Background()))
	defer c.Shutdown(context.Background())

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "s", "k", "v", WithTTL(time.Second)))

	clock.Advance(2 * time.Second)

	item, err := c.Get(ctx, "s", "k")
	require.NoError(t, err)
	assert.Nil(t, item)
	assert.Equal(t, 1, st.Len())
	assert.Equal(t, int64(1), c.Stats().Expired)
}

func TestCache_DefaultTTL(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "s", "k", "v"))

	item, err := c.Get(ctx, "s", "k")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, domain.DefaultTTL.Milliseconds(), item.TTL)
}

func TestCache_WithDefaultTTL(t *testing.T) {
	clock := newFakeClock()
	c := New(store.NewMemoryStore(), logger.NewNop(), WithClock(clock.Now), WithDefaultTTL(30*time.Second))
	require.NoError(t, c.Initialize(context.Background()))
	defer c.Shutdown(context.Background())

	require.NoError(t, c.Set(context.Background(), "s", "k", "v"))

	item, err := c.Get(context.Background(), "s", "k")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, int64(30000), item.TTL)
}

func TestCache_KeysAreCaseInsensitive(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "users", "ABC", "first"))

	for _, key := range []string{"abc", "ABC", "aBc"} {
		item, err := GetValue[string](ctx, c, "users", key)
		require.NoError(t, err)
		require.NotNil(t, item, key)
		assert.Equal(t, "first", item.Item)
	}

	require.NoError(t, c.Set(ctx, "users", "abc", "second"))
	item, err := GetValue[string](ctx, c, "users", "ABC")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "second", item.Item)

	require.NoError(t, c.Delete(ctx, "users", "AbC"))
	raw, err := c.Get(ctx, "users", "abc")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestCache_SegmentsAreIsolatedAndCaseSensitive(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "orders", "id1", "order"))
	require.NoError(t, c.Set(ctx, "users", "id1", "user"))

	item, err := GetValue[string](ctx, c, "orders", "id1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "order", item.Item)

	require.NoError(t, c.Delete(ctx, "orders", "id1"))

	user, err := GetValue[string](ctx, c, "users", "id1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "user", user.Item)

	require.NoError(t, c.Set(ctx, "Users", "id1", "other"))
	user, err = GetValue[string](ctx, c, "users", "id1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "user", user.Item)
}

func TestCache_SetReplacesEntry(t *testing.T) {
	c, clock := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "s", "k", "old", WithTTLMillis(1000)))
	clock.Advance(500 * time.Millisecond)
	require.NoError(t, c.Set(ctx, "s", "k", "new", WithTTLMillis(10000)))

	clock.Advance(2000 * time.Millisecond)

	item, err := GetValue[string](ctx, c, "s", "k")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "new", item.Item)
	assert.Equal(t, int64(8000), item.TTL)
}

func TestCache_InvalidTTLKeepsPreviousEntry(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "s", "k", "keep"))

	for _, ttl := range []time.Duration{0, -time.Second, 500 * time.Microsecond} {
		err := c.Set(ctx, "s", "k", "lost", WithTTL(ttl))
		assert.ErrorIs(t, err, domain.ErrInvalidTTL, ttl.String())
	}

	item, err := GetValue[string](ctx, c, "s", "k")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "keep", item.Item)
}

func TestCache_DeleteIsIdempotent(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Delete(ctx, "s", "missing"))

	require.NoError(t, c.Set(ctx, "s", "k", 1))
	require.NoError(t, c.Delete(ctx, "s", "k"))
	require.NoError(t, c.Delete(ctx, "s", "k"))

	item, err := c.Get(ctx, "s", "k")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestCache_GetMissing(t *testing.T) {
	c, _ := setupCache(t)

	item, err := c.Get(context.Background(), "s", "nothing")
	require.NoError(t, err)
	assert.Nil(t, item)

	typed, err := GetValue[order](context.Background(), c, "s", "nothing")
	require.NoError(t, err)
	assert.Nil(t, typed)
}

func TestCache_SerializationErrors(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	err := c.Set(ctx, "s", "k", make(chan int))
	assert.ErrorIs(t, err, domain.ErrSerialization)
	assert.False(t, domain.IsRetryable(err))

	require.NoError(t, c.Set(ctx, "s", "k", "not a number"))
	_, err = GetValue[int](ctx, c, "s", "k")
	assert.ErrorIs(t, err, domain.ErrSerialization)
}

func TestCache_InvalidAddress(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		segment string
		key     string
	}{
		{"empty segment", "", "k"},
		{"empty key", "s", ""},
		{"control character in segment", "s\n", "k"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Get(ctx, tt.segment, tt.key)
			assert.ErrorIs(t, err, domain.ErrInvalidAddress)

			assert.ErrorIs(t, c.Set(ctx, tt.segment, tt.key, "v"), domain.ErrInvalidAddress)
			assert.ErrorIs(t, c.Delete(ctx, tt.segment, tt.key), domain.ErrInvalidAddress)
		})
	}
}

func TestCache_OperationsRequireReady(t *testing.T) {
	c := New(store.NewMemoryStore(), logger.NewNop())
	ctx := context.Background()

	_, err := c.Get(ctx, "s", "k")
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
	assert.ErrorIs(t, c.Set(ctx, "s", "k", "v"), domain.ErrNotInitialized)
	assert.ErrorIs(t, c.Delete(ctx, "s", "k"), domain.ErrNotInitialized)

	require.NoError(t, c.Initialize(ctx))
	assert.True(t, c.Ready())
	require.NoError(t, c.Set(ctx, "s", "k", "v"))

	require.NoError(t, c.Shutdown(ctx))
	assert.False(t, c.Ready())
	assert.Equal(t, StateStopped, c.State())

	_, err = c.Get(ctx, "s", "k")
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestCache_RestartWithMemoryStoreStartsEmpty(t *testing.T) {
	c := New(store.NewMemoryStore(), logger.NewNop())
	ctx := context.Background()

	require.NoError(t, c.Initialize(ctx))
	require.NoError(t, c.Set(ctx, "s", "k", "v"))
	require.NoError(t, c.Shutdown(ctx))

	require.NoError(t, c.Initialize(ctx))
	defer c.Shutdown(ctx)

	item, err := c.Get(ctx, "s", "k")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestCache_InitializeFailure(t *testing.T) {
	m := new(MockStore)
	cause := errors.New("connection refused")
	m.On("Start", mock.Anything).Return(cause).Once()
	m.On("Start", mock.Anything).Return(nil).Once()
	m.On("Stop", mock.Anything).Return(nil)

	c := New(m, logger.NewNop())
	ctx := context.Background()

	err := c.Initialize(ctx)
	assert.ErrorIs(t, err, domain.ErrBackendStart)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, StateUnstarted, c.State())

	require.NoError(t, c.Initialize(ctx))
	assert.Equal(t, StateReady, c.State())

	require.NoError(t, c.Shutdown(ctx))
	m.AssertNumberOfCalls(t, "Start", 2)
	m.AssertNumberOfCalls(t, "Stop", 1)
}

func TestCache_ShutdownFailure(t *testing.T) {
	m := new(MockStore)
	m.On("Start", mock.Anything).Return(nil)
	m.On("Stop", mock.Anything).Return(errors.New("close failed"))

	c := New(m, logger.NewNop())
	require.NoError(t, c.Initialize(context.Background()))

	err := c.Shutdown(context.Background())
	assert.ErrorIs(t, err, domain.ErrBackendStop)
	assert.Equal(t, StateStopped, c.State())
}

func TestCache_BackendErrors(t *testing.T) {
	m := new(MockStore)
	ioErr := errors.New("i/o timeout")
	m.On("Start", mock.Anything).Return(nil)
	m.On("Stop", mock.Anything).Return(nil)
	m.On("Get", mock.Anything, mock.Anything).Return(nil, false, ioErr)
	m.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(ioErr)
	m.On("Delete", mock.Anything, mock.Anything).Return(ioErr)

	c := New(m, logger.NewNop())
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))
	defer c.Shutdown(ctx)

	_, err := c.Get(ctx, "s", "k")
	assert.ErrorIs(t, err, domain.ErrBackend)
	assert.ErrorIs(t, err, ioErr)
	assert.True(t, domain.IsRetryable(err))

	assert.ErrorIs(t, c.Set(ctx, "s", "k", "v"), domain.ErrBackend)
	assert.ErrorIs(t, c.Delete(ctx, "s", "k"), domain.ErrBackend)
}

func TestCache_StoreReceivesNormalizedAddress(t *testing.T) {
	m := new(MockStore)
	m.On("Start", mock.Anything).Return(nil)
	m.On("Stop", mock.Anything).Return(nil)
	m.On("Set", mock.Anything, domain.Address{Segment: "Orders", Key: "a123"}, mock.Anything, 5*time.Second).Return(nil)

	c := New(m, logger.NewNop())
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))
	defer c.Shutdown(ctx)

	require.NoError(t, c.Set(ctx, "Orders", "A123", "v", WithTTL(5*time.Second)))
	m.AssertExpectations(t)
}

func TestCache_CorruptRecordIsBackendError(t *testing.T) {
	m := new(MockStore)
	m.On("Start", mock.Anything).Return(nil)
	m.On("Stop", mock.Anything).Return(nil)
	m.On("Get", mock.Anything, mock.Anything).Return([]byte("garbage"), true, nil)

	c := New(m, logger.NewNop())
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))
	defer c.Shutdown(ctx)

	_, err := c.Get(ctx, "s", "k")
	assert.ErrorIs(t, err, domain.ErrBackend)
}

func TestCache_ValueIsIsolatedFromCaller(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	value := map[string]int{"total": 1}
	require.NoError(t, c.Set(ctx, "s", "k", value))
	value["total"] = 2

	first, err := c.Get(ctx, "s", "k")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.JSONEq(t, `{"total":1}`, string(first.Item))

	first.Item[0] = 'X'

	second, err := c.Get(ctx, "s", "k")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.JSONEq(t, `{"total":1}`, string(second.Item))
}

func TestCache_Stats(t *testing.T) {
	clock := newFakeClock()
	// Real-time store so the expired record is still returned to the engine
	c := New(store.NewMemoryStore(), logger.NewNop(), WithClock(clock.Now))
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))
	defer c.Shutdown(ctx)

	require.NoError(t, c.Set(ctx, "s", "k", "v", WithTTLMillis(1000)))
	_, _ = c.Get(ctx, "s", "k")
	_, _ = c.Get(ctx, "s", "missing")
	clock.Advance(2 * time.Second)
	_, _ = c.Get(ctx, "s", "k")
	require.NoError(t, c.Delete(ctx, "s", "k"))

	stats := c.Stats()
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, "ready", stats.State)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, int64(1), stats.Deletes)
	assert.InDelta(t, 1.0/3.0, stats.HitRate, 0.0001)
}

func TestCache_JanitorFollowsLifecycle(t *testing.T) {
	c := New(store.NewMemoryStore(), logger.NewNop(), WithSweepSchedule("@every 1m"))
	ctx := context.Background()

	require.NoError(t, c.Initialize(ctx))
	assert.NotNil(t, c.janitor)

	require.NoError(t, c.Shutdown(ctx))
	assert.Nil(t, c.janitor)
}

func TestCache_InvalidSweepScheduleFailsInitialize(t *testing.T) {
	c := New(store.NewMemoryStore(), logger.NewNop(), WithSweepSchedule("not a schedule"))

	err := c.Initialize(context.Background())
	assert.ErrorIs(t, err, domain.ErrBackendStart)
	assert.Equal(t, StateUnstarted, c.State())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i%10)

			assert.NoError(t, c.Set(ctx, "concurrent", key, order{Total: i}))
			_, err := c.Get(ctx, "concurrent", key)
			assert.NoError(t, err)
			if i%7 == 0 {
				assert.NoError(t, c.Delete(ctx, "concurrent", key))
			}
		}(i)
	}
	wg.Wait()

	stats := c.Stats()
	assert.Equal(t, int64(50), stats.Sets)
	assert.Equal(t, int64(50), stats.Hits+stats.Misses)
}

func TestCache_GetReturnsRawJSON(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "s", "k", []string{"a", "b"}))

	item, err := c.Get(ctx, "s", "k")
	require.NoError(t, err)
	require.NotNil(t, item)

	var got []string
	require.NoError(t, json.Unmarshal(item.Item, &got))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestCache_TTLMillisBeyondDurationRange(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	for _, ms := range []int64{maxTTLMillis, maxTTLMillis + 1, 10_000_000_000_000, 18_446_744_073_720, math.MaxInt64} {
		require.NoError(t, c.Set(ctx, "s", "k", "v", WithTTLMillis(ms)), ms)

		item, err := c.Get(ctx, "s", "k")
		require.NoError(t, err)
		require.NotNil(t, item, ms)
		assert.Equal(t, maxTTLMillis, item.TTL, ms)
	}

	for _, ms := range []int64{0, -1, -18_446_744_073_720, math.MinInt64} {
		err := c.Set(ctx, "s", "k", "v", WithTTLMillis(ms))
		assert.ErrorIs(t, err, domain.ErrInvalidTTL, ms)
	}
}

// gatedStore holds Get calls until release is closed
type gatedStore struct {
	*store.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) Get(ctx context.Context, addr domain.Address) ([]byte, bool, error) {
	close(s.entered)
	<-s.release
	return s.MemoryStore.Get(ctx, addr)
}

func TestCache_OperationOutlivingShutdownDrain(t *testing.T) {
	st := &gatedStore{
		MemoryStore: store.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	c := New(st, logger.NewNop())
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))
	require.NoError(t, c.Set(ctx, "s", "k", "v"))

	result := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "s", "k")
		result <- err
	}()
	<-st.entered

	drainCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Shutdown(drainCtx))
	assert.Equal(t, StateStopped, c.State())

	close(st.release)

	select {
	case err := <-result:
		assert.ErrorIs(t, err, domain.ErrBackend)
		assert.ErrorIs(t, err, store.ErrNotStarted)
	case <-time.After(time.Second):
		t.Fatal("in-flight get did not return")
	}
}
