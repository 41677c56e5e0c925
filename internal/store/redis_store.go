package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"segment-cache/internal/domain"
	"segment-cache/pkg/logger"
)

var _ Store = (*RedisStore)(nil)

// RedisOptions configures the redis backend
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // Namespace prefix to avoid collisions with other applications
}

// RedisStore implements Store on top of Redis.
// Records are written with SET PX so Redis itself reclaims them once their
// TTL elapses; no sweep is needed.
type RedisStore struct {
	opts   RedisOptions
	logger *logger.Logger

	mu     sync.RWMutex
	client *redis.Client // nil until Start
}

// NewRedisStore creates an unconnected redis store. The connection is opened by Start.
func NewRedisStore(opts RedisOptions, log *logger.Logger) *RedisStore {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "segcache"
	}
	return &RedisStore{
		opts:   opts,
		logger: log.Named("store.redis"),
	}
}

// Name implements Store
func (s *RedisStore) Name() string {
	return "redis"
}

// Start connects to Redis and verifies the connection with PING
func (s *RedisStore) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         s.opts.Addr,
		Password:     s.opts.Password,
		DB:           s.opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10, // Connection pool size
		MinIdleConns: 5,  // Minimum idle connections
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to Redis at %s: %w", s.opts.Addr, err)
	}

	s.client = client
	s.logger.Infow("Connected to Redis", "addr", s.opts.Addr, "db", s.opts.DB)
	return nil
}

// Stop closes the connection pool
func (s *RedisStore) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	if err != nil {
		return fmt.Errorf("redis close failed: %w", err)
	}
	return nil
}

// Get retrieves a record by address.
// A missing key is reported as ok=false, not as an error.
func (s *RedisStore) Get(ctx context.Context, addr domain.Address) ([]byte, bool, error) {
	client, err := s.conn()
	if err != nil {
		return nil, false, err
	}

	val, err := client.Get(ctx, s.prefixKey(addr)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	return val, true, nil
}

// Set stores a record with a server-enforced TTL.
// SET replaces the previous value atomically.
func (s *RedisStore) Set(ctx context.Context, addr domain.Address, data []byte, ttl time.Duration) error {
	client, err := s.conn()
	if err != nil {
		return err
	}

	if err := client.Set(ctx, s.prefixKey(addr), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// Delete removes a key from Redis. DEL on a missing key succeeds.
func (s *RedisStore) Delete(ctx context.Context, addr domain.Address) error {
	client, err := s.conn()
	if err != nil {
		return err
	}

	if err := client.Del(ctx, s.prefixKey(addr)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

func (s *RedisStore) conn() (*redis.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.client == nil {
		return nil, ErrNotStarted
	}
	return s.client, nil
}

// prefixKey adds the namespace prefix to the escaped address
func (s *RedisStore) prefixKey(addr domain.Address) string {
	return fmt.Sprintf("%s:%s", s.opts.KeyPrefix, addr.String())
}
