package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"segment-cache/internal/domain"
	"segment-cache/pkg/logger"
)

var (
	_ Store   = (*BoltStore)(nil)
	_ Sweeper = (*BoltStore)(nil)
)

// expiryHeaderLen is the size of the big-endian expiry prefix on every value
const expiryHeaderLen = 8

// BoltStore is a file-backed store. Every segment gets its own bucket and
// values are laid out as 8 bytes big-endian expiry (unix millis) || record.
// Writes are serialized by bolt's single writer transaction.
type BoltStore struct {
	path   string
	logger *logger.Logger
	now    func() time.Time

	mu sync.RWMutex
	db *bolt.DB // nil until Start
}

// NewBoltStore creates a store for the database file at path. The file is opened by Start.
func NewBoltStore(path string, log *logger.Logger) *BoltStore {
	return &BoltStore{
		path:   path,
		logger: log.Named("store.bolt"),
		now:    time.Now,
	}
}

// Name implements Store
func (s *BoltStore) Name() string {
	return "bolt"
}

// Start opens (or creates) the database file
func (s *BoltStore) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create bolt directory: %w", err)
		}
	}

	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return fmt.Errorf("open bolt database %s: %w", s.path, err)
	}

	s.db = db
	s.logger.Infow("Opened bolt database", "path", s.path)
	return nil
}

// Stop closes the database file. Records survive a restart.
func (s *BoltStore) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("close bolt database: %w", err)
	}
	return nil
}

// Get reads the record for addr. Records past their expiry are reported as absent.
func (s *BoltStore) Get(ctx context.Context, addr domain.Address) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, false, ErrNotStarted
	}

	var out []byte
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(addr.Segment))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(addr.Key))
		if v == nil {
			return nil
		}
		if len(v) < expiryHeaderLen {
			return fmt.Errorf("corrupt record: %d bytes, shorter than expiry header", len(v))
		}
		if expired(v, s.now()) {
			return nil
		}
		// v is only valid inside the transaction
		out = append([]byte(nil), v[expiryHeaderLen:]...)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("bolt get failed: %w", err)
	}

	return out, found, nil
}

// Set writes the record, creating the segment bucket on first use
func (s *BoltStore) Set(ctx context.Context, addr domain.Address, data []byte, ttl time.Duration) error {
	buf := make([]byte, expiryHeaderLen+len(data))
	binary.BigEndian.PutUint64(buf[:expiryHeaderLen], uint64(s.now().Add(ttl).UnixMilli()))
	copy(buf[expiryHeaderLen:], data)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return ErrNotStarted
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(addr.Segment))
		if err != nil {
			return err
		}
		return b.Put([]byte(addr.Key), buf)
	})
	if err != nil {
		return fmt.Errorf("bolt set failed: %w", err)
	}
	return nil
}

// Delete removes the record for addr if present
func (s *BoltStore) Delete(ctx context.Context, addr domain.Address) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return ErrNotStarted
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(addr.Segment))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(addr.Key))
	})
	if err != nil {
		return fmt.Errorf("bolt delete failed: %w", err)
	}
	return nil
}

// Sweep deletes expired records in every segment bucket
func (s *BoltStore) Sweep(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return 0, ErrNotStarted
	}

	now := s.now()
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			// Collect first: deleting through a cursor while iterating skips keys.
			var stale [][]byte
			if err := b.ForEach(func(k, v []byte) error {
				if len(v) < expiryHeaderLen || expired(v, now) {
					stale = append(stale, append([]byte(nil), k...))
				}
				return nil
			}); err != nil {
				return err
			}
			for _, k := range stale {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
			removed += len(stale)
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("bolt sweep failed: %w", err)
	}
	return removed, nil
}

func expired(v []byte, now time.Time) bool {
	expiresAt := int64(binary.BigEndian.Uint64(v[:expiryHeaderLen]))
	return now.UnixMilli() >= expiresAt
}
