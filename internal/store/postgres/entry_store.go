package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"segment-cache/internal/domain"
	"segment-cache/internal/store"
	"segment-cache/pkg/logger"
)

var (
	_ store.Store   = (*EntryStore)(nil)
	_ store.Sweeper = (*EntryStore)(nil)
)

// EntryStore implements store.Store on a PostgreSQL table through GORM.
// Postgres has no native row TTL, so expired rows are reclaimed by Sweep.
type EntryStore struct {
	dsn    string
	logger *logger.Logger
	now    func() time.Time

	mu sync.RWMutex
	db *gorm.DB // nil until Start
}

// NewEntryStore creates a store for the database at dsn. The connection is opened by Start.
func NewEntryStore(dsn string, log *logger.Logger) *EntryStore {
	return &EntryStore{
		dsn:    dsn,
		logger: log.Named("store.postgres"),
		now:    time.Now,
	}
}

// Name implements store.Store
func (s *EntryStore) Name() string {
	return "postgres"
}

// Start connects, configures the pool, verifies the connection and migrates the table
func (s *EntryStore) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := gorm.Open(postgres.Open(s.dsn), &gorm.Config{
		Logger:                 newGormLogger(s.logger),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&CacheEntry{}); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("failed to migrate cache_entries: %w", err)
	}

	s.db = db
	s.logger.Infow("Database connection established successfully")
	return nil
}

// Stop closes the connection pool
func (s *EntryStore) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	s.db = nil
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Get retrieves the record for addr
func (s *EntryStore) Get(ctx context.Context, addr domain.Address) ([]byte, bool, error) {
	db, err := s.conn()
	if err != nil {
		return nil, false, err
	}

	var entry CacheEntry
	result := db.WithContext(ctx).
		Where("segment = ? AND entry_key = ?", addr.Segment, addr.Key).
		First(&entry)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("postgres get failed: %w", result.Error)
	}

	return entry.Data, true, nil
}

// Set upserts the record; the whole row is replaced in one statement
func (s *EntryStore) Set(ctx context.Context, addr domain.Address, data []byte, ttl time.Duration) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	entry := &CacheEntry{
		Segment:   addr.Segment,
		Key:       addr.Key,
		Data:      data,
		ExpiresAt: s.now().Add(ttl),
	}

	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "segment"}, {Name: "entry_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "expires_at", "updated_at"}),
		}).
		Create(entry)

	if result.Error != nil {
		return fmt.Errorf("postgres set failed: %w", result.Error)
	}
	return nil
}

// Delete removes the row for addr; zero affected rows is not an error
func (s *EntryStore) Delete(ctx context.Context, addr domain.Address) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	result := db.WithContext(ctx).
		Where("segment = ? AND entry_key = ?", addr.Segment, addr.Key).
		Delete(&CacheEntry{})

	if result.Error != nil {
		return fmt.Errorf("postgres delete failed: %w", result.Error)
	}
	return nil
}

// Sweep removes every expired row
func (s *EntryStore) Sweep(ctx context.Context) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	result := db.WithContext(ctx).
		Where("expires_at <= ?", s.now()).
		Delete(&CacheEntry{})

	if result.Error != nil {
		return 0, fmt.Errorf("postgres sweep failed: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

func (s *EntryStore) conn() (*gorm.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, store.ErrNotStarted
	}
	return s.db, nil
}
