package postgres

import (
	"time"
)

// CacheEntry is one row per cache address.
// (segment, entry_key) is the primary key so an upsert replaces the whole record.
type CacheEntry struct {
	Segment   string    `gorm:"primaryKey;size:256"`
	Key       string    `gorm:"column:entry_key;primaryKey;size:256"`
	Data      []byte    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index;not null"` // Used by Sweep only
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (CacheEntry) TableName() string {
	return "cache_entries"
}
