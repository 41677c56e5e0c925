package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultTTL is used by Set when the caller does not pick a TTL (60 minutes).
const DefaultTTL = 60 * time.Minute

// Entry is the record persisted per address: the encoded value plus the
// metadata captured at write time. StoredAt and TTL are set once by NewEntry
// and never touched by reads.
type Entry struct {
	Value    json.RawMessage `json:"value"`
	StoredAt int64           `json:"stored_at"` // epoch milliseconds
	TTL      int64           `json:"ttl"`       // original TTL in milliseconds
}

// NewEntry creates a record stamped with now.
func NewEntry(value json.RawMessage, now time.Time, ttl time.Duration) *Entry {
	return &Entry{
		Value:    value,
		StoredAt: now.UnixMilli(),
		TTL:      ttl.Milliseconds(),
	}
}

// Remaining returns the TTL left at now in milliseconds, never negative.
func (e *Entry) Remaining(now time.Time) int64 {
	left := e.TTL - (now.UnixMilli() - e.StoredAt)
	if left < 0 {
		return 0
	}
	return left
}

// IsExpired reports whether the entry has no lifetime left at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return e.Remaining(now) <= 0
}

// ExpiresAt returns the wall-clock instant the entry stops being readable.
func (e *Entry) ExpiresAt() time.Time {
	return time.UnixMilli(e.StoredAt + e.TTL)
}

// View derives the read-time representation of the entry.
func (e *Entry) View(now time.Time) *CachedItem[json.RawMessage] {
	return &CachedItem[json.RawMessage]{
		Item:   e.Value,
		Stored: e.StoredAt,
		TTL:    e.Remaining(now),
	}
}

// Marshal encodes the record for a backend store.
func (e *Entry) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEntry decodes a record previously produced by Entry.Marshal.
func UnmarshalEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode entry record: %w", err)
	}
	return &e, nil
}

// CachedItem is what reads return.
type CachedItem[V any] struct {
	// Item is the stored value.
	Item V `json:"item"`

	// Stored is the timestamp when the item was written, in epoch milliseconds.
	Stored int64 `json:"stored"`

	// TTL is the remaining time-to-live in milliseconds, not the original value.
	TTL int64 `json:"ttl"`
}

// Remaining returns TTL as a time.Duration.
func (c *CachedItem[V]) Remaining() time.Duration {
	return time.Duration(c.TTL) * time.Millisecond
}
