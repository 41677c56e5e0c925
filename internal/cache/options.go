package cache

import (
	"math"
	"time"
)

// Option configures a Cache at construction
type Option func(*Cache)

// WithClock replaces the wall clock used to stamp and check entries
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithDefaultTTL changes the TTL used by Set when no WithTTL is given
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithSweepSchedule enables scheduled reclamation for stores that implement
// store.Sweeper. spec is a cron expression or descriptor such as "@every 1m".
func WithSweepSchedule(spec string) Option {
	return func(c *Cache) {
		c.sweepSchedule = spec
	}
}

// SetOption configures a single Set call
type SetOption func(*setOptions)

type setOptions struct {
	ttl time.Duration
}

// WithTTL sets how long the entry stays readable. It must be at least one millisecond.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = ttl
	}
}

// maxTTLMillis is the largest millisecond TTL a time.Duration can hold (about 292 years)
const maxTTLMillis = math.MaxInt64 / int64(time.Millisecond)

// WithTTLMillis is WithTTL expressed in milliseconds. Values beyond what a
// time.Duration can hold are clamped to maxTTLMillis.
func WithTTLMillis(ms int64) SetOption {
	switch {
	case ms <= 0:
		return WithTTL(0)
	case ms > maxTTLMillis:
		ms = maxTTLMillis
	}
	return WithTTL(time.Duration(ms) * time.Millisecond)
}
