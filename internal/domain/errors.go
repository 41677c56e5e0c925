package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the cache. Every failure returned by the engine
// matches exactly one of these through errors.Is.
var (
	// ErrNotInitialized is returned when an operation runs outside the Ready state
	ErrNotInitialized = errors.New("cache not initialized")

	// ErrInvalidTTL is returned for a zero or negative TTL
	ErrInvalidTTL = errors.New("ttl must be positive")

	// ErrInvalidAddress is returned for an empty or malformed segment or key
	ErrInvalidAddress = errors.New("invalid cache address")

	// ErrSerialization is returned when a value cannot be encoded or decoded
	ErrSerialization = errors.New("value serialization failed")

	// ErrBackend is returned for I/O or connection faults in the backend store.
	// Safe to retry; the engine never retries on its own.
	ErrBackend = errors.New("cache backend failure")

	// ErrBackendStart is returned when the backend could not be started
	ErrBackendStart = errors.New("cache backend failed to start")

	// ErrBackendStop is returned when the backend could not be released
	ErrBackendStop = errors.New("cache backend failed to stop")
)

// CacheError carries the failing operation and address alongside the error
// kind and the underlying cause.
type CacheError struct {
	Kind    error    // One of the sentinel kinds above
	Op      string   // "get", "set", "delete", "initialize", "shutdown"
	Address *Address // nil for lifecycle operations
	Err     error    // Underlying cause, may be nil
}

// Error implements the error interface
func (e *CacheError) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Address != nil {
		msg = fmt.Sprintf("%s %s/%s: %s", e.Op, e.Address.Segment, e.Address.Key, e.Kind.Error())
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As
func (e *CacheError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewCacheError creates an error for an address-scoped operation
func NewCacheError(kind error, op string, addr Address, err error) *CacheError {
	return &CacheError{
		Kind:    kind,
		Op:      op,
		Address: &addr,
		Err:     err,
	}
}

// NewLifecycleError creates an error for initialize or shutdown
func NewLifecycleError(kind error, op string, err error) *CacheError {
	return &CacheError{
		Kind: kind,
		Op:   op,
		Err:  err,
	}
}

// IsRetryable reports whether the failure is a transient backend fault.
// Caller bugs (bad TTL, bad address, unencodable value, not initialized) are not.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBackend)
}
