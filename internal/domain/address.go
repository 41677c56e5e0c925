package domain

import (
	"net/url"
	"strings"
)

// Address identifies one cache entry: a segment (logical namespace such as
// "recent-orders") plus a key inside it.
//
// Keys are case-insensitive and always held in normalized form. Segments are
// case-sensitive and never normalized.
type Address struct {
	Segment string `json:"segment"`
	Key     string `json:"key"`
}

// NewAddress builds an Address with the key normalized.
func NewAddress(segment, key string) Address {
	return Address{Segment: segment, Key: NormalizeKey(key)}
}

// NormalizeKey returns the canonical form of a key.
func NormalizeKey(key string) string {
	return strings.ToLower(key)
}

// String flattens the address into one string, e.g. for a redis key.
// Both parts are query-escaped so a ':' in either can never cross the separator.
func (a Address) String() string {
	return url.QueryEscape(a.Segment) + ":" + url.QueryEscape(a.Key)
}
