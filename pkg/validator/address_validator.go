package validator

import (
	"unicode"
	"unicode/utf8"
)

// MaxPartLength caps segment and key sizes in bytes
const MaxPartLength = 256

// ValidateSegment checks that a segment name is usable as a namespace.
// Segments are case-sensitive so nothing is normalized here.
func ValidateSegment(segment string) error {
	if segment == "" {
		return &ValidationError{Field: "segment", Message: "segment cannot be empty"}
	}

	if len(segment) > MaxPartLength {
		return &ValidationError{Field: "segment", Message: "segment too long (max 256 bytes)"}
	}

	if !utf8.ValidString(segment) {
		return &ValidationError{Field: "segment", Message: "segment must be valid UTF-8"}
	}

	for _, r := range segment {
		if unicode.IsControl(r) {
			return &ValidationError{Field: "segment", Message: "segment contains control characters"}
		}
	}

	return nil
}

// ValidateKey checks that a key identifies an item
func ValidateKey(key string) error {
	if key == "" {
		return &ValidationError{Field: "key", Message: "key cannot be empty"}
	}

	if len(key) > MaxPartLength {
		return &ValidationError{Field: "key", Message: "key too long (max 256 bytes)"}
	}

	if !utf8.ValidString(key) {
		return &ValidationError{Field: "key", Message: "key must be valid UTF-8"}
	}

	return nil
}

// ValidateAddress validates both parts of a (segment, key) address
func ValidateAddress(segment, key string) error {
	if err := ValidateSegment(segment); err != nil {
		return err
	}
	return ValidateKey(key)
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
