package kvserver

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxKeyLength is the longest key the server accepts, in characters.
	MaxKeyLength = 20

	// MaxValueLength bounds PUT values: a value must be strictly shorter, in
	// characters.
	MaxValueLength = 120
)

// IsValidKey reports whether key can be stored: non-empty, no space, at most
// MaxKeyLength characters.
func IsValidKey(key string) bool {
	return key != "" && utf8.RuneCountInString(key) <= MaxKeyLength && !strings.Contains(key, " ")
}

// IsDeleteIntent reports whether a PUT value asks for a delete.
// An absent value and an empty value are treated the same.
func IsDeleteIntent(value []byte) bool {
	return len(value) == 0
}

// isValidValue reports whether a PUT value is short enough.
func isValidValue(value []byte) bool {
	return utf8.RuneCount(value) < MaxValueLength
}
