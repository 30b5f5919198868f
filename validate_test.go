package kvserver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidKey(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		valid bool
	}{
		{"simple", "foo", true},
		{"single char", "a", true},
		{"max length", strings.Repeat("k", MaxKeyLength), true},
		{"punctuation", "user:42/name", true},
		{"tab is allowed", "a\tb", true},
		{"empty", "", false},
		{"too long", strings.Repeat("k", MaxKeyLength+1), false},
		{"space inside", "foo bar", false},
		{"leading space", " foo", false},
		{"trailing space", "foo ", false},
		{"only space", " ", false},
		{"multibyte at max length", strings.Repeat("é", MaxKeyLength), true},
		{"multibyte under limit", strings.Repeat("é", 11), true},
		{"multibyte too long", strings.Repeat("é", MaxKeyLength+1), false},
		{"cjk", "キー", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidKey(tt.key))
		})
	}
}

func TestIsValidKey_AllShortSpacelessKeys(t *testing.T) {
	for n := 1; n <= MaxKeyLength; n++ {
		assert.True(t, IsValidKey(strings.Repeat("x", n)), "length %d", n)
		assert.False(t, IsValidKey(strings.Repeat("x", n-1)+" "), "length %d with space", n)
	}
}

func TestIsDeleteIntent(t *testing.T) {
	assert.True(t, IsDeleteIntent(nil))
	assert.True(t, IsDeleteIntent([]byte{}))
	assert.True(t, IsDeleteIntent([]byte("")))
	assert.False(t, IsDeleteIntent([]byte(" ")))
	assert.False(t, IsDeleteIntent([]byte("bar")))
}

func TestIsValidValue(t *testing.T) {
	assert.True(t, isValidValue(nil))
	assert.True(t, isValidValue([]byte(strings.Repeat("v", MaxValueLength-1))))
	assert.False(t, isValidValue([]byte(strings.Repeat("v", MaxValueLength))))

	// lengths count characters, not bytes
	assert.True(t, isValidValue([]byte(strings.Repeat("é", 70))))
	assert.True(t, isValidValue([]byte(strings.Repeat("é", MaxValueLength-1))))
	assert.False(t, isValidValue([]byte(strings.Repeat("é", MaxValueLength))))
}
