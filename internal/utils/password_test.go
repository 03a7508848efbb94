package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword_VerifiesAndHidesPlaintext(t *testing.T) {
	for _, pw := range []string{"correct horse", "p@ssw0rd!", "ünïcødé-pass"} {
		hash, err := HashPassword(pw, bcrypt.MinCost)
		require.NoError(t, err)
		assert.NotContains(t, hash, pw)
		assert.True(t, IsPasswordHash(hash))
		assert.True(t, VerifyPassword(hash, pw))
		assert.False(t, VerifyPassword(hash, pw+"x"))
	}
}

func TestVerifyPassword_EmptyHash(t *testing.T) {
	assert.False(t, VerifyPassword("", ""))
	assert.False(t, VerifyPassword("", "anything"))
}

func TestIsPasswordHash(t *testing.T) {
	hash, err := HashPassword("secret123", bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"bcrypt", hash, true},
		{"plain", "secret123", false},
		{"prefix only", "$2b$10$", false},
		{"wrong variant", "$2x$10$" + hash[7:], false},
		{"truncated", hash[:len(hash)-1], false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPasswordHash(tt.in))
		})
	}
}

func TestEnsureHashed_Idempotent(t *testing.T) {
	first, err := EnsureHashed("secret123", bcrypt.MinCost)
	require.NoError(t, err)

	second, err := EnsureHashed(first, bcrypt.MinCost)
	require.NoError(t, err)
	assert.Equal(t, first, second, "an existing hash must be stored as-is")

	third, err := EnsureHashed(second, bcrypt.MinCost)
	require.NoError(t, err)
	assert.Equal(t, first, third)
	assert.True(t, VerifyPassword(third, "secret123"))
}
