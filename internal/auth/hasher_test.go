package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_HashAndVerify(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("abc123")
	require.NoError(t, err)
	assert.NotEqual(t, "abc123", hash)

	ok, err := h.Verify("abc123", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	for _, other := range []string{"abc124", "ABC123", "abc123 ", "", "wrong1"} {
		ok, err := h.Verify(other, hash)
		require.NoError(t, err)
		assert.False(t, ok, "password %q must not verify", other)
	}
}

func TestBcryptHasher_SaltPerCall(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	first, err := h.Hash("abc123")
	require.NoError(t, err)
	second, err := h.Hash("abc123")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestBcryptHasher_CostEmbedded(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost + 1)

	hash, err := h.Hash("abc123")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost)
}

func TestNewBcryptHasher_OutOfRangeCostFallsBack(t *testing.T) {
	assert.Equal(t, DefaultBcryptCost, NewBcryptHasher(0).Cost())
	assert.Equal(t, DefaultBcryptCost, NewBcryptHasher(bcrypt.MaxCost+1).Cost())
	assert.Equal(t, 12, NewBcryptHasher(12).Cost())
}

func TestBcryptHasher_EmptyPassword(t *testing.T) {
	_, err := NewBcryptHasher(bcrypt.MinCost).Hash("")
	assert.ErrorIs(t, err, ErrPasswordEmpty)
}

func TestBcryptHasher_MalformedHash(t *testing.T) {
	ok, err := NewBcryptHasher(bcrypt.MinCost).Verify("abc123", "not-a-bcrypt-hash")
	require.Error(t, err)
	assert.False(t, ok)
}
