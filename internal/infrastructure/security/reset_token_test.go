package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetTokenHasher(t *testing.T) {
	t.Parallel()

	h := NewResetTokenHasher("reset-secret")
	plain, hash, err := h.Generate()
	require.NoError(t, err)

	assert.Len(t, plain, 40, "20 random bytes hex encoded")
	assert.Len(t, hash, 64)
	assert.NotEqual(t, plain, hash)
	assert.Equal(t, hash, h.Hash(plain), "hash must be deterministic")

	other, _, err := h.Generate()
	require.NoError(t, err)
	assert.NotEqual(t, plain, other)

	assert.NotEqual(t, hash, NewResetTokenHasher("another-secret").Hash(plain), "hash is keyed")
}
