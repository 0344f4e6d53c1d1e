package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestHasher() *SecretHasher {
	return NewSecretHasherForTest(bcrypt.MinCost)
}

func TestHash_OutputLooksBcrypt(t *testing.T) {
	hash, err := newTestHasher().Hash("3f0c2d9e-secret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2a$"), "got %q", hash)
}

func TestHash_SameSecretProducesDifferentHashes(t *testing.T) {
	h := newTestHasher()
	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "bcrypt salts every hash")
}

func TestHash_RejectsOver72Bytes(t *testing.T) {
	_, err := newTestHasher().Hash(strings.Repeat("a", 73))
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	h := newTestHasher()
	hash, err := h.Hash("right")
	require.NoError(t, err)

	assert.NoError(t, h.Verify(hash, "right"))
	assert.ErrorIs(t, h.Verify(hash, "wrong"), ErrSecretMismatch)
	assert.ErrorIs(t, h.Verify(hash, ""), ErrSecretMismatch)
}

func TestVerify_GarbageHash(t *testing.T) {
	err := newTestHasher().Verify("not-a-hash", "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSecretMismatch)
}
