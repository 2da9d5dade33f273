package harden

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastParams keeps the KDF cheap in tests.
var fastParams = Params{Time: 1, MemoryKiB: 1024, Parallelism: 1}

func TestSaltDeterministic(t *testing.T) {
	a := Salt("alice")
	b := Salt("alice")
	assert.Equal(t, a, b)
	assert.Len(t, a, SaltLen)
}

func TestSaltDistinctUsers(t *testing.T) {
	assert.NotEqual(t, Salt("alice"), Salt("bob"))
}

func TestSaltNormalizesUserID(t *testing.T) {
	// U+00E9 vs e + combining acute accent: same user after NFKC.
	assert.Equal(t, Salt("rené"), Salt("rené"))
}

func TestHardenDeterministic(t *testing.T) {
	salt := Salt("alice")
	a, err := Harden("correct-horse", salt, fastParams)
	require.NoError(t, err)
	b, err := Harden("correct-horse", salt, fastParams)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, SecretLen)
}

func TestHardenDiffersByPasswordAndSalt(t *testing.T) {
	salt := Salt("alice")
	a, err := Harden("correct-horse", salt, fastParams)
	require.NoError(t, err)

	b, err := Harden("wrong-horse", salt, fastParams)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	c, err := Harden("correct-horse", Salt("bob"), fastParams)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestHardenNormalizesPassword(t *testing.T) {
	salt := Salt("alice")
	a, err := Harden("café", salt, fastParams)
	require.NoError(t, err)
	b, err := Harden("café", salt, fastParams)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHardenRejectsBadInput(t *testing.T) {
	salt := Salt("alice")

	_, err := Harden("", salt, fastParams)
	assert.ErrorIs(t, err, ErrHardeningFailed)

	_, err = Harden("pw", []byte("short"), fastParams)
	assert.ErrorIs(t, err, ErrHardeningFailed)

	_, err = Harden("pw", salt, Params{Time: 0, MemoryKiB: 1024, Parallelism: 1})
	assert.ErrorIs(t, err, ErrHardeningFailed)

	_, err = Harden("pw", salt, Params{Time: 1, MemoryKiB: 1024, Parallelism: 0})
	assert.ErrorIs(t, err, ErrHardeningFailed)
}
