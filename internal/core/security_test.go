// AngelaMos | 2026
// security_test.go

package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))
	assert.NotContains(t, hash, "correct horse battery")

	valid, err := VerifyPassword("correct horse battery", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = VerifyPassword("wrong password", hash)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestHashPasswordSaltsEveryCall(t *testing.T) {
	first, err := HashPassword("same password")
	require.NoError(t, err)
	second, err := HashPassword("same password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	_, err := VerifyPassword("anything", "not-an-argon2-hash")
	require.Error(t, err)
}

func TestVerifyPasswordTimingSafeNilHash(t *testing.T) {
	valid, rehash, err := VerifyPasswordTimingSafe("anything", nil)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Empty(t, rehash)
}

func TestVerifyPasswordTimingSafeMatch(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)

	valid, rehash, err := VerifyPasswordTimingSafe(
		"correct horse battery",
		&hash,
	)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Empty(t, rehash, "current parameters need no rehash")
}

func TestHashTokenIsDeterministicDigest(t *testing.T) {
	first := HashToken("header.payload.signature")
	second := HashToken("header.payload.signature")
	other := HashToken("header.payload.signature2")

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
	assert.Len(t, first, 64)
	assert.NotContains(t, first, ".")
}
