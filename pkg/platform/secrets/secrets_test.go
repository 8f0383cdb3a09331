package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "obconsent/pkg/domain-errors"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.NoError(t, Verify("s3cret", hash))

	err = Verify("wrong", hash)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestHashRejectsUnusableSecrets(t *testing.T) {
	for _, secret := range []string{"", strings.Repeat("x", 73)} {
		_, err := Hash(secret)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), "got %v", err)
	}
}

func TestResolve(t *testing.T) {
	t.Run("hashes the plaintext when no hash is configured", func(t *testing.T) {
		hash, err := Resolve("s3cret", "")
		require.NoError(t, err)
		assert.NoError(t, Verify("s3cret", hash))
	})

	t.Run("keeps a configured bcrypt hash", func(t *testing.T) {
		stored, err := Hash("other")
		require.NoError(t, err)

		hash, err := Resolve("ignored", stored)
		require.NoError(t, err)
		assert.Equal(t, stored, hash)
	})

	t.Run("rejects a hash that is not bcrypt", func(t *testing.T) {
		_, err := Resolve("", "sha256:abc")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), "got %v", err)
	})
}
