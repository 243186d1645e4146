package secret

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePassword(t *testing.T) {
	t.Run("Length", func(t *testing.T) {
		password, err := GeneratePassword()
		require.NoError(t, err, "should generate password")
		assert.Len(t, password, PasswordLength, "password should have fixed length")
	})

	t.Run("Charset", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			password, err := GeneratePassword()
			require.NoError(t, err, "should generate password")
			for _, c := range password {
				assert.True(t, strings.ContainsRune(Charset, c),
					"character %q should come from the declared charset", c)
			}
		}
	})

	t.Run("NotConstant", func(t *testing.T) {
		first, err := GeneratePassword()
		require.NoError(t, err)
		second, err := GeneratePassword()
		require.NoError(t, err)
		assert.NotEqual(t, first, second, "consecutive passwords should differ")
	})
}

func TestHasher(t *testing.T) {
	if _, err := exec.LookPath("mkpasswd"); err != nil {
		t.Skip("mkpasswd is not installed, skipping test")
	}

	ctx := zerolog.Nop().WithContext(context.Background())

	hasher, err := NewHasher()
	require.NoError(t, err, "should locate mkpasswd")

	hash, err := hasher.Hash(ctx, "correct horse battery staple")
	require.NoError(t, err, "should hash password")
	assert.True(t, strings.HasPrefix(hash, "$6$"), "hash should be SHA-512 crypt, got %q", hash)
	assert.NotContains(t, hash, "\n", "hash should be a single trimmed line")
}
