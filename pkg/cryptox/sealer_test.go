package cryptox_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/maidrobe/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func newTestSealer(t *testing.T, secret string) (*cryptox.Sealer, []byte) {
	t.Helper()

	salt, err := cryptox.NewSalt()
	require.NoError(t, err)

	sealer, err := cryptox.NewSealer([]byte(secret), salt)
	require.NoError(t, err)
	return sealer, salt
}

func TestSealOpen(t *testing.T) {
	t.Parallel()

	sealer, _ := newTestSealer(t, "device-secret-for-tests")
	plaintext := []byte(`{"session":{"access_token":"abc"}}`)

	sealed, err := sealer.Seal(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, sealed, "sealed data should differ from plaintext")

	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestSealUsesFreshNonce(t *testing.T) {
	t.Parallel()

	sealer, _ := newTestSealer(t, "device-secret-for-tests")
	data := []byte("same input twice")

	a, err := sealer.Seal(data)
	require.NoError(t, err)
	b, err := sealer.Seal(data)
	require.NoError(t, err)

	require.NotEqual(t, a, b, "multiple seals should produce different ciphertexts")
}

func TestOpenRejectsTampering(t *testing.T) {
	t.Parallel()

	sealer, _ := newTestSealer(t, "device-secret-for-tests")

	sealed, err := sealer.Seal([]byte("payload"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xFF
	_, err = sealer.Open(sealed)
	require.Error(t, err)
}

func TestOpenRejectsShortInput(t *testing.T) {
	t.Parallel()

	sealer, _ := newTestSealer(t, "device-secret-for-tests")

	_, err := sealer.Open([]byte{1, 2, 3})
	require.ErrorIs(t, err, cryptox.ErrCiphertextTooShort)
}

func TestOpenWithDifferentSecretFails(t *testing.T) {
	t.Parallel()

	sealer, salt := newTestSealer(t, "first-secret")
	other, err := cryptox.NewSealer([]byte("second-secret"), salt)
	require.NoError(t, err)

	sealed, err := sealer.Seal([]byte("payload"))
	require.NoError(t, err)

	_, err = other.Open(sealed)
	require.Error(t, err)
}

func TestNewSealerValidation(t *testing.T) {
	t.Parallel()

	t.Run("empty secret", func(t *testing.T) {
		_, err := cryptox.NewSealer(nil, make([]byte, cryptox.SaltSize))
		require.Error(t, err)
	})

	t.Run("short salt", func(t *testing.T) {
		_, err := cryptox.NewSealer([]byte("secret"), []byte("short"))
		require.Error(t, err)
	})
}

func TestLoadOrCreateDeviceSecret(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "device.key")

	created, err := cryptox.LoadOrCreateDeviceSecret(path)
	require.NoError(t, err)
	require.Len(t, created, cryptox.DeviceSecretSize)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Second call reads the same secret back
	loaded, err := cryptox.LoadOrCreateDeviceSecret(path)
	require.NoError(t, err)
	require.Equal(t, created, loaded)
}
