package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

const (
	// SaltSize is the size of the random salt mixed into key derivation.
	SaltSize = 16

	// DeviceSecretSize is the number of random bytes written to a new device secret file.
	DeviceSecretSize = 32

	keySize = 32 // AES-256

	// argon2id parameters. Derivation runs once per process start so these can
	// afford to be on the heavier side for a phone.
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// ErrCiphertextTooShort is returned when sealed data is shorter than a nonce.
var ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")

// Sealer encrypts and authenticates small values (session bundles) using
// AES-256-GCM with a key derived from a device secret.
//
// The output format is: [12-byte nonce][encrypted data][16-byte auth tag]
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives an AES-256 key from secret and salt with argon2id and
// returns a Sealer using it.
func NewSealer(secret, salt []byte) (*Sealer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("cryptox: empty device secret")
	}
	if len(salt) < SaltSize {
		return nil, fmt.Errorf("cryptox: salt must be at least %d bytes, got %d", SaltSize, len(salt))
	}

	key := argon2.IDKey(secret, salt, argonTime, argonMemory, argonThreads, keySize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Sealer{aead: gcm}, nil
}

// Seal encrypts plaintext with a fresh random nonce.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// gcm.Seal appends the ciphertext and auth tag to nonce
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal and verifies its authentication tag.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, ErrCiphertextTooShort
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// LoadOrCreateDeviceSecret reads the device secret at path, creating it with
// DeviceSecretSize random bytes (mode 0600) when it does not exist yet.
func LoadOrCreateDeviceSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) == 0 {
			return nil, fmt.Errorf("device secret file %s is empty", path)
		}
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read device secret: %w", err)
	}

	secret := make([]byte, DeviceSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate device secret: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create device secret directory: %w", err)
	}
	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write device secret: %w", err)
	}
	return secret, nil
}
