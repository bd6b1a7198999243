package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
)

// DeviceSaltKey is the local item holding the key-derivation salt for the
// sealed secure store.
const DeviceSaltKey = "maidrobe:device:salt"

// Sealer encrypts and decrypts values with authenticated encryption.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

type sealedKV struct {
	inner  KV
	sealer Sealer
}

// NewSealedKV wraps inner so that values are sealed before they are written
// and opened after they are read. Keys are stored in the clear.
func NewSealedKV(inner KV, sealer Sealer) KV {
	return &sealedKV{inner: inner, sealer: sealer}
}

func (s *sealedKV) Get(ctx context.Context, key string) (string, error) {
	raw, err := s.inner.Get(ctx, key)
	if err != nil {
		return "", err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: sealed item %q is not valid base64: %w", ErrCorrupt, key, err)
	}

	plaintext, err := s.sealer.Open(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: failed to open sealed item %q: %w", ErrCorrupt, key, err)
	}
	return string(plaintext), nil
}

func (s *sealedKV) Set(ctx context.Context, key, value string) error {
	ciphertext, err := s.sealer.Seal([]byte(value))
	if err != nil {
		return fmt.Errorf("failed to seal item %q: %w", key, err)
	}
	return s.inner.Set(ctx, key, base64.StdEncoding.EncodeToString(ciphertext))
}

func (s *sealedKV) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

// LoadOrCreateSalt returns the device salt stored under DeviceSaltKey,
// generating and persisting one with newSalt when none exists yet. The read
// and the write happen in one transaction so concurrent first runs agree on
// a single salt.
func LoadOrCreateSalt(ctx context.Context, s Store, newSalt func() ([]byte, error)) ([]byte, error) {
	var salt []byte

	err := s.WithTx(ctx, func(tx Tx) error {
		encoded, err := tx.LocalItems().Get(ctx, DeviceSaltKey)
		switch {
		case err == nil:
			salt, err = base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return fmt.Errorf("stored device salt is corrupt: %w", err)
			}
			return nil

		case errors.Is(err, ErrNotFound):
			salt, err = newSalt()
			if err != nil {
				return err
			}
			return tx.LocalItems().Set(ctx, DeviceSaltKey, base64.StdEncoding.EncodeToString(salt))

		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	return salt, nil
}
