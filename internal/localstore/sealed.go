package localstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealedStore encrypts the persisted credential at rest. Only the token key
// is sealed; the identity and cart are not secrets. An unreadable ciphertext
// (wrong key, truncated file) reads as an absent value so the session falls
// back to logged out instead of failing.
type sealedStore struct {
	Store
	key []byte
}

func Sealed(inner Store, key []byte) (Store, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("store key must be %d bytes", chacha20poly1305.KeySize)
	}
	return &sealedStore{Store: inner, key: key}, nil
}

// KeyFromHex decodes the SHOPFRONT_STORE_KEY env value.
func KeyFromHex(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("store key is not hex: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("store key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

func (s *sealedStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.Store.Get(ctx, key)
	if err != nil || key != KeyToken {
		return v, err
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(v) < aead.NonceSize() {
		return nil, ErrNoValue
	}
	nonce, ciphertext := v[:aead.NonceSize()], v[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrNoValue
	}
	return plain, nil
}

func (s *sealedStore) Set(ctx context.Context, key string, value []byte) error {
	if key != KeyToken {
		return s.Store.Set(ctx, key, value)
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	return s.Store.Set(ctx, key, aead.Seal(nonce, nonce, value, nil))
}
