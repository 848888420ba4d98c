// Package seal wraps XChaCha20-Poly1305 for sealing TOTP secrets at rest.
// Sealed blobs are nonce||ciphertext; tampering fails closed on Open.
package seal

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required seal key length in bytes.
const KeySize = chacha20poly1305.KeySize

var errSealedTooShort = errors.New("sealed blob too short")

// Box seals and opens byte blobs with a fixed process-wide key.
type Box struct {
	key []byte
}

// New creates a Box. The key must be exactly [KeySize] bytes.
func New(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, errors.New("seal key must be 32 bytes")
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Box{key: k}, nil
}

// Seal encrypts plain with a fresh random nonce.
func (b *Box) Seal(plain []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plain, nil), nil
}

// Open decrypts a blob produced by Seal.
func (b *Box) Open(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errSealedTooShort
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}
