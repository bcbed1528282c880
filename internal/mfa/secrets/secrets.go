// Package secrets seals TOTP secrets at rest with XChaCha20-Poly1305.
//
// The AEAD key is derived from the configured master key with HKDF-SHA256.
// Sealed values are nonce|ciphertext|tag; the subject id is bound as
// additional data so a sealed secret cannot be moved between rows.
package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const info = "aegis/mfa/totp-secret/v1"

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrOpenFailed        = errors.New("secret authentication failed")
)

type Sealer struct {
	aead cipher.AEAD
}

func New(masterKey string) (*Sealer, error) {
	if len(masterKey) < 16 {
		return nil, errors.New("mfa encryption key must be at least 16 bytes")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(masterKey), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Seal(plaintext []byte, subjectID string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, []byte(subjectID)), nil
}

func (s *Sealer) Open(sealed []byte, subjectID string) ([]byte, error) {
	if len(sealed) < s.aead.NonceSize()+s.aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}
	nonce, ct := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	out, err := s.aead.Open(nil, nonce, ct, []byte(subjectID))
	if err != nil {
		return nil, ErrOpenFailed
	}
	return out, nil
}
