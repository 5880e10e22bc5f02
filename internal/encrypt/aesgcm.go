// Package encrypt provides a reference encryption hook for encrypt-tagged
// fields and a system keyring source for its secret.
package encrypt

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrEmptyKey is returned when the hook is called without a key.
	ErrEmptyKey = errors.New("encrypt: empty key")

	// ErrCiphertextTooShort is returned for input shorter than a nonce.
	ErrCiphertextTooShort = errors.New("encrypt: ciphertext too short")
)

// AESGCM encrypts with AES-256-GCM under SHA-256(key). Output is the
// standard base64 of nonce followed by the sealed text.
//
// Encrypting the same plaintext twice yields different ciphertexts.
type AESGCM struct {
	random io.Reader
}

// AESGCMOption configures an AESGCM hook.
type AESGCMOption func(*AESGCM)

// WithRandom sets the nonce source. Default: crypto/rand.Reader.
func WithRandom(r io.Reader) AESGCMOption {
	return func(a *AESGCM) { a.random = r }
}

// NewAESGCM creates the hook.
func NewAESGCM(opts ...AESGCMOption) *AESGCM {
	a := &AESGCM{random: rand.Reader}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *AESGCM) aead(key string) (cipher.AEAD, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt implements marshal.Hook.
func (a *AESGCM) Encrypt(_ context.Context, plaintext, key string) (string, error) {
	gcm, err := a.aead(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(a.random, nonce); err != nil {
		return "", fmt.Errorf("encrypt: nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt implements marshal.Hook.
func (a *AESGCM) Decrypt(_ context.Context, ciphertext, key string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("encrypt: decode: %w", err)
	}
	gcm, err := a.aead(key)
	if err != nil {
		return "", err
	}

	n := gcm.NonceSize()
	if len(data) < n {
		return "", ErrCiphertextTooShort
	}
	plaintext, err := gcm.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("encrypt: open: %w", err)
	}
	return string(plaintext), nil
}
