package encrypt

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// secretBytes is the size of a generated secret before encoding.
const secretBytes = 32

// KeyringSource keeps the encryption secret in the system keyring under
// Service and User.
type KeyringSource struct {
	Service string
	User    string
}

// Secret returns the stored secret, generating and storing a random one the
// first time.
func (k KeyringSource) Secret() (string, error) {
	secret, err := keyring.Get(k.Service, k.User)
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("keyring %s/%s: %w", k.Service, k.User, err)
	}

	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	secret = base64.StdEncoding.EncodeToString(buf)
	if err := keyring.Set(k.Service, k.User, secret); err != nil {
		return "", fmt.Errorf("keyring %s/%s: %w", k.Service, k.User, err)
	}
	return secret, nil
}

// Forget removes the stored secret. Values encrypted under it can no longer
// be decrypted. Forgetting a missing secret succeeds.
func (k KeyringSource) Forget() error {
	err := keyring.Delete(k.Service, k.User)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring %s/%s: %w", k.Service, k.User, err)
	}
	return nil
}
