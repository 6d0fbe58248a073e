// Package credentials provides secure storage for the OpenAI API key used by
// extraction and embedding calls.
//
// The key is stored in the system keyring:
//   - macOS: Keychain
//   - Windows: Credential Manager
//   - Linux: Secret Service (libsecret)
//
// For CI and headless environments, OPENAI_API_KEY takes precedence over the
// keyring.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "rolograph"
	keyringUser    = "openai-api-key"

	// EnvAPIKey overrides the keyring when set.
	EnvAPIKey = "OPENAI_API_KEY"
)

// ErrNoAPIKey is returned when no API key is stored anywhere.
var ErrNoAPIKey = errors.New("no API key stored; run 'rolo auth set-key' or set OPENAI_API_KEY")

// Store manages API key storage operations.
type Store struct {
	service string
}

// NewStore creates a credential store backed by the system keyring.
func NewStore() *Store {
	return &Store{service: keyringService}
}

// APIKey returns the OpenAI API key, preferring the environment variable
// over the keyring.
func (s *Store) APIKey() (string, error) {
	if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" {
		return key, nil
	}

	key, err := keyring.Get(s.service, keyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoAPIKey
		}
		return "", fmt.Errorf("reading API key from keyring: %w", err)
	}
	if key == "" {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// SetAPIKey stores the OpenAI API key in the system keyring.
func (s *Store) SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("API key must not be empty")
	}
	if err := keyring.Set(s.service, keyringUser, key); err != nil {
		return fmt.Errorf("storing API key in keyring: %w", err)
	}
	return nil
}

// DeleteAPIKey removes the stored API key. Deleting a missing key is not an
// error.
func (s *Store) DeleteAPIKey() error {
	err := keyring.Delete(s.service, keyringUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting API key from keyring: %w", err)
	}
	return nil
}
