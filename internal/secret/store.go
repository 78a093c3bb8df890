// Package secret stores connection passwords outside the application
// database. Backends: the OS keychain, an encrypted file directory, and an
// in-process map for tests and ephemeral sessions.
package secret

import (
	"errors"
	"fmt"

	"dbai/internal/config"
)

// ErrNotFound is returned by Get when no secret exists under the key.
var ErrNotFound = errors.New("secret: not found")

// SecretStore is a key/value store for sensitive bytes.
type SecretStore interface {
	// Set stores value under key, replacing any previous value.
	Set(key string, value []byte) error

	// Get returns the value for key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

// Open builds the backend named in cfg.
func Open(cfg config.SecretsConfig) (SecretStore, error) {
	switch cfg.Backend {
	case config.SecretsKeychain, "":
		return NewKeychainStore(), nil
	case config.SecretsFile:
		return NewFileStore(cfg.FileDir, cfg.FilePassword)
	case config.SecretsMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("secret: unknown backend %q", cfg.Backend)
	}
}
