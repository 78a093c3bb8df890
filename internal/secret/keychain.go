package secret

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keychainService = "dbai"

// KeychainStore keeps secrets in the OS credential store (macOS Keychain,
// Secret Service on Linux, Windows Credential Manager).
type KeychainStore struct {
	service string
}

func NewKeychainStore() *KeychainStore {
	return &KeychainStore{service: keychainService}
}

func (k *KeychainStore) Set(key string, value []byte) error {
	if err := keyring.Set(k.service, key, string(value)); err != nil {
		return fmt.Errorf("keychain set: %w", err)
	}
	return nil
}

func (k *KeychainStore) Get(key string) ([]byte, error) {
	v, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("keychain get: %w", err)
	}
	return []byte(v), nil
}

func (k *KeychainStore) Delete(key string) error {
	err := keyring.Delete(k.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keychain delete: %w", err)
	}
	return nil
}
