package secret

import (
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

// FileStore keeps secrets as JWE-encrypted files in a directory. It is the
// fallback for hosts without a usable keychain.
type FileStore struct {
	ring keyring.Keyring
}

// NewFileStore opens (creating if needed) dir. password encrypts every entry.
func NewFileStore(dir, password string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("secret: file backend needs secrets.file_dir")
	}
	if password == "" {
		return nil, errors.New("secret: file backend needs secrets.file_password")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create secrets dir: %w", err)
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:      keychainService,
		AllowedBackends:  []keyring.BackendType{keyring.FileBackend},
		FileDir:          dir,
		FilePasswordFunc: keyring.FixedStringPrompt(password),
	})
	if err != nil {
		return nil, fmt.Errorf("open file keyring: %w", err)
	}
	return &FileStore{ring: ring}, nil
}

func (f *FileStore) Set(key string, value []byte) error {
	if err := f.ring.Set(keyring.Item{Key: key, Data: value}); err != nil {
		return fmt.Errorf("file keyring set: %w", err)
	}
	return nil
}

func (f *FileStore) Get(key string) ([]byte, error) {
	item, err := f.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("file keyring get: %w", err)
	}
	return item.Data, nil
}

func (f *FileStore) Delete(key string) error {
	err := f.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("file keyring delete: %w", err)
	}
	return nil
}
