package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/zalando/go-keyring"
)

// Default credential key, shared with the desktop client so both find the
// same stored refresh token.
const (
	DefaultService = "GPTToolkitMacApp"
	DefaultAccount = "refreshToken"
)

// Key identifies one stored secret.
type Key struct {
	Service string
	Account string
}

// DefaultKey returns the key holding the refresh token.
func DefaultKey() Key {
	return Key{Service: DefaultService, Account: DefaultAccount}
}

func (k Key) String() string {
	return k.Service + "::" + k.Account
}

// CredentialStore persists opaque secrets across runs.
//
// Read never fails: an unreadable entry is reported as absent. Delete of an
// absent entry succeeds.
type CredentialStore interface {
	Save(key Key, value []byte) error
	Read(key Key) ([]byte, bool)
	Delete(key Key) error
}

// Store handles credential storage, preferring the system keychain and
// falling back to a 0600 file when no keychain is reachable.
type Store struct {
	useKeyring  bool
	fallbackDir string

	// mu serializes file access within the process; the flock guards
	// against a second gptkit process rewriting the file concurrently.
	mu sync.Mutex
}

// NewStore creates a credential store. Setting GPTKIT_NO_KEYRING forces the
// file backend.
func NewStore(fallbackDir string) *Store {
	if os.Getenv("GPTKIT_NO_KEYRING") != "" {
		return &Store{useKeyring: false, fallbackDir: fallbackDir}
	}

	probe := Key{Service: DefaultService, Account: "gptkit::probe"}
	if err := keyring.Set(probe.Service, probe.Account, "probe"); err == nil {
		_ = keyring.Delete(probe.Service, probe.Account)
		return &Store{useKeyring: true, fallbackDir: fallbackDir}
	}
	fmt.Fprintf(os.Stderr, "warning: system keyring unavailable, credentials stored in plaintext at %s\n",
		filepath.Join(fallbackDir, "credentials.json"))
	return &Store{useKeyring: false, fallbackDir: fallbackDir}
}

// NewFileStore creates a store that only uses the plaintext file backend.
func NewFileStore(dir string) *Store {
	return &Store{useKeyring: false, fallbackDir: dir}
}

// NewKeyringStore creates a store that only uses the system keychain.
func NewKeyringStore() *Store {
	return &Store{useKeyring: true}
}

// UsingKeyring returns true if the store is using the system keyring.
func (s *Store) UsingKeyring() bool {
	return s.useKeyring
}

// Save stores value under key, replacing any previous value.
func (s *Store) Save(key Key, value []byte) error {
	if s.useKeyring {
		if err := keyring.Set(key.Service, key.Account, string(value)); err != nil {
			return fmt.Errorf("failed to save %s to keyring: %w", key, err)
		}
		return nil
	}
	return s.withFile(func(all map[string][]byte) (bool, error) {
		all[key.String()] = value
		return true, nil
	})
}

// Read returns the value stored under key.
func (s *Store) Read(key Key) ([]byte, bool) {
	if s.useKeyring {
		v, err := keyring.Get(key.Service, key.Account)
		if err != nil {
			return nil, false
		}
		return []byte(v), true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadAllFromFile()
	if err != nil {
		return nil, false
	}
	v, ok := all[key.String()]
	return v, ok
}

// Delete removes key. A missing entry is not an error.
func (s *Store) Delete(key Key) error {
	if s.useKeyring {
		err := keyring.Delete(key.Service, key.Account)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to delete %s from keyring: %w", key, err)
		}
		return nil
	}
	return s.withFile(func(all map[string][]byte) (bool, error) {
		if _, ok := all[key.String()]; !ok {
			return false, nil
		}
		delete(all, key.String())
		return true, nil
	})
}

// MigrateToKeyring moves every entry of the plaintext file into the keyring
// and removes the file.
func (s *Store) MigrateToKeyring() error {
	if !s.useKeyring || s.fallbackDir == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadAllFromFile()
	if err != nil || len(all) == 0 {
		return nil //nolint:nilerr // nothing readable to migrate
	}
	for name, value := range all {
		service, account, ok := strings.Cut(name, "::")
		if !ok {
			continue
		}
		if err := keyring.Set(service, account, string(value)); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", name, err)
		}
	}
	_ = os.Remove(s.credentialsPath())
	return nil
}

// File fallback

func (s *Store) credentialsPath() string {
	return filepath.Join(s.fallbackDir, "credentials.json")
}

func (s *Store) lockPath() string {
	return filepath.Join(s.fallbackDir, ".credentials.lock")
}

// withFile runs a read-modify-write cycle on the credentials file under both
// locks. fn reports whether the map changed and must be written back.
func (s *Store) withFile(fn func(map[string][]byte) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.fallbackDir, 0700); err != nil {
		return fmt.Errorf("failed to create credentials dir: %w", err)
	}
	lock := flock.New(s.lockPath())
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock credentials file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	all, err := s.loadAllFromFile()
	if err != nil {
		return err
	}
	changed, err := fn(all)
	if err != nil || !changed {
		return err
	}
	return s.saveAllToFile(all)
}

func (s *Store) loadAllFromFile() (map[string][]byte, error) {
	data, err := os.ReadFile(s.credentialsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string][]byte), nil
		}
		return nil, err
	}

	var all map[string][]byte
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("invalid credentials file: %w", err)
	}
	if all == nil {
		all = make(map[string][]byte)
	}
	return all, nil
}

func (s *Store) saveAllToFile(all map[string][]byte) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(s.fallbackDir, "credentials-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	// Rename replaces atomically on Unix; Windows refuses an existing target.
	destPath := s.credentialsPath()
	if err := os.Rename(tmpPath, destPath); err != nil {
		if runtime.GOOS == "windows" {
			_ = os.Remove(destPath)
			return os.Rename(tmpPath, destPath)
		}
		os.Remove(tmpPath)
		return err
	}
	return nil
}
