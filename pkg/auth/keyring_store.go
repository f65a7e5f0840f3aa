package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "ofdl"
	keyringPrefix  = "scraper_"
	// keyringIndex holds the JSON list of stored scraper names, since the
	// keychain APIs cannot enumerate a service's entries.
	keyringIndex = "index"
)

// KeyringStore keeps one JSON entry per scraper in the system keychain.
type KeyringStore struct{}

// NewKeyringStore returns a store once a probe write to the keychain
// succeeds.
func NewKeyringStore() (*KeyringStore, error) {
	const probe = "probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)
	return &KeyringStore{}, nil
}

func (k *KeyringStore) Store(creds *Credentials) error {
	if creds == nil || creds.Scraper == "" {
		return ErrInvalidCredentials
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := keyring.Set(keyringService, keyringPrefix+creds.Scraper, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}

	names, err := k.names()
	if err != nil {
		return err
	}
	if !slices.Contains(names, creds.Scraper) {
		return k.setNames(append(names, creds.Scraper))
	}
	return nil
}

func (k *KeyringStore) Retrieve(scraper string) (*Credentials, error) {
	if scraper == "" {
		return nil, ErrInvalidCredentials
	}
	data, err := keyring.Get(keyringService, keyringPrefix+scraper)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(data), &creds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	return &creds, nil
}

// List returns the indexed entries. Names whose entry has gone missing
// are skipped.
func (k *KeyringStore) List() ([]*Credentials, error) {
	names, err := k.names()
	if err != nil {
		return nil, err
	}
	out := make([]*Credentials, 0, len(names))
	for _, name := range names {
		creds, err := k.Retrieve(name)
		if errors.Is(err, ErrCredentialsNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, creds)
	}
	return out, nil
}

func (k *KeyringStore) Delete(scraper string) error {
	if scraper == "" {
		return ErrInvalidCredentials
	}
	err := keyring.Delete(keyringService, keyringPrefix+scraper)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrCredentialsNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}

	names, err := k.names()
	if err != nil {
		return err
	}
	return k.setNames(slices.DeleteFunc(names, func(n string) bool { return n == scraper }))
}

func (k *KeyringStore) Exists(scraper string) bool {
	if scraper == "" {
		return false
	}
	_, err := keyring.Get(keyringService, keyringPrefix+scraper)
	return err == nil
}

func (k *KeyringStore) names() ([]string, error) {
	data, err := keyring.Get(keyringService, keyringIndex)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring index: %w", err)
	}
	var names []string
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("corrupt keyring index: %w", err)
	}
	return names, nil
}

func (k *KeyringStore) setNames(names []string) error {
	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, keyringIndex, string(data)); err != nil {
		return fmt.Errorf("failed to write keyring index: %w", err)
	}
	return nil
}
