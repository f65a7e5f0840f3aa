// Package auth stores per-scraper session credentials outside the config
// file. The Manager consults the system keyring, then an encrypted file,
// then the environment.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Credentials are the session values one scraper identity signs with.
type Credentials struct {
	Scraper      string    `json:"scraper"`
	Cookie       string    `json:"cookie"`
	UserAgent    string    `json:"user_agent,omitempty"`
	XBC          string    `json:"x_bc,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves credentials under creds.Scraper
	Store(creds *Credentials) error

	// Retrieve gets credentials for a scraper name
	Retrieve(scraper string) (*Credentials, error)

	// List returns every stored entry
	List() ([]*Credentials, error)

	// Delete removes credentials for a scraper name
	Delete(scraper string) error

	// Exists checks if credentials exist for a scraper name
	Exists(scraper string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a new credential manager with appropriate storage backends
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	// system keychain first
	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager over the given stores, consulted
// in order.
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves credentials using the first store that accepts them
func (m *Manager) Store(creds *Credentials) error {
	if creds == nil || creds.Scraper == "" {
		return errors.New("scraper name is required")
	}
	if creds.Cookie == "" {
		return errors.New("cookie is required")
	}

	creds.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(creds)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(scraper string) (*Credentials, error) {
	for _, store := range m.stores {
		if creds, err := store.Retrieve(scraper); err == nil && creds != nil {
			return creds, nil
		}
	}
	return nil, fmt.Errorf("%w for scraper %s", ErrCredentialsNotFound, scraper)
}

// List returns stored credentials from all stores, keeping the most
// recently modified entry per scraper, sorted by name.
func (m *Manager) List() ([]*Credentials, error) {
	byName := make(map[string]*Credentials)

	for _, store := range m.stores {
		entries, err := store.List()
		if err != nil {
			continue
		}
		for _, c := range entries {
			if existing, ok := byName[c.Scraper]; !ok || c.LastModified.After(existing.LastModified) {
				byName[c.Scraper] = c
			}
		}
	}

	result := make([]*Credentials, 0, len(byName))
	for _, c := range byName {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Scraper < result[j].Scraper })
	return result, nil
}

// Delete removes credentials from all stores
func (m *Manager) Delete(scraper string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(scraper); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if deleted {
		return nil
	}
	if lastErr != nil && !errors.Is(lastErr, ErrCredentialsNotFound) && !errors.Is(lastErr, ErrStoreUnavailable) {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	return fmt.Errorf("%w for scraper %s", ErrCredentialsNotFound, scraper)
}

// ConfigDir returns the directory credential files live in, creating it.
func ConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir = filepath.Join(dir, "ofdl")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// Masked returns a copy with the secret values masked for display.
func (c *Credentials) Masked() *Credentials {
	if c == nil {
		return nil
	}
	out := *c
	out.Cookie = maskString(c.Cookie)
	out.XBC = maskString(c.XBC)
	return &out
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
