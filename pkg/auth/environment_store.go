package auth

import (
	"os"
	"strings"
)

// EnvironmentStore reads credentials from OFDL_<NAME>_COOKIE,
// OFDL_<NAME>_USER_AGENT and OFDL_<NAME>_XBC. It is read-only.
type EnvironmentStore struct {
	// Names lists the scrapers List reports on, since the environment
	// cannot be enumerated by scraper
	Names []string
}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore(names ...string) *EnvironmentStore {
	return &EnvironmentStore{Names: names}
}

// EnvPrefix returns the variable prefix for scraper, e.g. OFDL_MAIN_.
func EnvPrefix(scraper string) string {
	key := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, scraper)
	return "OFDL_" + key + "_"
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(*Credentials) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables
func (e *EnvironmentStore) Retrieve(scraper string) (*Credentials, error) {
	if scraper == "" {
		return nil, ErrInvalidCredentials
	}
	prefix := EnvPrefix(scraper)
	cookie := os.Getenv(prefix + "COOKIE")
	if cookie == "" {
		return nil, ErrCredentialsNotFound
	}
	return &Credentials{
		Scraper:   scraper,
		Cookie:    cookie,
		UserAgent: os.Getenv(prefix + "USER_AGENT"),
		XBC:       os.Getenv(prefix + "XBC"),
	}, nil
}

// List returns the known names that have a cookie in the environment
func (e *EnvironmentStore) List() ([]*Credentials, error) {
	out := []*Credentials{}
	for _, name := range e.Names {
		if c, err := e.Retrieve(name); err == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(scraper string) bool {
	_, err := e.Retrieve(scraper)
	return err == nil
}
