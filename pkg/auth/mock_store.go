package auth

import "sync"

// MockStore is an in-memory CredentialStore for tests. The *Error fields
// inject failures.
type MockStore struct {
	mu      sync.RWMutex
	entries map[string]*Credentials

	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates a new mock credential store
func NewMockStore() *MockStore {
	return &MockStore{entries: make(map[string]*Credentials)}
}

// NewMockManager creates a Manager over a single mock store
func NewMockManager() (*Manager, *MockStore) {
	store := NewMockStore()
	return NewManagerWithStores(store), store
}

func (m *MockStore) Store(creds *Credentials) error {
	if m.StoreError != nil {
		return m.StoreError
	}
	if creds == nil || creds.Scraper == "" {
		return ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c := *creds
	m.entries[creds.Scraper] = &c
	return nil
}

func (m *MockStore) Retrieve(scraper string) (*Credentials, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.entries[scraper]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	c := *stored
	return &c, nil
}

func (m *MockStore) List() ([]*Credentials, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Credentials, 0, len(m.entries))
	for _, stored := range m.entries {
		c := *stored
		out = append(out, &c)
	}
	return out, nil
}

func (m *MockStore) Delete(scraper string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[scraper]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.entries, scraper)
	return nil
}

func (m *MockStore) Exists(scraper string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[scraper]
	return ok
}

// Count returns the number of stored entries
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
