package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	// PassphraseEnv overrides the generated passphrase file
	PassphraseEnv = "OFDL_PASSPHRASE"
)

// EncryptedFileStore keeps all credentials in one AES-GCM encrypted file.
// The key is derived with pbkdf2 from a passphrase taken from
// OFDL_PASSPHRASE or, failing that, a generated .passphrase file next to
// the store.
type EncryptedFileStore struct {
	filepath   string
	passphrase string
	mu         sync.RWMutex
}

type fileData struct {
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Version   int       `json:"version"`
	Modified  time.Time `json:"modified"`
}

// NewEncryptedFileStore creates a new encrypted file-based credential store
func NewEncryptedFileStore(filePath string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	passphrase, err := loadPassphrase(filepath.Join(dir, ".passphrase"))
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return &EncryptedFileStore{filepath: filePath, passphrase: passphrase}, nil
}

// Store saves credentials to the encrypted file
func (e *EncryptedFileStore) Store(creds *Credentials) error {
	if creds == nil || creds.Scraper == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	entries, salt, err := e.load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load existing data: %w", err)
	}
	if entries == nil {
		entries = make(map[string]Credentials)
	}
	entries[creds.Scraper] = *creds
	return e.save(entries, salt)
}

// Retrieve gets credentials from the encrypted file
func (e *EncryptedFileStore) Retrieve(scraper string) (*Credentials, error) {
	if scraper == "" {
		return nil, ErrInvalidCredentials
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	entries, _, err := e.load()
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	creds, ok := entries[scraper]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &creds, nil
}

// List returns all stored credentials
func (e *EncryptedFileStore) List() ([]*Credentials, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entries, _, err := e.load()
	if errors.Is(err, os.ErrNotExist) {
		return []*Credentials{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	out := make([]*Credentials, 0, len(entries))
	for _, c := range entries {
		out = append(out, &c)
	}
	return out, nil
}

// Delete removes credentials from the encrypted file. The file goes away
// with its last entry.
func (e *EncryptedFileStore) Delete(scraper string) error {
	if scraper == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	entries, salt, err := e.load()
	if errors.Is(err, os.ErrNotExist) {
		return ErrCredentialsNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load data: %w", err)
	}
	if _, ok := entries[scraper]; !ok {
		return ErrCredentialsNotFound
	}

	delete(entries, scraper)
	if len(entries) == 0 {
		return os.Remove(e.filepath)
	}
	return e.save(entries, salt)
}

// Exists checks if credentials exist
func (e *EncryptedFileStore) Exists(scraper string) bool {
	c, err := e.Retrieve(scraper)
	return err == nil && c != nil
}

// load reads and decrypts the file, returning its entries and salt.
func (e *EncryptedFileStore) load() (map[string]Credentials, []byte, error) {
	content, err := os.ReadFile(e.filepath)
	if err != nil {
		return nil, nil, err
	}

	var fd fileData
	if err := json.Unmarshal(content, &fd); err != nil {
		return nil, nil, fmt.Errorf("failed to parse file: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(fd.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(fd.Encrypted)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode encrypted data: %w", err)
	}

	plain, err := decrypt(sealed, e.key(salt))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt data: %w", err)
	}

	var entries map[string]Credentials
	if err := json.Unmarshal(plain, &entries); err != nil {
		return nil, nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return entries, salt, nil
}

// save encrypts entries and replaces the file. A nil salt draws a new one.
func (e *EncryptedFileStore) save(entries map[string]Credentials, salt []byte) error {
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	plain, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	sealed, err := encrypt(plain, e.key(salt))
	if err != nil {
		return fmt.Errorf("failed to encrypt data: %w", err)
	}

	content, err := json.MarshalIndent(fileData{
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(sealed),
		Version:   1,
		Modified:  time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal file data: %w", err)
	}

	tempFile := e.filepath + ".tmp"
	if err := os.WriteFile(tempFile, content, 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tempFile, e.filepath)
}

func (e *EncryptedFileStore) key(salt []byte) []byte {
	return pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
}

// loadPassphrase returns OFDL_PASSPHRASE, or the content of path, creating
// it with a random passphrase on first use.
func loadPassphrase(path string) (string, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return pass, nil
	}
	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return string(content), nil
	}

	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := base64.URLEncoding.EncodeToString(b)
	if err := os.WriteFile(path, []byte(passphrase), 0o600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}

// encrypt seals plaintext with AES-GCM, prefixing the nonce
func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
