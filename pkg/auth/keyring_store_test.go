package auth

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestKeyringStoreIndexesEntries(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	if err != nil {
		t.Fatalf("NewKeyringStore() error = %v", err)
	}

	for _, name := range []string{"main", "alt", "main"} {
		if err := store.Store(&Credentials{Scraper: name, Cookie: "sess=" + name}); err != nil {
			t.Fatalf("Store(%s) error = %v", name, err)
		}
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(list))
	}

	if err := store.Delete("main"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if store.Exists("main") {
		t.Error("main still exists after Delete")
	}
	list, _ = store.List()
	if len(list) != 1 || list[0].Scraper != "alt" {
		t.Errorf("List() after delete = %+v", list)
	}

	if _, err := store.Retrieve("main"); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Retrieve(deleted) error = %v, want ErrCredentialsNotFound", err)
	}
	if err := store.Delete("main"); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("second Delete() error = %v, want ErrCredentialsNotFound", err)
	}
}
