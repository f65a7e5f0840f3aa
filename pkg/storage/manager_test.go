package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ofdl/pkg/media"
)

func TestManager(t *testing.T) {
	tempDir := t.TempDir()

	manager, err := NewManager(filepath.Join(tempDir, "downloads"))
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	dest := manager.MediaPath("alice", media.SourceTypePosts, media.FileTypePhoto, "a.jpg")
	want := filepath.Join(tempDir, "downloads", "alice", "posts", "photos", "a.jpg")
	if dest != want {
		t.Fatalf("MediaPath = %q, want %q", dest, want)
	}

	testData := []byte("test photo data")
	n, err := manager.Place(bytes.NewReader(testData), dest)
	if err != nil {
		t.Fatalf("Failed to place file: %v", err)
	}
	if n != int64(len(testData)) {
		t.Errorf("Expected %d bytes written, got %d", len(testData), n)
	}

	content, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("Failed to read placed file: %v", err)
	}
	if !bytes.Equal(content, testData) {
		t.Error("File content does not match expected data")
	}

	if !manager.SameSize(dest, int64(len(testData))) {
		t.Error("Expected SameSize to match the placed file")
	}
	if manager.SameSize(dest, 3) {
		t.Error("Expected SameSize to reject a different length")
	}
	if manager.SameSize(dest+".missing", 0) {
		t.Error("Expected SameSize to be false for a missing file")
	}

	assertNoPartFiles(t, filepath.Dir(dest))
}

type failingReader struct {
	data []byte
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, errors.New("connection reset")
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestPlaceInterruptedLeavesNoFile(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	dest := manager.MediaPath("alice", media.SourceTypeMessages, media.FileTypeVideo, "clip.mp4")

	if _, err := manager.Place(&failingReader{data: []byte("half")}, dest); err == nil {
		t.Fatal("Expected an error from an interrupted stream")
	}
	if _, err := os.Stat(dest); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected no file at destination, stat error: %v", err)
	}
	assertNoPartFiles(t, filepath.Dir(dest))
}

func TestPlaceReplacesExisting(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	dest := filepath.Join(manager.UserDir("alice"), "a.jpg")

	for _, body := range []string{"first", "second version"} {
		if _, err := manager.Place(strings.NewReader(body), dest); err != nil {
			t.Fatalf("Failed to place file: %v", err)
		}
	}
	content, _ := os.ReadFile(dest)
	if string(content) != "second version" {
		t.Errorf("Expected replaced content, got %q", content)
	}
}

func TestTempName(t *testing.T) {
	a, b := TempName("/x/a.jpg"), TempName("/x/a.jpg")
	if a == b {
		t.Error("Expected unique temp names")
	}
	if !strings.HasPrefix(a, "/x/a.jpg.") || !strings.HasSuffix(a, PartSuffix) {
		t.Errorf("Unexpected temp name %q", a)
	}
}

func TestRotate(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	current := manager.ProfileImagePath("alice", media.SourceTypeAvatar)

	old, err := manager.Rotate(current, 100)
	if err != nil || old != "" {
		t.Fatalf("Expected no-op rotate for a missing image, got %q, %v", old, err)
	}

	if _, err := manager.Place(strings.NewReader("v1"), current); err != nil {
		t.Fatalf("Failed to place avatar: %v", err)
	}
	old, err = manager.Rotate(current, 100)
	if err != nil {
		t.Fatalf("Failed to rotate: %v", err)
	}
	if filepath.Base(old) != "avatar-100.jpg" {
		t.Errorf("Expected avatar-100.jpg, got %s", filepath.Base(old))
	}
	f, err := os.Open(old)
	if err != nil {
		t.Fatalf("Rotated file missing: %v", err)
	}
	defer f.Close()
	content, _ := io.ReadAll(f)
	if string(content) != "v1" {
		t.Errorf("Rotated content = %q", content)
	}
	if _, err := os.Stat(current); !errors.Is(err, os.ErrNotExist) {
		t.Error("Expected current avatar to be moved away")
	}
}

func assertNoPartFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		t.Fatalf("Failed to read %s: %v", dir, err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), PartSuffix) {
			t.Errorf("Unexpected temp file left behind: %s", e.Name())
		}
	}
}

func TestSweepParts(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	dest := manager.MediaPath("alice", media.SourceTypePosts, media.FileTypePhoto, "a.jpg")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatal(err)
	}
	stale := TempName(dest)
	fresh := TempName(dest)
	for _, p := range []string{stale, fresh, dest} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-2 * StalePartAge)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(dest, old, old); err != nil {
		t.Fatal(err)
	}

	removed, err := manager.SweepParts("alice", time.Now().Add(-StalePartAge))
	if err != nil {
		t.Fatalf("SweepParts() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("SweepParts() removed %d files, want 1", removed)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Error("stale temp file still exists")
	}
	for _, p := range []string{fresh, dest} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s was removed: %v", filepath.Base(p), err)
		}
	}
}

func TestSweepPartsMissingUser(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	removed, err := manager.SweepParts("nobody", time.Now())
	if err != nil || removed != 0 {
		t.Errorf("SweepParts(missing) = %d, %v", removed, err)
	}
}
