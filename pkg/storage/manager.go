package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"ofdl/pkg/media"
)

const (
	// PartSuffix marks an in-progress download
	PartSuffix = ".part"

	// StalePartAge is how long a temp file may sit untouched before
	// SweepParts treats it as left behind by a crashed run.
	StalePartAge = time.Hour
)

// Manager places downloaded media under a download root.
type Manager struct {
	root string
}

// NewManager creates a new storage manager rooted at root
func NewManager(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download root: %w", err)
	}
	return &Manager{root: root}, nil
}

// Root returns the download root
func (m *Manager) Root() string {
	return m.root
}

// UserDir returns the directory holding everything for username.
func (m *Manager) UserDir(username string) string {
	return filepath.Join(m.root, username)
}

// MediaPath returns <root>/<username>/<source type>/<file type>s/<name>.
func (m *Manager) MediaPath(username string, st media.SourceType, ft media.FileType, name string) string {
	return filepath.Join(m.root, username, string(st), string(ft)+"s", name)
}

// ProfileImagePath returns the current avatar or header image for username,
// e.g. <root>/<username>/avatar.jpg.
func (m *Manager) ProfileImagePath(username string, kind media.SourceType) string {
	return filepath.Join(m.root, username, string(kind)+".jpg")
}

// SameSize reports whether path exists with exactly size bytes. A negative
// size (unknown length) compares as zero.
func (m *Manager) SameSize(path string, size int64) bool {
	if size < 0 {
		size = 0
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Size() == size
}

// Place streams r into dest. The bytes land in a uniquely named sibling
// temp file first, are synced, and are renamed over dest only once fully
// written, so dest is either absent, the previous file, or complete.
func (m *Manager) Place(r io.Reader, dest string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create media directory: %w", err)
	}

	tempFile := TempName(dest)
	out, err := os.OpenFile(tempFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}

	n, err := io.Copy(out, r)
	if err == nil {
		err = out.Sync()
	}
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return n, fmt.Errorf("failed to write media data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return n, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, dest); err != nil {
		os.Remove(tempFile)
		return n, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return n, nil
}

// TempName returns a fresh temp path next to dest
func TempName(dest string) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return dest + "." + token + PartSuffix
}

// Rotate renames the profile image at current to <stem>-<ts><ext> so a new
// image can take its place. A missing current image is not an error; the
// returned path is empty then.
func (m *Manager) Rotate(current string, ts int64) (string, error) {
	ext := filepath.Ext(current)
	stem := strings.TrimSuffix(current, ext)
	old := stem + "-" + strconv.FormatInt(ts, 10) + ext

	if err := os.Rename(current, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to rotate %s: %w", filepath.Base(current), err)
	}
	return old, nil
}

// SweepParts removes temp files under username's directory last modified
// before cutoff and returns how many it removed. A missing user directory
// is not an error.
func (m *Manager) SweepParts(username string, cutoff time.Time) (int, error) {
	removed := 0
	err := filepath.WalkDir(m.UserDir(username), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), PartSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", filepath.Base(path), err)
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to sweep temporary files: %w", err)
	}
	return removed, nil
}
