// Package ledger records which media items a user already has on disk.
//
// Each user directory carries one SQLite file. A row is written only after
// the item's file has been placed, so the ledger never claims a file that
// does not exist. The newest timestamp per source type is the high-water
// mark the fetchers stop at.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ofdl/pkg/logger"
	"ofdl/pkg/media"
	"ofdl/pkg/retry"
)

// FileName is the ledger file inside a user directory
const FileName = ".media.db"

// ErrNotFound is returned by OpenExisting when no ledger file exists.
var ErrNotFound = errors.New("ledger not found")

const pragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)"

const schema = `
CREATE TABLE IF NOT EXISTS media (
	source_type TEXT,
	timestamp INTEGER,
	source_id INTEGER,
	media_id INTEGER,
	PRIMARY KEY (source_type, source_id, media_id)
) WITHOUT ROWID;
CREATE INDEX IF NOT EXISTS created_on ON media(timestamp);
`

// Record is one ledger row
type Record struct {
	SourceType media.SourceType `db:"source_type"`
	Timestamp  int64            `db:"timestamp"`
	SourceID   int64            `db:"source_id"`
	MediaID    int64            `db:"media_id"`
}

// RecordFor builds the row for a placed media item.
func RecordFor(m media.NormalizedMedia) Record {
	return Record{
		SourceType: m.SourceType,
		Timestamp:  m.CreatedAt.Unix(),
		SourceID:   m.SourceID,
		MediaID:    m.ID,
	}
}

// Ledger is an open ledger file
type Ledger struct {
	db   *sqlx.DB
	path string
	log  logger.Logger
}

// Path returns the ledger location for username under root.
func Path(root, username string) string {
	return filepath.Join(root, username, FileName)
}

// Open opens the ledger at path, creating the file, its parent directory
// and the schema as needed.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	l, err := open(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return l, nil
}

// OpenExisting opens the ledger at path without creating anything. It
// returns ErrNotFound when the file is absent.
func OpenExisting(ctx context.Context, path string) (*Ledger, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat ledger: %w", err)
	}
	return open(ctx, path)
}

func open(ctx context.Context, path string) (*Ledger, error) {
	db, err := sqlx.Open("sqlite", path+pragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ledger: %w", err)
	}
	return &Ledger{db: db, path: path, log: logger.GetLogger()}, nil
}

// With opens (creating) the ledger at path, runs fn and closes it.
func With(ctx context.Context, path string, fn func(*Ledger) error) error {
	l, err := Open(ctx, path)
	if err != nil {
		return err
	}
	defer l.Close()
	return fn(l)
}

// WithExisting is With for a ledger that must already exist.
func WithExisting(ctx context.Context, path string, fn func(*Ledger) error) error {
	l, err := OpenExisting(ctx, path)
	if err != nil {
		return err
	}
	defer l.Close()
	return fn(l)
}

// Close releases the database handle
func (l *Ledger) Close() error {
	return l.db.Close()
}

// MaxTimestamp returns the newest timestamp recorded for st. ok is false
// when st has no rows.
func (l *Ledger) MaxTimestamp(ctx context.Context, st media.SourceType) (ts int64, ok bool, err error) {
	return maxTimestamp(ctx, l.db, st)
}

// Has reports whether key is recorded
func (l *Ledger) Has(ctx context.Context, key media.Key) (bool, error) {
	return has(ctx, l.db, key)
}

// Latest returns the newest row for st
func (l *Ledger) Latest(ctx context.Context, st media.SourceType) (Record, bool, error) {
	return latest(ctx, l.db, st)
}

// Count returns the total number of rows
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.GetContext(ctx, &n, `SELECT count(*) FROM media`); err != nil {
		return 0, fmt.Errorf("failed to count ledger rows: %w", err)
	}
	return n, nil
}

// RunTx runs fn inside one transaction and commits it. The transaction is
// rolled back when fn fails. A busy database is retried up to three times,
// rerunning fn from the start.
func (l *Ledger) RunTx(ctx context.Context, fn func(*Tx) error) error {
	policy := retry.Policy{
		Attempts: 3,
		Backoff:  &retry.LinearBackoff{Base: 100 * time.Millisecond, Step: 100 * time.Millisecond, Max: time.Second},
		RetryIf:  isBusy,
		Logger:   l.log,
	}
	return retry.Do(ctx, policy, func() error {
		tx, err := l.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin ledger transaction: %w", err)
		}
		if err := fn(&Tx{tx: tx}); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit ledger transaction: %w", err)
		}
		return nil
	})
}

// Tx is an open ledger transaction
type Tx struct {
	tx *sqlx.Tx
}

func (t *Tx) Has(ctx context.Context, key media.Key) (bool, error) {
	return has(ctx, t.tx, key)
}

func (t *Tx) Latest(ctx context.Context, st media.SourceType) (Record, bool, error) {
	return latest(ctx, t.tx, st)
}

// Insert records r. Recording an existing key is a no-op.
func (t *Tx) Insert(ctx context.Context, r Record) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT OR IGNORE INTO media (source_type, timestamp, source_id, media_id)
		VALUES (:source_type, :timestamp, :source_id, :media_id)`, r)
	if err != nil {
		return fmt.Errorf("failed to insert ledger row: %w", err)
	}
	return nil
}

func maxTimestamp(ctx context.Context, q sqlx.QueryerContext, st media.SourceType) (int64, bool, error) {
	var ts sql.NullInt64
	if err := sqlx.GetContext(ctx, q, &ts, `SELECT max(timestamp) FROM media WHERE source_type = ?`, st); err != nil {
		return 0, false, fmt.Errorf("failed to read high-water mark: %w", err)
	}
	return ts.Int64, ts.Valid, nil
}

func has(ctx context.Context, q sqlx.QueryerContext, key media.Key) (bool, error) {
	var found bool
	err := sqlx.GetContext(ctx, q, &found,
		`SELECT EXISTS (SELECT 1 FROM media WHERE source_type = ? AND source_id = ? AND media_id = ?)`,
		key.SourceType, key.SourceID, key.MediaID)
	if err != nil {
		return false, fmt.Errorf("failed to look up ledger row: %w", err)
	}
	return found, nil
}

func latest(ctx context.Context, q sqlx.QueryerContext, st media.SourceType) (Record, bool, error) {
	var r Record
	err := sqlx.GetContext(ctx, q, &r,
		`SELECT source_type, timestamp, source_id, media_id FROM media WHERE source_type = ? ORDER BY timestamp DESC LIMIT 1`, st)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Record{}, false, nil
	case err != nil:
		return Record{}, false, fmt.Errorf("failed to read latest ledger row: %w", err)
	}
	return r, true, nil
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// HighWaterMark returns the newest recorded time for st in username's
// ledger. A missing or unreadable ledger yields the Unix epoch, so every
// record counts as new.
func HighWaterMark(ctx context.Context, root, username string, st media.SourceType, log logger.Logger) time.Time {
	epoch := time.Unix(0, 0)
	var ts int64
	err := WithExisting(ctx, Path(root, username), func(l *Ledger) error {
		v, _, err := l.MaxTimestamp(ctx, st)
		ts = v
		return err
	})
	if err != nil {
		log.DebugWithFields("no prior state for user", map[string]interface{}{
			"username":    username,
			"source_type": string(st),
			"reason":      err.Error(),
		})
		return epoch
	}
	return time.Unix(ts, 0)
}
