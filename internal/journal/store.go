// Package journal implements the device-local sync state store: an
// append-only change log, a per-file version cache, consumer/peer cursors,
// and an advisory lock table. It is a single embedded SQLite database, one
// per device, opened in WAL mode with a 5s busy timeout.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a lookup (cursor, version, lock) has no row.
var ErrNotFound = errors.New("journal: not found")

// busyTimeout is the SQLite busy_timeout pragma value; the default
// retention window for advisory locks is set separately in locks.go.
const busyTimeout = 5 * time.Second

// Store is the embedded journal + version + cursor + lock database for one
// device. It is private to the owning process; every other device speaks to
// it only through the sync protocol.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the journal database at path, in WAL
// mode with a busy timeout, and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("journal: create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer embedded store; WAL still allows concurrent readers

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS changes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL,
	old_path TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	size INTEGER,
	mtime INTEGER,
	detected_at INTEGER NOT NULL,
	source TEXT NOT NULL,
	device_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_changes_device ON changes(device_id, id);
CREATE INDEX IF NOT EXISTS idx_changes_path ON changes(path);

CREATE TABLE IF NOT EXISTS versions (
	path TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	size INTEGER NOT NULL,
	mtime INTEGER NOT NULL,
	version_num INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL,
	device_id TEXT NOT NULL,
	PRIMARY KEY (path, version_num, device_id)
);
CREATE INDEX IF NOT EXISTS idx_versions_path ON versions(path);

CREATE TABLE IF NOT EXISTS current_versions (
	path TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	size INTEGER NOT NULL,
	mtime INTEGER NOT NULL,
	version_num INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL,
	device_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cursors (
	consumer TEXT PRIMARY KEY,
	last_change_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS peer_cursors (
	peer_device_id TEXT NOT NULL,
	direction TEXT NOT NULL,
	last_change_id INTEGER NOT NULL,
	PRIMARY KEY (peer_device_id, direction)
);

CREATE TABLE IF NOT EXISTS locks (
	path TEXT PRIMARY KEY,
	holder_id TEXT NOT NULL,
	acquired_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conflicts (
	path             TEXT PRIMARY KEY,
	local_hash       TEXT NOT NULL,
	remote_hash      TEXT NOT NULL,
	remote_device_id TEXT NOT NULL,
	detected_at      INTEGER NOT NULL,
	strategy         TEXT NOT NULL,
	winner           TEXT NOT NULL DEFAULT '',
	loser_path       TEXT NOT NULL DEFAULT '',
	resolved_at      INTEGER,
	resolved_by      TEXT NOT NULL DEFAULT ''
);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// wrapDBError converts sql.ErrNoRows into the package sentinel and wraps
// everything else with operation context.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
