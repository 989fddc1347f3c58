// Package relay implements the sync fabric's relay server:
// a single process that upgrades WebSocket connections into per-vault
// rooms, authenticates devices by token, routes opaque frames between
// room members, and buffers changes for offline devices. It never
// decrypts, persists ciphertext, or logs payload bytes.
package relay

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

	"github.com/CalvinMagezi/vaultsync/internal/model"
)

// ErrNotFound is returned when a device lookup has no row.
var ErrNotFound = errors.New("relay: not found")

// Registry is the relay's durable record of every device that has ever
// joined a vault, used to enforce the device-count cap and to persist
// lastSeen across restarts. Same embedded-SQLite shape as
// internal/journal, reusing its driver and DSN pragma convention.
type Registry struct {
	db *sql.DB
}

const registrySchema = `
CREATE TABLE IF NOT EXISTS devices (
	device_id    TEXT NOT NULL,
	vault_id     TEXT NOT NULL,
	device_name  TEXT NOT NULL,
	device_token TEXT NOT NULL DEFAULT '',
	first_seen   INTEGER NOT NULL,
	last_seen    INTEGER NOT NULL,
	PRIMARY KEY (device_id, vault_id)
);
CREATE INDEX IF NOT EXISTS idx_devices_vault ON devices(vault_id);
`

// OpenRegistry opens (creating if needed) the relay's device registry
// database at path.
func OpenRegistry(ctx context.Context, path string) (*Registry, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("relay: create registry dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("relay: open registry: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, registrySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("relay: migrate registry: %w", err)
	}
	return &Registry{db: db}, nil
}

// Close releases the underlying database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

// DeviceCount returns how many distinct devices have ever joined vaultID,
// used to enforce the per-vault device cap on hello.
func (r *Registry) DeviceCount(ctx context.Context, vaultID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices WHERE vault_id = ?`, vaultID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("relay: device count: %w", err)
	}
	return n, nil
}

// Upsert inserts or updates a device's registry row, refreshing its name,
// token, and lastSeen.
func (r *Registry) Upsert(ctx context.Context, d model.DeviceRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, vault_id, device_name, device_token, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id, vault_id) DO UPDATE SET
			device_name = excluded.device_name,
			device_token = excluded.device_token,
			last_seen = excluded.last_seen
	`, d.DeviceID, d.VaultID, d.DeviceName, d.DeviceToken, d.FirstSeen.UnixMilli(), d.LastSeen.UnixMilli())
	if err != nil {
		return fmt.Errorf("relay: upsert device: %w", err)
	}
	return nil
}

// TouchLastSeen updates a device's lastSeen without touching its other
// fields, used on every ping.
func (r *Registry) TouchLastSeen(ctx context.Context, deviceID, vaultID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE devices SET last_seen = ? WHERE device_id = ? AND vault_id = ?
	`, at.UnixMilli(), deviceID, vaultID)
	if err != nil {
		return fmt.Errorf("relay: touch last seen: %w", err)
	}
	return nil
}

// DeviceIDsForVault returns every device id ever registered under vaultID,
// used to decide which devices need an offline buffer entry for a
// delta-push.
func (r *Registry) DeviceIDsForVault(ctx context.Context, vaultID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT device_id FROM devices WHERE vault_id = ?`, vaultID)
	if err != nil {
		return nil, fmt.Errorf("relay: list devices: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("relay: scan device id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("relay: list devices: %w", err)
	}
	return ids, nil
}

// Get returns a device's registry row, or ErrNotFound.
func (r *Registry) Get(ctx context.Context, deviceID, vaultID string) (*model.DeviceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT device_id, vault_id, device_name, device_token, first_seen, last_seen
		FROM devices WHERE device_id = ? AND vault_id = ?
	`, deviceID, vaultID)
	var d model.DeviceRecord
	var firstSeenMs, lastSeenMs int64
	if err := row.Scan(&d.DeviceID, &d.VaultID, &d.DeviceName, &d.DeviceToken, &firstSeenMs, &lastSeenMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("relay: get device: %w", err)
	}
	d.FirstSeen = time.UnixMilli(firstSeenMs)
	d.LastSeen = time.UnixMilli(lastSeenMs)
	return &d, nil
}
