package journal

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/CalvinMagezi/vaultsync/internal/model"
)

// Append inserts a change entry and returns the assigned, auto-incrementing
// change id. Change ids are strictly increasing because AUTOINCREMENT
// never reuses a value within a single database. All devices' entries
// share that one sequence, so the ids of one device's changes are not
// contiguous once entries from other devices are appended between them.
func (s *Store) Append(ctx context.Context, c model.ChangeEntry) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO changes (path, old_path, kind, content_hash, size, mtime, detected_at, source, device_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.Path, c.OldPath, string(c.Kind), c.ContentHash, c.Size, c.MTime, c.DetectedAt.UnixMilli(), string(c.Source), c.DeviceID)
	if err != nil {
		return 0, wrapDBError("append change", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapDBError("append change: read id", err)
	}
	return id, nil
}

// After returns up to limit changes with id > cursor, ordered ascending by
// id. Calling it twice with the same cursor and no intervening appends
// returns the same rows.
func (s *Store) After(ctx context.Context, cursor int64, limit int) ([]model.ChangeEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, old_path, kind, content_hash, size, mtime, detected_at, source, device_id
		FROM changes WHERE id > ? ORDER BY id ASC LIMIT ?
	`, cursor, limit)
	if err != nil {
		return nil, wrapDBError("after", err)
	}
	defer func() { _ = rows.Close() }()
	return scanChanges(rows)
}

// scanChanges reads change rows in the column order every change query in
// this file selects.
func scanChanges(rows *sql.Rows) ([]model.ChangeEntry, error) {
	var out []model.ChangeEntry
	for rows.Next() {
		var c model.ChangeEntry
		var kind, source string
		var detectedAtMs int64
		if err := rows.Scan(&c.ID, &c.Path, &c.OldPath, &kind, &c.ContentHash, &c.Size, &c.MTime, &detectedAtMs, &source, &c.DeviceID); err != nil {
			return nil, wrapDBError("scan change", err)
		}
		c.Kind = model.ChangeKind(kind)
		c.Source = model.ChangeSource(source)
		c.DetectedAt = time.UnixMilli(detectedAtMs)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate changes", err)
	}
	return out, nil
}

// UnsyncedChanges returns up to limit changes originating at `local` that
// have not yet been marked sent to `peer`, using the local->peer "sent"
// cursor. It is the basis for the client sync engine's outbound drain;
// index-request answers use ChangesByDeviceAfter instead.
func (s *Store) UnsyncedChanges(ctx context.Context, local, peer string, limit int) ([]model.ChangeEntry, error) {
	sentCursor, err := s.GetPeerCursor(ctx, peer, model.DirectionSent)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, old_path, kind, content_hash, size, mtime, detected_at, source, device_id
		FROM changes WHERE device_id = ? AND id > ? ORDER BY id ASC LIMIT ?
	`, local, sentCursor, limit)
	if err != nil {
		return nil, wrapDBError("unsynced changes", err)
	}
	defer func() { _ = rows.Close() }()
	return scanChanges(rows)
}

// ChangesByDeviceAfter returns up to limit changes originating at deviceID
// with id > since, ordered ascending by id. It backs the client's
// index-response pages: a peer asking "everything since N" gets only this
// device's own changes, never relayed copies of a third device's.
func (s *Store) ChangesByDeviceAfter(ctx context.Context, deviceID string, since int64, limit int) ([]model.ChangeEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, old_path, kind, content_hash, size, mtime, detected_at, source, device_id
		FROM changes WHERE device_id = ? AND id > ? ORDER BY id ASC LIMIT ?
	`, deviceID, since, limit)
	if err != nil {
		return nil, wrapDBError("changes by device after", err)
	}
	defer func() { _ = rows.Close() }()
	return scanChanges(rows)
}

// Compact deletes change entries older than the retention window. It is
// exposed for operator use.
func (s *Store) Compact(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM changes WHERE detected_at < ?`, cutoff)
	if err != nil {
		return 0, wrapDBError("compact", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDBError("compact: rows affected", err)
	}
	return n, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
