package journal

import (
	"context"
	"database/sql"
	"time"

	"github.com/CalvinMagezi/vaultsync/internal/model"
)

// RecordVersion appends a new version row for path and advances the
// current_versions row to match it. VersionNum must already be one higher
// than the previous recorded version for this path; callers get that number
// from NextVersion.
func (s *Store) RecordVersion(ctx context.Context, v model.Version) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return wrapDBError("record version: acquire conn", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return wrapDBError("record version: begin", err)
	}
	commit := func(err error) error {
		if err != nil {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
			return err
		}
		if _, cErr := conn.ExecContext(ctx, "COMMIT"); cErr != nil {
			return wrapDBError("record version: commit", cErr)
		}
		return nil
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO versions (path, content_hash, size, mtime, version_num, recorded_at, device_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, v.Path, v.ContentHash, v.Size, v.MTime, v.VersionNum, v.RecordedAt.UnixMilli(), v.DeviceID)
	if err != nil {
		return commit(wrapDBError("record version: insert history", err))
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO current_versions (path, content_hash, size, mtime, version_num, recorded_at, device_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			content_hash = excluded.content_hash,
			size = excluded.size,
			mtime = excluded.mtime,
			version_num = excluded.version_num,
			recorded_at = excluded.recorded_at,
			device_id = excluded.device_id
	`, v.Path, v.ContentHash, v.Size, v.MTime, v.VersionNum, v.RecordedAt.UnixMilli(), v.DeviceID)
	if err != nil {
		return commit(wrapDBError("record version: upsert current", err))
	}

	return commit(nil)
}

// CurrentVersion returns the canonical local state for path, if any.
func (s *Store) CurrentVersion(ctx context.Context, path string) (*model.Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT path, content_hash, size, mtime, version_num, recorded_at, device_id
		FROM current_versions WHERE path = ?
	`, path)
	v, err := scanVersion(row)
	if err != nil {
		return nil, wrapDBError("current version", err)
	}
	return v, nil
}

func scanVersion(row *sql.Row) (*model.Version, error) {
	var v model.Version
	var recordedAtMs int64
	if err := row.Scan(&v.Path, &v.ContentHash, &v.Size, &v.MTime, &v.VersionNum, &recordedAtMs, &v.DeviceID); err != nil {
		return nil, err
	}
	v.RecordedAt = time.UnixMilli(recordedAtMs)
	return &v, nil
}

// NextVersion returns the version number to use for the next RecordVersion
// call on path: 1 if the path has never been recorded, else one more than
// the current version.
func (s *Store) NextVersion(ctx context.Context, path string) (int64, error) {
	cur, err := s.CurrentVersion(ctx, path)
	if err != nil {
		if isNotFound(err) {
			return 1, nil
		}
		return 0, err
	}
	return cur.VersionNum + 1, nil
}

// DeleteCurrentVersion removes the canonical state row for path (used when a
// delete change is recorded); version history is left intact.
func (s *Store) DeleteCurrentVersion(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM current_versions WHERE path = ?`, path)
	return wrapDBError("delete current version", err)
}

// AllCurrentVersions returns every path's canonical state, used by the full
// scanner to detect files present in the version store but missing on disk.
func (s *Store) AllCurrentVersions(ctx context.Context) ([]model.Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, content_hash, size, mtime, version_num, recorded_at, device_id
		FROM current_versions
	`)
	if err != nil {
		return nil, wrapDBError("all current versions", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Version
	for rows.Next() {
		var v model.Version
		var recordedAtMs int64
		if err := rows.Scan(&v.Path, &v.ContentHash, &v.Size, &v.MTime, &v.VersionNum, &recordedAtMs, &v.DeviceID); err != nil {
			return nil, wrapDBError("scan current version", err)
		}
		v.RecordedAt = time.UnixMilli(recordedAtMs)
		out = append(out, v)
	}
	return out, wrapDBError("iterate current versions", rows.Err())
}
