package journal

import (
	"context"
	"database/sql"
	"time"

	"github.com/CalvinMagezi/vaultsync/internal/model"
)

// RecordConflict inserts or replaces the pending conflict row for a path.
// A path has at most one open conflict at a time; a fresh divergence on an
// already-conflicted path simply overwrites the prior record.
func (s *Store) RecordConflict(ctx context.Context, c model.ConflictRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conflicts (path, local_hash, remote_hash, remote_device_id, detected_at, strategy, winner, loser_path, resolved_at, resolved_by)
		VALUES (?, ?, ?, ?, ?, ?, '', '', NULL, '')
		ON CONFLICT(path) DO UPDATE SET
			local_hash = excluded.local_hash,
			remote_hash = excluded.remote_hash,
			remote_device_id = excluded.remote_device_id,
			detected_at = excluded.detected_at,
			strategy = excluded.strategy,
			winner = '', loser_path = '', resolved_at = NULL, resolved_by = ''
	`, c.Path, c.LocalHash, c.RemoteHash, c.RemoteDeviceID, c.DetectedAt.UnixMilli(), string(c.Strategy))
	return wrapDBError("record conflict", err)
}

// ResolveConflict fills in a conflict's resolution. It is a no-op error if
// no conflict row exists for path.
func (s *Store) ResolveConflict(ctx context.Context, path string, r model.Resolution) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conflicts SET winner = ?, loser_path = ?, resolved_at = ?, resolved_by = ?
		WHERE path = ?
	`, string(r.Winner), r.LoserPath, r.ResolvedAt.UnixMilli(), string(r.ResolvedBy), path)
	if err != nil {
		return wrapDBError("resolve conflict", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("resolve conflict: rows affected", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UnresolvedConflicts returns every conflict that has not yet been
// resolved, used by the operator-facing doctor surface to show
// what `manual` strategy left pending.
func (s *Store) UnresolvedConflicts(ctx context.Context) ([]model.ConflictRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, local_hash, remote_hash, remote_device_id, detected_at, strategy
		FROM conflicts WHERE resolved_at IS NULL
	`)
	if err != nil {
		return nil, wrapDBError("unresolved conflicts", err)
	}
	defer func() { _ = rows.Close() }()
	return scanConflicts(rows)
}

func scanConflicts(rows *sql.Rows) ([]model.ConflictRecord, error) {
	var out []model.ConflictRecord
	for rows.Next() {
		var c model.ConflictRecord
		var strategy string
		var detectedAtMs int64
		if err := rows.Scan(&c.Path, &c.LocalHash, &c.RemoteHash, &c.RemoteDeviceID, &detectedAtMs, &strategy); err != nil {
			return nil, wrapDBError("scan conflict", err)
		}
		c.Strategy = model.ConflictStrategy(strategy)
		c.DetectedAt = time.UnixMilli(detectedAtMs)
		out = append(out, c)
	}
	return out, wrapDBError("iterate conflicts", rows.Err())
}
