package journal

import (
	"context"

	"github.com/CalvinMagezi/vaultsync/internal/model"
)

// GetCursor returns a consumer's last-processed change id, or ErrNotFound if
// the consumer has never checkpointed.
func (s *Store) GetCursor(ctx context.Context, consumer string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT last_change_id FROM cursors WHERE consumer = ?`, consumer).Scan(&id)
	if err != nil {
		return 0, wrapDBError("get cursor", err)
	}
	return id, nil
}

// UpdateCursor upserts a consumer's cursor. The value must only increase;
// callers are expected to pass a monotone id (the journal does not reject
// decreases at the SQL level).
func (s *Store) UpdateCursor(ctx context.Context, consumer string, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (consumer, last_change_id) VALUES (?, ?)
		ON CONFLICT(consumer) DO UPDATE SET last_change_id = excluded.last_change_id
	`, consumer, id)
	return wrapDBError("update cursor", err)
}

// GetPeerCursor returns what has been sent to, or received from, a specific
// peer device, or ErrNotFound / 0 meaning "nothing yet" to the caller.
func (s *Store) GetPeerCursor(ctx context.Context, peerDeviceID string, dir model.CursorDirection) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_change_id FROM peer_cursors WHERE peer_device_id = ? AND direction = ?
	`, peerDeviceID, string(dir)).Scan(&id)
	if err != nil {
		return 0, wrapDBError("get peer cursor", err)
	}
	return id, nil
}

// UpdatePeerCursor upserts the sent/received cursor for a peer device.
func (s *Store) UpdatePeerCursor(ctx context.Context, peerDeviceID string, dir model.CursorDirection, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO peer_cursors (peer_device_id, direction, last_change_id) VALUES (?, ?, ?)
		ON CONFLICT(peer_device_id, direction) DO UPDATE SET last_change_id = excluded.last_change_id
	`, peerDeviceID, string(dir), id)
	return wrapDBError("update peer cursor", err)
}
