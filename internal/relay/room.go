package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// offlineBufferCap is the per-device offline buffer bound.
const offlineBufferCap = 1000

// member is one connected device inside a room.
type member struct {
	deviceID string
	conn     *websocket.Conn
	lastSeen time.Time
}

// Room holds all connections for one vault id, plus an offline ring buffer
// per device that has ever joined. Rooms are looked up by vaultId from a
// single registry map guarded by its own lock. A connection keeps a
// pointer to the room it joined at hello; a room holds only its members'
// sockets, never the connection records themselves.
type Room struct {
	VaultID string

	mu      sync.Mutex
	members map[string]*member         // deviceId -> member, only while online
	offline map[string][][]byte        // deviceId -> buffered raw frames
}

func newRoom(vaultID string) *Room {
	return &Room{
		VaultID: vaultID,
		members: make(map[string]*member),
		offline: make(map[string][][]byte),
	}
}

// Join registers conn as deviceId's connection, replacing any prior one,
// and drains and returns that device's offline buffer.
func (r *Room) Join(deviceID string, conn *websocket.Conn) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[deviceID] = &member{deviceID: deviceID, conn: conn, lastSeen: time.Now()}
	drained := r.offline[deviceID]
	delete(r.offline, deviceID)
	return drained
}

// Leave removes deviceId's connection. It does not touch the offline
// buffer: a device that reconnects later still gets whatever accumulated
// since its last Join.
func (r *Room) Leave(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, deviceID)
}

// Touch updates a member's lastSeen (used on ping).
func (r *Room) Touch(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[deviceID]; ok {
		m.lastSeen = time.Now()
	}
}

// Empty reports whether the room has no online members and no buffered
// offline frames — the signal the relay uses to garbage-collect it.
func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members) == 0 && len(r.offline) == 0
}

// snapshot copies out the current online members under lock, so Broadcast
// and DirectSend can write to sockets after releasing it.
func (r *Room) snapshot() []*member {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}

// Broadcast writes raw to every online member except exceptDeviceID (pass
// "" to exclude no one). Write errors are swallowed here; the connection's
// own read loop will observe the failure and clean up.
func (r *Room) Broadcast(raw []byte, exceptDeviceID string) {
	for _, m := range r.snapshot() {
		if m.deviceID == exceptDeviceID {
			continue
		}
		_ = m.conn.WriteMessage(websocket.TextMessage, raw)
	}
}

// DirectSend writes raw to exactly one online device, returning false if
// it is not currently connected.
func (r *Room) DirectSend(deviceID string, raw []byte) bool {
	for _, m := range r.snapshot() {
		if m.deviceID == deviceID {
			_ = m.conn.WriteMessage(websocket.TextMessage, raw)
			return true
		}
	}
	return false
}

// IsOnline reports whether deviceId currently has a live connection.
func (r *Room) IsOnline(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[deviceID]
	return ok
}

// BufferOffline appends raw to deviceId's offline buffer, evicting the
// oldest entry once the buffer is at capacity.
func (r *Room) BufferOffline(deviceID string, raw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf := r.offline[deviceID]
	if len(buf) >= offlineBufferCap {
		buf = buf[1:]
	}
	r.offline[deviceID] = append(buf, raw)
}

// OnlineDeviceIDs returns the device ids currently connected to the room.
func (r *Room) OnlineDeviceIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	return out
}

// OfflineBufferDepth returns the total number of frames currently buffered
// across every offline device in the room, for the /health metrics supplement.
func (r *Room) OfflineBufferDepth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, buf := range r.offline {
		total += len(buf)
	}
	return total
}
