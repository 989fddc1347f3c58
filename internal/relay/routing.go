package relay

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/CalvinMagezi/vaultsync/internal/protocol"
)

// conn is the per-connection routing context: a correlation id assigned at
// upgrade (so log lines about a connection are traceable before and after
// it authenticates), the device/vault identity established at hello, the
// room it joined, and its live socket. A conn with an empty deviceID has
// not completed hello yet.
type conn struct {
	id       string
	deviceID string
	vaultID  string
	room     *Room
	conn     *websocket.Conn
}

// route applies the per-message-type routing table to one decoded frame from an
// authenticated connection. raw is the original wire bytes, forwarded
// unmodified — the relay never re-encodes a payload it cannot read.
func (s *Server) route(ctx context.Context, c *conn, msg any, raw []byte) {
	switch m := msg.(type) {
	case *protocol.DeltaPush:
		s.metrics.RecordMessage(string(protocol.TypeDeltaPush))
		c.room.Broadcast(raw, c.deviceID)
		s.bufferForOfflineDevices(ctx, c, raw)

	case *protocol.IndexRequest:
		s.metrics.RecordMessage(string(protocol.TypeIndexRequest))
		c.room.Broadcast(raw, c.deviceID)

	case *protocol.IndexResponse:
		s.metrics.RecordMessage(string(protocol.TypeIndexResponse))
		c.room.Broadcast(raw, c.deviceID)

	case *protocol.DeltaAck:
		s.metrics.RecordMessage(string(protocol.TypeDeltaAck))
		c.room.Broadcast(raw, c.deviceID)

	case *protocol.FileRequest:
		s.metrics.RecordMessage(string(protocol.TypeFileRequest))
		if !c.room.DirectSend(m.TargetDeviceID, raw) {
			s.sendError(c, protocol.ErrCodeDeviceOffline, "target device is offline")
		}

	case *protocol.FileResponse:
		s.metrics.RecordMessage(string(protocol.TypeFileResponse))
		c.room.Broadcast(raw, c.deviceID)

	case *protocol.PairRequest:
		s.metrics.RecordMessage(string(protocol.TypePairRequest))
		c.room.Broadcast(raw, c.deviceID)

	case *protocol.PairConfirm:
		s.metrics.RecordMessage(string(protocol.TypePairConfirm))
		c.room.Broadcast(raw, c.deviceID)

	case *protocol.Ping:
		s.metrics.RecordMessage(string(protocol.TypePing))
		c.room.Touch(c.deviceID)
		if err := s.registry.TouchLastSeen(ctx, c.deviceID, c.vaultID, s.now()); err != nil {
			s.logger.Printf("relay: touch last seen: %v", err)
		}
		s.replyPong(c)

	default:
		// Hello/HelloAck/DeviceList/Pong/Error are either handled before
		// routing (hello) or never sent by a client; anything else reaching
		// here is ignored rather than rejected. Encrypted frames never reach
		// route: the read loop hands them to routeOpaque.
	}
}

// routeOpaque handles a well-formed encrypted frame the relay has no key
// for and must not try to open; malformed frames never reach here — they
// are answered with PARSE_ERROR in the read loop. Authenticated: broadcast
// raw to the room, excluding the sender. Unauthenticated: reply with error
// NOT_AUTHENTICATED.
func (s *Server) routeOpaque(c *conn, raw []byte) {
	if c.deviceID == "" {
		s.sendError(c, protocol.ErrCodeNotAuthenticated, "hello required before encrypted frames")
		return
	}
	s.metrics.RecordMessage("opaque")
	c.room.Broadcast(raw, c.deviceID)
}

// bufferForOfflineDevices appends a delta-push's raw bytes to the offline
// buffer of every registered device in the vault that is not currently
// online.
func (s *Server) bufferForOfflineDevices(ctx context.Context, c *conn, raw []byte) {
	online := make(map[string]bool)
	for _, id := range c.room.OnlineDeviceIDs() {
		online[id] = true
	}
	ids, err := s.registry.DeviceIDsForVault(ctx, c.vaultID)
	if err != nil {
		s.logger.Printf("relay: list devices for offline buffering: %v", err)
		return
	}
	for _, id := range ids {
		if id == c.deviceID || online[id] {
			continue
		}
		c.room.BufferOffline(id, raw)
	}
}
