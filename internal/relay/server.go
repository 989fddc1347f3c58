package relay

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/CalvinMagezi/vaultsync/internal/crypto"
	"github.com/CalvinMagezi/vaultsync/internal/model"
	"github.com/CalvinMagezi/vaultsync/internal/protocol"
)

// DefaultDeviceCap is the default per-vault device limit enforced at hello.
const DefaultDeviceCap = 10

// ServerVersion is reported in hello-ack and /health.
const ServerVersion = "0.1.0"

// upgrader uses generous buffers and disables origin checking: this is a
// bare WebSocket API with no browser CSRF surface.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Config holds a Server's tunables.
type Config struct {
	Addr         string // host:port to listen on
	RegistryPath string
	ServerSecret []byte // HMAC key for device tokens; generated if nil
	DeviceCap    int    // 0 means DefaultDeviceCap
	TLSCertFile  string
	TLSKeyFile   string
	Logger       *log.Logger
}

// Server is the relay process: an HTTP server offering /health and a
// WebSocket upgrade endpoint, backed by a device Registry and an in-memory
// set of Rooms, with signal-driven graceful shutdown.
type Server struct {
	cfg          Config
	registry     *Registry
	serverSecret []byte
	deviceCap    int
	metrics      *Metrics
	logger       *log.Logger

	httpSrv *http.Server

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewServer opens the registry and constructs a Server. It does not start
// listening until Start is called.
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	reg, err := OpenRegistry(ctx, cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("relay: open registry: %w", err)
	}

	secret := cfg.ServerSecret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			_ = reg.Close()
			return nil, fmt.Errorf("relay: generate server secret: %w", err)
		}
	}

	deviceCap := cfg.DeviceCap
	if deviceCap == 0 {
		deviceCap = DefaultDeviceCap
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Server{
		cfg:          cfg,
		registry:     reg,
		serverSecret: secret,
		deviceCap:    deviceCap,
		metrics:      NewMetrics(),
		logger:       logger,
		rooms:        make(map[string]*Room),
	}, nil
}

func (s *Server) now() time.Time { return time.Now() }

// roomFor returns the room for vaultID, creating it if absent.
func (s *Server) roomFor(vaultID string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[vaultID]
	if !ok {
		r = newRoom(vaultID)
		s.rooms[vaultID] = r
	}
	return r
}

// gcRoomIfEmpty drops a room from the registry map once it has no members
// and no offline buffers left.
func (s *Server) gcRoomIfEmpty(vaultID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[vaultID]; ok && r.Empty() {
		delete(s.rooms, vaultID)
	}
}

// Start runs the HTTP server until the context is canceled or a SIGINT/
// SIGTERM is received, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.httpSrv = &http.Server{Addr: s.cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
			err = s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("relay: shutdown: %w", err)
	}
	<-errCh
	return s.registry.Close()
}

// healthBody is the /health response shape: {status, version} plus a
// metrics snapshot (connectedDevices, roomsActive, offlineBufferDepth).
type healthBody struct {
	Status             string   `json:"status"`
	Version            string   `json:"version"`
	ConnectedDevices   int      `json:"connectedDevices"`
	RoomsActive        int      `json:"roomsActive"`
	OfflineBufferDepth int      `json:"offlineBufferDepth"`
	Metrics            Snapshot `json:"metrics"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	connected, offlineDepth := 0, 0
	roomsActive := len(s.rooms)
	for _, room := range s.rooms {
		connected += len(room.OnlineDeviceIDs())
		offlineDepth += room.OfflineBufferDepth()
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthBody{
		Status:             "ok",
		Version:            ServerVersion,
		ConnectedDevices:   connected,
		RoomsActive:        roomsActive,
		OfflineBufferDepth: offlineDepth,
		Metrics:            s.metrics.Snapshot(),
	})
}

// handleWebSocket upgrades the connection and runs its read loop until the
// socket closes, per-connection state tracked in a conn value that starts
// unauthenticated and is filled in by a successful hello.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("relay: upgrade failed: %v", err)
		return
	}
	defer wsConn.Close()

	c := &conn{id: uuid.NewString()}
	defer s.onDisconnect(c)

	for {
		_, raw, err := wsConn.ReadMessage()
		if err != nil {
			return
		}

		msg, decodeErr := protocol.Decode(raw, false, crypto.Key{})
		if decodeErr != nil {
			if !errors.Is(decodeErr, protocol.ErrEncryptedNoKey) {
				// Malformed JSON or a type outside the closed set: drop the
				// frame, tell the sender, keep the connection. Only a
				// well-formed encrypted frame may be forwarded opaquely.
				s.metrics.RecordMessage("malformed")
				s.sendWireError(wsConn, protocol.ErrCodeParseError, "malformed frame")
				continue
			}
			if c.deviceID == "" {
				s.sendWireError(wsConn, protocol.ErrCodeNotAuthenticated, "hello required before encrypted frames")
				continue
			}
			c.conn = wsConn
			s.routeOpaque(c, raw)
			continue
		}

		hello, isHello := msg.(*protocol.Hello)
		if isHello {
			s.handleHello(wsConn, c, hello)
			continue
		}

		if c.deviceID == "" {
			s.sendWireError(wsConn, protocol.ErrCodeNotAuthenticated, "hello required")
			continue
		}

		c.conn = wsConn
		s.route(r.Context(), c, msg, raw)
	}
}

func (s *Server) onDisconnect(c *conn) {
	if c.deviceID == "" || c.room == nil {
		return
	}
	s.logger.Printf("relay: conn %s closed (device=%s)", c.id, c.deviceID)
	c.room.Leave(c.deviceID)
	s.metrics.RecordDisconnect()
	s.broadcastDeviceList(c.room, "")
	s.gcRoomIfEmpty(c.vaultID)
}

func (s *Server) handleHello(wsConn *websocket.Conn, c *conn, hello *protocol.Hello) {
	s.metrics.RecordMessage(string(protocol.TypeHello))

	if hello.DeviceToken != "" {
		deviceID, vaultID, err := crypto.VerifyDeviceToken(s.serverSecret, hello.DeviceToken, s.now())
		if err != nil || deviceID != hello.DeviceID || vaultID != hello.VaultID {
			s.metrics.RecordRejected()
			s.sendWireError(wsConn, protocol.ErrCodeAuthFailed, "device token invalid")
			_ = wsConn.Close()
			return
		}
	}

	ctx := context.Background()
	count, err := s.registry.DeviceCount(ctx, hello.VaultID)
	if err != nil {
		s.logger.Printf("relay: device count: %v", err)
		s.sendWireError(wsConn, protocol.ErrCodeParseError, "internal error")
		return
	}
	existing, err := s.registry.Get(ctx, hello.DeviceID, hello.VaultID)
	isNewDevice := errors.Is(err, ErrNotFound)
	if isNewDevice && count >= s.deviceCap {
		s.metrics.RecordRejected()
		s.sendWireError(wsConn, protocol.ErrCodeVaultFull, "vault has reached its device limit")
		_ = wsConn.Close()
		return
	}

	now := s.now()
	token, err := crypto.MintDeviceToken(s.serverSecret, hello.DeviceID, hello.VaultID, now)
	if err != nil {
		s.logger.Printf("relay: mint device token: %v", err)
		s.sendWireError(wsConn, protocol.ErrCodeParseError, "internal error")
		return
	}

	firstSeen := now
	if existing != nil {
		firstSeen = existing.FirstSeen
	}
	if err := s.registry.Upsert(ctx, model.DeviceRecord{
		DeviceID:    hello.DeviceID,
		VaultID:     hello.VaultID,
		DeviceName:  hello.DeviceName,
		DeviceToken: token,
		FirstSeen:   firstSeen,
		LastSeen:    now,
	}); err != nil {
		s.logger.Printf("relay: upsert device: %v", err)
		s.sendWireError(wsConn, protocol.ErrCodeParseError, "internal error")
		return
	}

	room := s.roomFor(hello.VaultID)
	offlineFrames := room.Join(hello.DeviceID, wsConn)

	s.logger.Printf("relay: conn %s authenticated (device=%s vault=%s)", c.id, hello.DeviceID, hello.VaultID)
	c.deviceID = hello.DeviceID
	c.vaultID = hello.VaultID
	c.room = room
	s.metrics.RecordConnect()

	for _, frame := range offlineFrames {
		_ = wsConn.WriteMessage(websocket.TextMessage, frame)
	}

	ack := &protocol.HelloAck{
		Type:             protocol.TypeHelloAck,
		AssignedToken:    token,
		ConnectedDevices: len(room.OnlineDeviceIDs()),
		ServerVersion:    ServerVersion,
	}
	if raw, err := protocol.EncodePlaintext(ack); err == nil {
		_ = wsConn.WriteMessage(websocket.TextMessage, raw)
	}

	s.broadcastDeviceList(room, hello.DeviceID)
}

// broadcastDeviceList announces the room's current membership. The device
// that just joined is excluded on hello (it learns the count from its own
// hello-ack); on disconnect exceptDeviceID is empty so every remaining
// member hears about the departure.
func (s *Server) broadcastDeviceList(room *Room, exceptDeviceID string) {
	ids := room.OnlineDeviceIDs()
	entries := make([]protocol.DeviceListEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, protocol.DeviceListEntry{DeviceID: id, Online: true})
	}
	list := &protocol.DeviceList{Type: protocol.TypeDeviceList, Devices: entries}
	raw, err := protocol.EncodePlaintext(list)
	if err != nil {
		return
	}
	room.Broadcast(raw, exceptDeviceID)
}

func (s *Server) sendError(c *conn, code protocol.ErrorCode, message string) {
	if c.conn == nil {
		return
	}
	s.sendWireError(c.conn, code, message)
}

func (s *Server) sendWireError(wsConn *websocket.Conn, code protocol.ErrorCode, message string) {
	errMsg := &protocol.ErrorMessage{Type: protocol.TypeError, Code: code, Message: message}
	raw, err := protocol.EncodePlaintext(errMsg)
	if err != nil {
		return
	}
	_ = wsConn.WriteMessage(websocket.TextMessage, raw)
}

func (s *Server) replyPong(c *conn) {
	pong := &protocol.Pong{Type: protocol.TypePong, Timestamp: s.now().UnixMilli()}
	raw, err := protocol.EncodePlaintext(pong)
	if err != nil {
		return
	}
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.TextMessage, raw)
	}
}
