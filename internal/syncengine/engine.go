package syncengine

import (
	"context"
	"encoding/base64"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CalvinMagezi/vaultsync/internal/conflict"
	"github.com/CalvinMagezi/vaultsync/internal/crypto"
	"github.com/CalvinMagezi/vaultsync/internal/detector"
	"github.com/CalvinMagezi/vaultsync/internal/journal"
	"github.com/CalvinMagezi/vaultsync/internal/model"
	"github.com/CalvinMagezi/vaultsync/internal/protocol"
)

// peerSentinel is the single peer-cursor key the engine uses for its
// outbound "sent" cursor. The relay broadcasts a delta-push to every other
// device in the room rather than routing it to one named peer, so there is
// no per-peer fan-out to track on the client side — one shared cursor
// suffices (journal.Store.UnsyncedChanges/UpdatePeerCursor already model
// exactly this "sent to this peer" bookkeeping; "relay" just names the
// single logical peer every client actually has).
const peerSentinel = "relay"

// outboundPollInterval is how often the engine checks the journal for new
// locally-originated changes to publish. It is well under the 1s realtime
// delivery bound.
const outboundPollInterval = 250 * time.Millisecond

// catchupBatchSize bounds one index-response page.
const catchupBatchSize = 500

// Engine is the client-side sync orchestrator: it owns
// the reconnecting Transport, the local hash cache, the offline outbound
// queue, the file-fetch resolver table, and the inbound apply logic, and
// drives the hello/index-request catchup handshake and ping/pong liveness
// check.
type Engine struct {
	cfg     Config
	store   *journal.Store
	files   *applier
	inbound *inboundApplier

	transport *Transport
	hashes    *hashCache
	queue     *outboundQueue
	fetch     *fileFetchTable
	logger    *log.Logger

	// applyCh feeds delta-push and index-response entries to a dedicated
	// apply worker. Applying a remote write can block on a file-fetch round
	// trip, and the goroutine reading frames off the transport is the one
	// that resolves those fetches — so applies must never run on it.
	applyCh chan any

	mu               sync.Mutex
	ready            bool
	assignedToken    string
	lastSyncChangeID int64
	missedPongs      int32
}

// Config configures an Engine.
type Config struct {
	VaultRoot     string
	RelayURL      string
	VaultID       string
	DeviceID      string
	DeviceName    string
	ClientVersion string
	DeviceToken   string // a previously assigned token, if any; empty for first connect
	Key           crypto.Key
	HasKey        bool
	Strategy      model.ConflictStrategy
	Store         *journal.Store
	Detector      *detector.Detector
	Ignore        *detector.IgnoreSet
	Resolver      *conflict.Resolver
	Logger        *log.Logger
}

// New builds an Engine. Call Start to begin syncing.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "0.1.0"
	}

	e := &Engine{
		cfg:     cfg,
		store:   cfg.Store,
		hashes:  newHashCache(),
		queue:   newOutboundQueue(),
		fetch:   newFileFetchTable(),
		files:   newApplier(cfg.VaultRoot, cfg.Detector),
		applyCh: make(chan any, 1024),
		logger:  logger,
	}
	e.transport = NewTransport(cfg.RelayURL, e.onConnected)
	e.inbound = &inboundApplier{
		deviceID: cfg.DeviceID,
		ignore:   cfg.Ignore,
		hashes:   e.hashes,
		files:    e.files,
		fetch:    e.fetchContent,
		resolver: cfg.Resolver,
		strategy: cfg.Strategy,
		store:    cfg.Store,
		logger:   logger,
	}
	return e
}

// AssignedToken returns the most recently assigned device token, for the
// caller to persist across restarts.
func (e *Engine) AssignedToken() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.assignedToken
}

// Ready reports whether the engine has completed its hello handshake on the
// current connection.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// Start runs the transport, the inbound dispatch loop, the outbound drain
// loop, the ping liveness loop, and (if configured) the change detector,
// until ctx is canceled. The long-running workers are grouped under a
// single golang.org/x/sync/errgroup so any one of them failing cancels the rest
// and Start returns its error, rather than each goroutine being tracked by
// hand through its own channel.
func (e *Engine) Start(ctx context.Context) error {
	// Resume the catchup position from the journal's received-cursor, so a
	// restarted device asks only for what it hasn't applied yet.
	if cursor, err := e.store.GetPeerCursor(ctx, peerSentinel, model.DirectionReceived); err == nil {
		e.mu.Lock()
		e.lastSyncChangeID = cursor
		e.mu.Unlock()
	}

	recvCh := make(chan []byte, 64)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.transport.Run(gctx, recvCh) })
	if e.cfg.Detector != nil {
		g.Go(func() error { return e.cfg.Detector.Run(gctx) })
	}
	g.Go(func() error { e.consumeInbound(gctx, recvCh); return nil })
	g.Go(func() error { e.applyLoop(gctx); return nil })
	g.Go(func() error { e.outboundLoop(gctx); return nil })
	g.Go(func() error { e.pingLoop(gctx); return nil })

	return g.Wait()
}

func (e *Engine) consumeInbound(ctx context.Context, recvCh <-chan []byte) {
	for {
		select {
		case raw := <-recvCh:
			e.handleInbound(ctx, raw)
		case <-ctx.Done():
			return
		}
	}
}

// onConnected sends hello immediately after each successful dial, using a
// previously assigned token if one is stored. The engine is not marked ready
// until hello-ack arrives through the ordinary inbound dispatch loop.
func (e *Engine) onConnected(ctx context.Context) error {
	e.mu.Lock()
	e.ready = false
	token := e.assignedToken
	if token == "" {
		token = e.cfg.DeviceToken
	}
	e.mu.Unlock()

	hello := &protocol.Hello{
		Type:          protocol.TypeHello,
		DeviceID:      e.cfg.DeviceID,
		VaultID:       e.cfg.VaultID,
		DeviceToken:   token,
		DeviceName:    e.cfg.DeviceName,
		ClientVersion: e.cfg.ClientVersion,
	}
	raw, err := protocol.EncodePlaintext(hello)
	if err != nil {
		return err
	}
	return e.transport.Send(raw)
}

func (e *Engine) handleInbound(ctx context.Context, raw []byte) {
	msg, err := protocol.Decode(raw, e.cfg.HasKey, e.cfg.Key)
	if err != nil {
		e.logger.Printf("syncengine: decode inbound frame: %v", err)
		return
	}

	switch v := msg.(type) {
	case *protocol.HelloAck:
		e.onHelloAck(v)
	case *protocol.IndexResponse, *protocol.DeltaPush:
		select {
		case e.applyCh <- msg:
		case <-ctx.Done():
		}
	case *protocol.IndexRequest:
		e.onIndexRequest(ctx, v)
	case *protocol.FileRequest:
		e.onFileRequest(v)
	case *protocol.FileResponse:
		e.onFileResponse(v)
	case *protocol.Pong:
		atomic.StoreInt32(&e.missedPongs, 0)
	case *protocol.ErrorMessage:
		e.logger.Printf("syncengine: relay error %s: %s", v.Code, v.Message)
	case *protocol.DeviceList, *protocol.DeltaAck, *protocol.Ping:
		// device-list and delta-ack are informational; the relay never
		// sends a client an unsolicited ping.
	default:
		e.logger.Printf("syncengine: unhandled inbound message %T", msg)
	}
}

// applyLoop is the single worker that applies remote changes in arrival
// order. It runs apart from consumeInbound so a blocked file-fetch inside
// an apply cannot stall the frame pump that delivers its file-response.
func (e *Engine) applyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-e.applyCh:
			switch v := msg.(type) {
			case *protocol.DeltaPush:
				if err := e.inbound.Apply(ctx, v.Change); err != nil {
					e.logger.Printf("syncengine: apply delta-push for %s: %v", v.Change.Path, err)
				}
			case *protocol.IndexResponse:
				e.onIndexResponse(ctx, v)
			}
		}
	}
}

func (e *Engine) onHelloAck(ack *protocol.HelloAck) {
	e.mu.Lock()
	e.assignedToken = ack.AssignedToken
	e.ready = true
	sinceID := e.lastSyncChangeID
	e.mu.Unlock()

	for _, entry := range e.queue.Drain() {
		e.publishChange(entry)
	}

	req := &protocol.IndexRequest{Type: protocol.TypeIndexRequest, SinceChangeID: sinceID}
	if err := e.sendMaybeSealed(req); err != nil {
		e.logger.Printf("syncengine: send index-request: %v", err)
	}
}

func (e *Engine) onIndexResponse(ctx context.Context, resp *protocol.IndexResponse) {
	for _, wc := range resp.Changes {
		if err := e.inbound.Apply(ctx, wc); err != nil {
			e.logger.Printf("syncengine: apply index-response entry for %s: %v", wc.Path, err)
		}
	}

	e.mu.Lock()
	advanced := resp.LatestChangeID > e.lastSyncChangeID
	if advanced {
		e.lastSyncChangeID = resp.LatestChangeID
	}
	e.mu.Unlock()

	if advanced {
		if err := e.store.UpdatePeerCursor(ctx, peerSentinel, model.DirectionReceived, resp.LatestChangeID); err != nil {
			e.logger.Printf("syncengine: advance received cursor: %v", err)
		}
	}

	if resp.HasMore {
		req := &protocol.IndexRequest{Type: protocol.TypeIndexRequest, SinceChangeID: resp.LatestChangeID}
		if err := e.sendMaybeSealed(req); err != nil {
			e.logger.Printf("syncengine: send follow-up index-request: %v", err)
		}
	}
}

// onIndexRequest answers a peer's catchup request with one page of this
// device's own changes since the requested id. A device with nothing new
// past that id stays silent; every other peer in the room answers the same
// broadcast with its own page.
func (e *Engine) onIndexRequest(ctx context.Context, req *protocol.IndexRequest) {
	changes, err := e.store.ChangesByDeviceAfter(ctx, e.cfg.DeviceID, req.SinceChangeID, catchupBatchSize+1)
	if err != nil {
		e.logger.Printf("syncengine: read changes for index-request: %v", err)
		return
	}
	if len(changes) == 0 {
		return
	}
	hasMore := false
	if len(changes) > catchupBatchSize {
		hasMore = true
		changes = changes[:catchupBatchSize]
	}

	wire := make([]protocol.WireChange, 0, len(changes))
	for _, c := range changes {
		wire = append(wire, wireChange(c))
	}
	resp := &protocol.IndexResponse{
		Type:           protocol.TypeIndexResponse,
		Changes:        wire,
		LatestChangeID: changes[len(changes)-1].ID,
		HasMore:        hasMore,
	}
	if err := e.sendMaybeSealed(resp); err != nil {
		e.logger.Printf("syncengine: send index-response: %v", err)
	}
}

func (e *Engine) onFileRequest(req *protocol.FileRequest) {
	if req.TargetDeviceID != e.cfg.DeviceID {
		return
	}
	content, err := e.files.Read(req.Path)
	if err != nil {
		return
	}
	if crypto.ContentHash(content) != req.ContentHash {
		// Our copy has since moved on; nothing useful to answer with.
		return
	}
	resp := &protocol.FileResponse{
		Type:        protocol.TypeFileResponse,
		Path:        req.Path,
		ContentHash: req.ContentHash,
		Content:     base64.StdEncoding.EncodeToString(content),
	}
	if err := e.sendMaybeSealed(resp); err != nil {
		e.logger.Printf("syncengine: send file-response for %s: %v", req.Path, err)
	}
}

func (e *Engine) onFileResponse(resp *protocol.FileResponse) {
	content, err := base64.StdEncoding.DecodeString(resp.Content)
	if err != nil {
		e.logger.Printf("syncengine: decode file-response for %s: %v", resp.Path, err)
		return
	}
	e.fetch.Resolve(resp.Path, resp.ContentHash, content)
}

// fetchContent is the inboundApplier's fetchFunc: it emits a file-request
// and waits on the resolver table for the matching file-response.
func (e *Engine) fetchContent(ctx context.Context, path, contentHash, targetDeviceID string) ([]byte, error) {
	req := &protocol.FileRequest{
		Type:           protocol.TypeFileRequest,
		Path:           path,
		ContentHash:    contentHash,
		TargetDeviceID: targetDeviceID,
	}
	// Register before sending, so a response racing back over loopback
	// cannot arrive ahead of its resolver.
	e.fetch.Register(path, contentHash)
	if err := e.sendMaybeSealed(req); err != nil {
		e.fetch.Unregister(path, contentHash)
		return nil, err
	}
	return e.fetch.Await(ctx, path, contentHash)
}

// sendMaybeSealed encodes msg as a sealed envelope when an E2E key is
// active, or plaintext otherwise. It must only be called for message types
// outside protocol's plaintext whitelist (index-request, index-response,
// delta-push, delta-ack, file-request, file-response); hello and ping/pong
// are always sent via protocol.EncodePlaintext directly at their call
// sites, since the whitelist forbids sealing them regardless of key state.
func (e *Engine) sendMaybeSealed(msg any) error {
	var raw []byte
	var err error
	if e.cfg.HasKey {
		raw, err = protocol.EncodeSealed(e.cfg.Key, msg)
	} else {
		raw, err = protocol.EncodePlaintext(msg)
	}
	if err != nil {
		return err
	}
	return e.transport.Send(raw)
}

func (e *Engine) outboundLoop(ctx context.Context) {
	ticker := time.NewTicker(outboundPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.drainLocalChanges(ctx)
		}
	}
}

// drainLocalChanges pumps the journal tail outward: every local
// change is folded into the hash cache and published via delta-push, or
// enqueued if the transport isn't ready yet.
func (e *Engine) drainLocalChanges(ctx context.Context) {
	changes, err := e.store.UnsyncedChanges(ctx, e.cfg.DeviceID, peerSentinel, catchupBatchSize)
	if err != nil {
		e.logger.Printf("syncengine: read unsynced changes: %v", err)
		return
	}
	if len(changes) == 0 {
		return
	}

	for _, c := range changes {
		if c.Kind == model.ChangeDelete {
			e.hashes.Delete(c.Path)
		} else {
			e.hashes.Set(c.Path, c.ContentHash)
		}
		e.publishChange(c)
	}

	if err := e.store.UpdatePeerCursor(ctx, peerSentinel, model.DirectionSent, changes[len(changes)-1].ID); err != nil {
		e.logger.Printf("syncengine: advance sent cursor: %v", err)
	}
}

// publishChange sends c as a delta-push if the handshake has completed,
// otherwise enqueues it in the bounded offline outbound queue for the next
// reconnect to drain.
func (e *Engine) publishChange(c model.ChangeEntry) {
	e.mu.Lock()
	ready := e.ready
	e.mu.Unlock()

	if !ready {
		e.queue.Push(c)
		return
	}

	push := &protocol.DeltaPush{Type: protocol.TypeDeltaPush, Change: wireChange(c)}
	if err := e.sendMaybeSealed(push); err != nil {
		e.queue.Push(c)
	}
}

// wireChange converts a journal entry to its over-the-wire form.
func wireChange(c model.ChangeEntry) protocol.WireChange {
	return protocol.WireChange{
		ChangeID:    c.ID,
		Path:        c.Path,
		OldPath:     c.OldPath,
		Kind:        string(c.Kind),
		ContentHash: c.ContentHash,
		Size:        c.Size,
		MTime:       c.MTime,
		DeviceID:    c.DeviceID,
	}
}

// pingInterval and missedPongLimit are declared in transport.go.

func (e *Engine) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.Ready() {
				continue
			}
			if atomic.AddInt32(&e.missedPongs, 1) > missedPongLimit {
				atomic.StoreInt32(&e.missedPongs, 0)
				e.transport.ForceReconnect()
				continue
			}
			ping := &protocol.Ping{Type: protocol.TypePing, Timestamp: time.Now().UnixMilli()}
			raw, err := protocol.EncodePlaintext(ping)
			if err != nil {
				continue
			}
			_ = e.transport.Send(raw)
		}
	}
}
