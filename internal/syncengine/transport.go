// Package syncengine implements the client side of the sync fabric:
// a reconnecting transport, a local hash cache, an offline
// outbound queue, an in-flight file-fetch table, and the inbound apply
// logic that turns remote changes into local filesystem writes.
package syncengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// pingInterval and missedPongLimit drive the liveness check: three missed
// pongs trigger a reconnect.
const (
	pingInterval    = 30 * time.Second
	missedPongLimit = 3
)

// Transport owns a single reconnecting WebSocket connection to the relay.
// The backoff schedule comes from github.com/cenkalti/backoff/v4 and never
// gives up: MaxElapsedTime is left at zero so a vault keeps trying to
// reach its relay indefinitely.
type Transport struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn

	// onConnected is invoked after each successful dial, before frames are
	// delivered to recv, so the engine can send hello before anything else
	// arrives (its index-request catchup follows once hello-ack comes in).
	onConnected func(ctx context.Context) error
}

// NewTransport builds a Transport for the relay at url (a ws:// or wss://
// URL including the /ws path).
func NewTransport(url string, onConnected func(ctx context.Context) error) *Transport {
	return &Transport{url: url, onConnected: onConnected}
}

func newReconnectBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0
	bo.Multiplier = 2
	return bo
}

// Run dials the relay and streams raw inbound frames onto recv until ctx is
// canceled, reconnecting with backoff on every disconnect. It returns only
// when ctx is canceled.
func (t *Transport) Run(ctx context.Context, recv chan<- []byte) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		bo := backoff.WithContext(newReconnectBackoff(), ctx)
		err := backoff.Retry(func() error {
			return t.connectAndPump(ctx, recv)
		}, bo)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			// backoff.Retry only returns a non-nil, non-context error here if
			// the context itself is what stopped it; loop and retry rather
			// than surfacing a terminal error, since the relay link is
			// expected to flap.
			continue
		}
	}
}

func (t *Transport) connectAndPump(ctx context.Context, recv chan<- []byte) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("syncengine: dial relay: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
		_ = conn.Close()
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	if t.onConnected != nil {
		if err := t.onConnected(ctx); err != nil {
			return fmt.Errorf("syncengine: post-connect handshake: %w", err)
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("syncengine: read: %w", err)
		}
		select {
		case recv <- data:
		case <-ctx.Done():
			return nil
		}
	}
}

// Send writes raw bytes to the current connection. Returns an error if no
// connection is currently live; callers enqueue on that error instead of
// blocking.
func (t *Transport) Send(raw []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

// Connected reports whether a connection is currently live.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// ForceReconnect closes the current connection, if any, so Run's read loop
// errors out and re-dials through the normal backoff path. Used by the
// engine's liveness check after missedPongLimit consecutive missed pongs.
func (t *Transport) ForceReconnect() {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

var errNotConnected = fmt.Errorf("syncengine: not connected")
