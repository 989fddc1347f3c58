package main

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/CalvinMagezi/vaultsync/internal/crypto"
	"github.com/CalvinMagezi/vaultsync/internal/protocol"
)

// dialRelay opens a short-lived WebSocket connection for one-shot commands
// (pair generate/confirm) that don't want the full reconnecting
// syncengine.Transport.
func dialRelay(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("vaultsync: dial relay at %s: %w", url, err)
	}
	return conn, nil
}

// sendHello sends a plaintext hello frame, joining vc's vault room.
func sendHello(conn *websocket.Conn, vc *vaultContext, deviceToken string) error {
	hello := &protocol.Hello{
		Type:        protocol.TypeHello,
		DeviceID:    vc.deviceID,
		VaultID:     vc.vaultID,
		DeviceToken: deviceToken,
		DeviceName:  vc.cfg.DeviceName,
	}
	raw, err := protocol.EncodePlaintext(hello)
	if err != nil {
		return fmt.Errorf("vaultsync: encode hello: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("vaultsync: send hello: %w", err)
	}
	return nil
}

// awaitHelloAck blocks until hello-ack arrives and returns the assigned
// device token, or until ctx is done.
func awaitHelloAck(ctx context.Context, conn *websocket.Conn) (string, error) {
	for {
		msg, err := readOne(ctx, conn)
		if err != nil {
			return "", err
		}
		switch v := msg.(type) {
		case *protocol.HelloAck:
			return v.AssignedToken, nil
		case *protocol.ErrorMessage:
			return "", fmt.Errorf("vaultsync: relay rejected hello: %s", v.Message)
		default:
			// ignore device-list and anything else that arrives first
		}
	}
}

// awaitPairConfirm blocks until a pair-confirm addressed to selfDeviceID
// arrives.
func awaitPairConfirm(ctx context.Context, conn *websocket.Conn, selfDeviceID string) error {
	for {
		msg, err := readOne(ctx, conn)
		if err != nil {
			return fmt.Errorf("vaultsync: waiting for pair-confirm: %w", err)
		}
		if v, ok := msg.(*protocol.PairConfirm); ok && v.DeviceID == selfDeviceID {
			if !v.Approved {
				return fmt.Errorf("vaultsync: pairing was not approved")
			}
			return nil
		}
	}
}

// awaitMatchingPairRequest blocks until a pair-request whose pairing code
// hash matches codeHash arrives.
func awaitMatchingPairRequest(ctx context.Context, conn *websocket.Conn, codeHash string) (*protocol.PairRequest, error) {
	for {
		msg, err := readOne(ctx, conn)
		if err != nil {
			return nil, fmt.Errorf("vaultsync: waiting for pair-request: %w", err)
		}
		if v, ok := msg.(*protocol.PairRequest); ok && v.PairingCodeHash == codeHash {
			return v, nil
		}
	}
}

// readOne reads and decodes one plaintext frame, respecting ctx
// cancellation by closing the connection from a side goroutine. Frames
// this one-shot client cannot decode — sealed delta traffic from other
// devices sharing the room — are skipped, not fatal.
func readOne(ctx context.Context, conn *websocket.Conn) (any, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		msg, err := protocol.Decode(raw, false, crypto.Key{})
		if err != nil {
			continue
		}
		return msg, nil
	}
}
