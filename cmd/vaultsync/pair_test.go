package main

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/CalvinMagezi/vaultsync/internal/config"
	"github.com/CalvinMagezi/vaultsync/internal/crypto"
	"github.com/CalvinMagezi/vaultsync/internal/protocol"
	"github.com/CalvinMagezi/vaultsync/internal/relay"
)

// freeAddr grabs an ephemeral loopback port and releases it immediately, the
// same TOCTOU-acceptable trick internal/syncengine's engine_test.go uses.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func startTestRelay(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	addr := freeAddr(t)
	srv, err := relay.NewServer(ctx, relay.Config{
		Addr:         addr,
		RegistryPath: filepath.Join(t.TempDir(), "registry.db"),
	})
	require.NoError(t, err)

	go func() { _ = srv.Start(ctx) }()

	healthURL := "http://" + addr + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(healthURL)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond, "relay never became healthy")

	return "ws://" + addr + "/ws"
}

func TestPairGenerateTimesOutWithoutConfirm(t *testing.T) {
	wsURL := startTestRelay(t)
	t.Setenv("VAULTSYNC_PASSPHRASE", "shared-vault-passphrase")

	newDeviceDir := t.TempDir()
	cfg := config.Default()
	cfg.RelayURL = wsURL
	cfg.DeviceName = "new-phone"
	require.NoError(t, config.Save(newDeviceDir, cfg))

	flagVaultRoot = newDeviceDir
	pairTimeout = 500 * time.Millisecond
	pairGenerateCmd.SetContext(context.Background())

	err := runPairGenerate(pairGenerateCmd, nil)
	require.Error(t, err, "with no confirming peer, generate must time out rather than hang")
}

// TestPairConfirmApprovesMatchingRequest drives both sides of the pairing
// handshake directly against a live relay: a simulated "new device"
// connection that publishes a pair-request, and runPairConfirm itself
// running on the "already-paired device" side, exercising dialRelay,
// sendHello/awaitHelloAck, awaitMatchingPairRequest, and the pair-confirm
// it sends back.
func TestPairConfirmApprovesMatchingRequest(t *testing.T) {
	wsURL := startTestRelay(t)
	t.Setenv("VAULTSYNC_PASSPHRASE", "shared-vault-passphrase")

	newDeviceDir := t.TempDir()
	newCfg := config.Default()
	newCfg.RelayURL = wsURL
	newCfg.DeviceName = "new-phone"
	require.NoError(t, config.Save(newDeviceDir, newCfg))

	pairedDeviceDir := t.TempDir()
	pairedCfg := config.Default()
	pairedCfg.RelayURL = wsURL
	pairedCfg.DeviceName = "existing-laptop"
	require.NoError(t, config.Save(pairedDeviceDir, pairedCfg))

	pairTimeout = 5 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), pairTimeout)
	defer cancel()

	code, codeHash, err := crypto.GeneratePairingCode()
	require.NoError(t, err)

	vcNew, err := openVaultContext(ctx, newDeviceDir, false)
	require.NoError(t, err)

	newConn, err := dialRelay(ctx, wsURL)
	require.NoError(t, err)
	defer newConn.Close()
	require.NoError(t, sendHello(newConn, vcNew, ""))
	_, err = awaitHelloAck(ctx, newConn)
	require.NoError(t, err)

	req := &protocol.PairRequest{
		Type:            protocol.TypePairRequest,
		DeviceID:        vcNew.deviceID,
		PairingCodeHash: codeHash,
		DeviceName:      vcNew.cfg.DeviceName,
	}
	raw, err := protocol.EncodePlaintext(req)
	require.NoError(t, err)
	require.NoError(t, newConn.WriteMessage(websocket.TextMessage, raw))

	confirmDone := make(chan error, 1)
	pairConfirmCmd.SetContext(context.Background())
	go func() {
		flagVaultRoot = pairedDeviceDir
		confirmDone <- runPairConfirm(pairConfirmCmd, []string{code})
	}()

	select {
	case err := <-confirmDone:
		require.NoError(t, err)
	case <-time.After(4 * time.Second):
		t.Fatal("runPairConfirm did not return")
	}

	require.NoError(t, awaitPairConfirm(ctx, newConn, vcNew.deviceID))
}
