package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CalvinMagezi/vaultsync/internal/model"
)

func TestRelayHealthURL(t *testing.T) {
	require.Equal(t, "http://127.0.0.1:18800/health", relayHealthURL("ws://127.0.0.1:18800/ws"))
	require.Equal(t, "https://relay.example.com:18800/health", relayHealthURL("wss://relay.example.com:18800/ws"))
}

func TestProbeRelayHealthOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.Equal(t, "ok", probeRelayHealth(srv.URL))
}

func TestProbeRelayHealthUnreachable(t *testing.T) {
	require.Contains(t, probeRelayHealth("http://127.0.0.1:1"), "unreachable")
}

func TestProbeRelayHealthUnhealthyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	require.Contains(t, probeRelayHealth(srv.URL), "unhealthy")
}

func TestPeerCursorOrZeroDefaultsWhenUnset(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VAULTSYNC_PASSPHRASE", "p")
	ctx := context.Background()

	vc, err := openVaultContext(ctx, dir, true)
	require.NoError(t, err)
	defer vc.Close()

	n, err := peerCursorOrZero(ctx, vc.store, peerSentinelName, model.DirectionSent)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestPeerCursorOrZeroReturnsAdvancedValue(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VAULTSYNC_PASSPHRASE", "p")
	ctx := context.Background()

	vc, err := openVaultContext(ctx, dir, true)
	require.NoError(t, err)
	defer vc.Close()

	require.NoError(t, vc.store.UpdatePeerCursor(ctx, peerSentinelName, model.DirectionSent, 42))

	n, err := peerCursorOrZero(ctx, vc.store, peerSentinelName, model.DirectionSent)
	require.NoError(t, err)
	require.Equal(t, int64(42), n)
}
