package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, Default().RelayURL, cfg.RelayURL)
	require.Equal(t, "newer-wins", cfg.ConflictStrategy)
	require.Equal(t, 3600, cfg.ScanIntervalSec)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.DeviceName = "laptop"
	cfg.DeviceToken = "tok123"
	require.NoError(t, Save(dir, cfg))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "laptop", loaded.DeviceName)
	require.Equal(t, "tok123", loaded.DeviceToken)

	// config.yaml should exist at the documented path.
	_, err = os.Stat(Path(dir))
	require.NoError(t, err)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, Default()))

	t.Setenv("VAULTSYNC_RELAY_URL", "wss://relay.example.com/ws")
	t.Setenv("VAULTSYNC_DEVICE_NAME", "phone")
	t.Setenv("VAULTSYNC_SCAN_INTERVAL_SECONDS", "120")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "wss://relay.example.com/ws", cfg.RelayURL)
	require.Equal(t, "phone", cfg.DeviceName)
	require.Equal(t, 120, cfg.ScanIntervalSec)
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := Default()
	cfg.ConflictStrategy = "bogus"
	require.Error(t, cfg.Validate())
}

func TestJournalPathLayout(t *testing.T) {
	require.Equal(t, filepath.Join("/vault", "_embeddings", "sync.db"), JournalPath("/vault"))
}

func TestPassphraseFromEnvOnly(t *testing.T) {
	t.Setenv("VAULTSYNC_PASSPHRASE", "")
	_, ok := Passphrase()
	require.False(t, ok)

	t.Setenv("VAULTSYNC_PASSPHRASE", "correct horse battery staple")
	p, ok := Passphrase()
	require.True(t, ok)
	require.Equal(t, "correct horse battery staple", p)
}
