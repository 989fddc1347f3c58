package main

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CalvinMagezi/vaultsync/internal/config"
	"github.com/CalvinMagezi/vaultsync/internal/crypto"
)

func TestOpenVaultContextRequiresPassphrase(t *testing.T) {
	t.Setenv("VAULTSYNC_PASSPHRASE", "")
	dir := t.TempDir()

	_, err := openVaultContext(context.Background(), dir, false)
	require.Error(t, err)
}

func TestOpenVaultContextDerivesSharedVaultID(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VAULTSYNC_PASSPHRASE", "correct horse battery staple")

	vc, err := openVaultContext(context.Background(), dir, false)
	require.NoError(t, err)
	defer vc.Close()

	require.Equal(t, crypto.VaultID(crypto.DeriveKey("correct horse battery staple")), vc.vaultID)
	require.True(t, vc.hasKey, "Default() config has E2E enabled")
	require.NotEmpty(t, vc.deviceID)
	require.Nil(t, vc.store, "openStore=false must not open the journal")
}

func TestOpenVaultContextSameVaultIDAcrossTwoRoots(t *testing.T) {
	t.Setenv("VAULTSYNC_PASSPHRASE", "shared-secret")

	vc1, err := openVaultContext(context.Background(), t.TempDir(), false)
	require.NoError(t, err)
	defer vc1.Close()

	vc2, err := openVaultContext(context.Background(), t.TempDir(), false)
	require.NoError(t, err)
	defer vc2.Close()

	require.Equal(t, vc1.vaultID, vc2.vaultID, "same passphrase must derive the same vault id regardless of vault path")
	require.NotEqual(t, vc1.deviceID, vc2.deviceID, "device id is derived from hostname+vaultPath, which differ here")
}

func TestOpenVaultContextOpensJournalWhenRequested(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VAULTSYNC_PASSPHRASE", "p")

	vc, err := openVaultContext(context.Background(), dir, true)
	require.NoError(t, err)
	defer vc.Close()

	require.NotNil(t, vc.store)
	_, err = os.Stat(config.JournalPath(dir))
	require.NoError(t, err)
}

func TestOpenVaultContextE2EFalseStillDerivesVaultID(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(config.Dir(dir), 0o700))
	cfg := config.Default()
	cfg.E2E = false
	require.NoError(t, config.Save(dir, cfg))

	t.Setenv("VAULTSYNC_PASSPHRASE", "still-required")

	vc, err := openVaultContext(context.Background(), dir, false)
	require.NoError(t, err)
	defer vc.Close()

	require.False(t, vc.hasKey)
	require.NotEmpty(t, vc.vaultID, "vault id is derived unconditionally, independent of the E2E flag")
}
