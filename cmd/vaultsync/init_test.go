package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CalvinMagezi/vaultsync/internal/config"
)

func TestRunInitWritesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	flagVaultRoot = dir
	initRelayURL = "ws://127.0.0.1:18800/ws"
	initDevice = "test-laptop"
	initStrategy = "newer-wins"
	initNoE2E = false

	require.NoError(t, runInit(initCmd, nil))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	require.Equal(t, "test-laptop", cfg.DeviceName)
	require.Equal(t, "newer-wins", cfg.ConflictStrategy)
	require.True(t, cfg.E2E)
}

func TestRunInitNoE2EDisablesEncryption(t *testing.T) {
	dir := t.TempDir()
	flagVaultRoot = dir
	initDevice = "phone"
	initStrategy = "manual"
	initNoE2E = true

	require.NoError(t, runInit(initCmd, nil))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	require.False(t, cfg.E2E)
}

func TestRunInitRejectsUnknownStrategy(t *testing.T) {
	dir := t.TempDir()
	flagVaultRoot = dir
	initDevice = "phone"
	initStrategy = "bogus-strategy"
	initNoE2E = false

	require.Error(t, runInit(initCmd, nil))
}

func TestRunInitDefaultsDeviceNameToHostname(t *testing.T) {
	dir := t.TempDir()
	flagVaultRoot = dir
	initDevice = ""
	initStrategy = "newer-wins"
	initNoE2E = false

	require.NoError(t, runInit(initCmd, nil))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.DeviceName)
}
