package main

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CalvinMagezi/vaultsync/internal/relay"
)

func TestFlagDefaults(t *testing.T) {
	flags := rootCmd.Flags()

	require.Equal(t, "127.0.0.1", flags.Lookup("host").DefValue)
	require.Equal(t, "18800", flags.Lookup("port").DefValue)
	require.Equal(t, "relay.db", flags.Lookup("db").DefValue)
	require.Equal(t, "", flags.Lookup("tls-cert").DefValue)
	require.Equal(t, "", flags.Lookup("tls-key").DefValue)
	require.Equal(t, "false", flags.Lookup("debug").DefValue)
}

func TestDeviceCapDefaultMatchesRelayPackage(t *testing.T) {
	def := rootCmd.Flags().Lookup("device-cap").DefValue
	require.Equal(t, strconv.Itoa(relay.DefaultDeviceCap), def)
}
