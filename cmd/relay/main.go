// Command relay runs the vault sync fabric's relay server: a WebSocket
// rendezvous point that groups connected devices into per-vault rooms and
// fans out delta-push/index/file-fetch frames between them, without ever
// holding a decryption key.
//
// A single root command, no subcommands: everything is configured through
// flags with sane defaults so `relay` with no arguments does something
// reasonable.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CalvinMagezi/vaultsync/internal/logging"
	"github.com/CalvinMagezi/vaultsync/internal/relay"
)

var (
	flagHost        string
	flagPort        int
	flagDB          string
	flagTLSCertFile string
	flagTLSKeyFile  string
	flagDeviceCap   int
	flagDebug       bool
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "relay - WebSocket rendezvous server for the vault sync fabric",
	Long: `relay accepts WebSocket connections from vaultsync clients, groups them
into per-vault rooms by vault id, and relays delta-push, index, and
file-fetch frames between them. It never holds an E2E decryption key and
cannot read sealed payloads.`,
	RunE: runRelay,
}

func init() {
	rootCmd.Flags().StringVar(&flagHost, "host", "127.0.0.1", "Host/interface to listen on")
	rootCmd.Flags().IntVar(&flagPort, "port", 18800, "Port to listen on")
	rootCmd.Flags().StringVar(&flagDB, "db", "relay.db", "Path to the relay's device registry database")
	rootCmd.Flags().StringVar(&flagTLSCertFile, "tls-cert", "", "TLS certificate file (enables HTTPS/WSS when set with --tls-key)")
	rootCmd.Flags().StringVar(&flagTLSKeyFile, "tls-key", "", "TLS key file")
	rootCmd.Flags().IntVar(&flagDeviceCap, "device-cap", relay.DefaultDeviceCap, "Maximum devices per vault")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
}

func runRelay(cmd *cobra.Command, args []string) error {
	logger := logging.NewStderr("relay", flagDebug)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	srv, err := relay.NewServer(ctx, relay.Config{
		Addr:         fmt.Sprintf("%s:%d", flagHost, flagPort),
		RegistryPath: flagDB,
		DeviceCap:    flagDeviceCap,
		TLSCertFile:  flagTLSCertFile,
		TLSKeyFile:   flagTLSKeyFile,
		Logger:       logger.Std(),
	})
	if err != nil {
		return fmt.Errorf("relay: start: %w", err)
	}

	logger.Infof("listening on %s:%d (registry: %s)", flagHost, flagPort, flagDB)
	return srv.Start(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
