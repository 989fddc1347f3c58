// Command vaultsync is the per-device client for the vault sync fabric: it
// watches a vault directory, appends changes to a local journal, and keeps
// that journal synchronized with every other device attached to the same
// vault through a relay server.
//
// The command tree is a root command carrying
// persistent flags (--vault, --debug) shared by every subcommand, plus
// PersistentPreRunE doing the one-time setup (here: resolving the vault
// root to an absolute path) that every subcommand needs before it runs.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	flagVaultRoot string
	flagDebug     bool
)

var rootCmd = &cobra.Command{
	Use:   "vaultsync",
	Short: "vaultsync - peer-to-peer vault synchronization client",
	Long: `vaultsync watches a vault directory for changes, records them in a local
journal, and keeps the vault synchronized with other devices through a
relay server, optionally end-to-end encrypted with a shared passphrase.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		abs, err := filepath.Abs(flagVaultRoot)
		if err != nil {
			return fmt.Errorf("vaultsync: resolve vault root: %w", err)
		}
		flagVaultRoot = abs
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagVaultRoot, "vault", ".", "Path to the vault directory")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(journalCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
