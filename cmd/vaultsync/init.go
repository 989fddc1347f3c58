package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CalvinMagezi/vaultsync/internal/config"
	"github.com/CalvinMagezi/vaultsync/internal/model"
)

var (
	initRelayURL string
	initDevice   string
	initStrategy string
	initNoE2E    bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .vaultsync/config.yaml for this vault",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().StringVar(&initRelayURL, "relay-url", "ws://127.0.0.1:18800/ws", "Relay server WebSocket URL")
	initCmd.Flags().StringVar(&initDevice, "device-name", "", "Human-readable name for this device (default: hostname)")
	initCmd.Flags().StringVar(&initStrategy, "conflict-strategy", string(model.StrategyNewerWins), "Conflict strategy: newer-wins, merge-frontmatter, or manual")
	initCmd.Flags().BoolVar(&initNoE2E, "no-e2e", false, "Send payloads in plaintext instead of sealing them under the derived key")
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	cfg.RelayURL = initRelayURL
	cfg.DeviceName = initDevice
	cfg.ConflictStrategy = initStrategy
	cfg.E2E = !initNoE2E

	if cfg.DeviceName == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.DeviceName = host
		} else {
			cfg.DeviceName = "device"
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(flagVaultRoot, cfg); err != nil {
		return err
	}

	fmt.Printf("wrote %s\n", config.Path(flagVaultRoot))
	if cfg.E2E {
		fmt.Println("set VAULTSYNC_PASSPHRASE before running `vaultsync start`")
	}
	return nil
}
