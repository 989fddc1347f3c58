// Journal maintenance CLI. Compaction is an operator-triggered one-shot
// command, not a background scheduler: retention policy belongs to whoever
// runs the vault.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var compactDays int

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Journal maintenance commands",
}

var journalCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Delete change entries older than --days",
	RunE:  runJournalCompact,
}

func init() {
	journalCompactCmd.Flags().IntVar(&compactDays, "days", 30, "Delete change entries older than this many days")
	journalCmd.AddCommand(journalCompactCmd)
}

func runJournalCompact(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	vc, err := openVaultContext(ctx, flagVaultRoot, true)
	if err != nil {
		return err
	}
	defer vc.Close()

	if compactDays <= 0 {
		return fmt.Errorf("vaultsync: --days must be positive")
	}

	n, err := vc.store.Compact(ctx, compactDays)
	if err != nil {
		return fmt.Errorf("vaultsync: compact journal: %w", err)
	}

	fmt.Printf("removed %d change entries older than %d days\n", n, compactDays)
	return nil
}
