// vaultsync doctor reports the vault lock-file state, journal health, the
// classifier cursor, unresolved conflicts, and relay connectivity: diagnose
// before you panic.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CalvinMagezi/vaultsync/internal/config"
	"github.com/CalvinMagezi/vaultsync/internal/lockfile"
	"github.com/CalvinMagezi/vaultsync/internal/model"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the vault's journal, lock, and relay state",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	problems := 0

	pid, locked, err := lockfile.Probe(config.Dir(flagVaultRoot))
	if err != nil {
		fmt.Printf("lock:          %s\n", failStyle.Render(fmt.Sprintf("error probing (%v)", err)))
		problems++
	} else if locked {
		fmt.Printf("lock:          %s\n", warnStyle.Render(fmt.Sprintf("held by pid %d", pid)))
	} else {
		fmt.Printf("lock:          %s\n", okStyle.Render("free"))
	}

	vc, err := openVaultContext(ctx, flagVaultRoot, true)
	if err != nil {
		fmt.Printf("journal:       %s\n", failStyle.Render(fmt.Sprintf("could not open (%v)", err)))
		return fmt.Errorf("vaultsync doctor: %d problem(s) found", problems+1)
	}
	defer vc.Close()
	fmt.Printf("journal:       %s\n", okStyle.Render("ok"))

	classifierCursor, err := vc.store.GetCursor(ctx, "eventbus:classifier")
	if err != nil && !isNotFound(err) {
		fmt.Printf("classifier:    %s\n", failStyle.Render(fmt.Sprintf("error (%v)", err)))
		problems++
	} else {
		fmt.Printf("classifier cursor: %d\n", classifierCursor)
	}

	conflicts, err := vc.store.UnresolvedConflicts(ctx)
	if err != nil {
		fmt.Printf("conflicts:     %s\n", failStyle.Render(fmt.Sprintf("error (%v)", err)))
		problems++
	} else if len(conflicts) == 0 {
		fmt.Printf("conflicts:     %s\n", okStyle.Render("none unresolved"))
	} else {
		fmt.Printf("conflicts:     %s\n", warnStyle.Render(fmt.Sprintf("%d unresolved", len(conflicts))))
		for _, c := range conflicts {
			fmt.Printf("  - %s (strategy=%s, detected=%s)\n", c.Path, c.Strategy, c.DetectedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		problems += len(conflicts)
	}

	versions, err := vc.store.AllCurrentVersions(ctx)
	if err != nil {
		fmt.Printf("versions:      %s\n", failStyle.Render(fmt.Sprintf("error (%v)", err)))
		problems++
	} else {
		fmt.Printf("versions:      %d files tracked\n", len(versions))
	}

	if model.ConflictStrategy(vc.cfg.ConflictStrategy) == model.StrategyManual && len(conflicts) > 0 {
		fmt.Printf("hint:          %s\n", mutedStyle.Render("conflict-strategy is manual; run `vaultsync journal compact` only after resolving the conflicts above"))
	}

	healthURL := relayHealthURL(vc.cfg.RelayURL)
	status := probeRelayHealth(healthURL)
	fmt.Printf("relay health:  %s (%s)\n", statusWord(status), mutedStyle.Render(healthURL))
	if status != "ok" {
		problems++
	}

	if problems > 0 {
		return fmt.Errorf("vaultsync doctor: %d problem(s) found", problems)
	}
	fmt.Printf("%s\n", okStyle.Render("no problems found."))
	return nil
}
