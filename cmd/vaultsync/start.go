package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/CalvinMagezi/vaultsync/internal/conflict"
	"github.com/CalvinMagezi/vaultsync/internal/config"
	"github.com/CalvinMagezi/vaultsync/internal/detector"
	"github.com/CalvinMagezi/vaultsync/internal/eventbus"
	"github.com/CalvinMagezi/vaultsync/internal/lockfile"
	"github.com/CalvinMagezi/vaultsync/internal/logging"
	"github.com/CalvinMagezi/vaultsync/internal/model"
	"github.com/CalvinMagezi/vaultsync/internal/syncengine"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Watch the vault and keep it synchronized with the relay",
	Long: `start acquires the vault's single-owner lock, opens the local journal, and
runs the change detector, event classifier, and sync engine until it
receives SIGINT/SIGTERM.`,
	RunE: runStart,
}

// classifierPollInterval keeps reclassification well under the 1s
// realtime delivery bound.
const classifierPollInterval = 500 * time.Millisecond

func runStart(cmd *cobra.Command, args []string) error {
	logger := logging.NewStderr("vaultsync", flagDebug)

	lock, err := lockfile.Acquire(config.Dir(flagVaultRoot))
	if err != nil {
		if lockfile.IsLocked(err) {
			return fmt.Errorf("vaultsync: another process already owns this vault (run `vaultsync doctor` to see which)")
		}
		return fmt.Errorf("vaultsync: acquire vault lock: %w", err)
	}
	defer lock.Release()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	vc, err := openVaultContext(ctx, flagVaultRoot, true)
	if err != nil {
		return err
	}
	defer vc.Close()

	ignore := detector.NewIgnoreSet(vc.cfg.ExtraIgnores)

	det := detector.New(detector.Config{
		VaultRoot:    flagVaultRoot,
		DeviceID:     vc.deviceID,
		Store:        vc.store,
		ExtraIgnores: vc.cfg.ExtraIgnores,
		Logger:       logger.Std(),
	})

	resolver := conflict.New(vc.store, flagVaultRoot)

	bus := eventbus.New()
	bus.Register(&logHandler{logger: logger})
	if n := eventbus.LoadPersistedHandlers(bus, vc.cfg.Handlers); n > 0 {
		logger.Infof("loaded %d external event handler(s) from config.yaml", n)
	}

	engine := syncengine.New(syncengine.Config{
		VaultRoot:     flagVaultRoot,
		RelayURL:      vc.cfg.RelayURL,
		VaultID:       vc.vaultID,
		DeviceID:      vc.deviceID,
		DeviceName:    vc.cfg.DeviceName,
		DeviceToken:   vc.cfg.DeviceToken,
		Key:           vc.key,
		HasKey:        vc.hasKey,
		Strategy:      model.ConflictStrategy(vc.cfg.ConflictStrategy),
		Store:         vc.store,
		Detector:      det,
		Ignore:        ignore,
		Resolver:      resolver,
		Logger:        logger.Std(),
	})

	logger.Infof("vault %s starting (device=%s vault-id=%s relay=%s)", flagVaultRoot, vc.deviceID, vc.vaultID, vc.cfg.RelayURL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Start(gctx) })
	g.Go(func() error { return eventbus.Run(gctx, bus, vc.store, classifierPollInterval) })
	runErr := g.Wait()

	if token := engine.AssignedToken(); token != "" && token != vc.cfg.DeviceToken {
		vc.cfg.DeviceToken = token
		if err := config.Save(flagVaultRoot, vc.cfg); err != nil {
			logger.Warnf("persist assigned device token: %v", err)
		}
	}

	return runErr
}

// logHandler is a wildcard eventbus.Handler that logs every classified
// event at debug level, giving `--debug` visibility into the classifier
// without requiring an external script hook (eventbus.ExternalHandler is
// reserved for operator-configured commands; this one is always on).
type logHandler struct {
	logger *logging.Logger
}

func (h *logHandler) ID() string                    { return "vaultsync:log" }
func (h *logHandler) Handles() []eventbus.EventType { return nil }
func (h *logHandler) Priority() int                 { return 100 }

func (h *logHandler) Handle(ctx context.Context, event *eventbus.Event) error {
	h.logger.Debugf("event %s: %s", event.Type, event.Change.Path)
	return nil
}
