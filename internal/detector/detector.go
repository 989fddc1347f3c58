// Package detector turns filesystem activity into journal change entries:
// an fsnotify watcher debounced per path, plus a periodic full scanner as a
// safety net, both writing to the same journal. Ordering between the two is
// established by change id, not wall-clock.
package detector

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/CalvinMagezi/vaultsync/internal/journal"
)

// Detector runs the watcher and scanner producers against one vault,
// appending change entries to a shared journal store.
type Detector struct {
	vaultRoot string
	deviceID  string
	store     *journal.Store
	ignore    *IgnoreSet
	suppress  *suppressSet
	logger    *log.Logger
}

// Config configures a Detector.
type Config struct {
	VaultRoot    string
	DeviceID     string
	Store        *journal.Store
	ExtraIgnores []string
	Logger       *log.Logger
}

// New constructs a Detector. Call Run to start both producers.
func New(cfg Config) *Detector {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Detector{
		vaultRoot: cfg.VaultRoot,
		deviceID:  cfg.DeviceID,
		store:     cfg.Store,
		ignore:    NewIgnoreSet(cfg.ExtraIgnores),
		suppress:  newSuppressSet(),
		logger:    logger,
	}
}

// Suppress marks path as being written by a remote apply, so the watcher
// does not re-emit it as a local change.
func (d *Detector) Suppress(path string) {
	d.suppress.Suppress(path)
}

// Release starts the un-suppress grace window for path after a remote
// write has completed.
func (d *Detector) Release(path string) {
	d.suppress.Release(path)
}

// Run starts the watcher and the periodic full scanner and blocks until ctx
// is cancelled. Both producers run concurrently and write independently to
// the journal; Run returns once both have stopped.
func (d *Detector) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.runWatcher(gctx) })
	g.Go(func() error { return d.runScanner(gctx) })
	return g.Wait()
}
