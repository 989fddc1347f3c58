package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CalvinMagezi/vaultsync/internal/journal"
)

// ConsumerID is the journal cursor name the classifier checkpoints under.
const ConsumerID = "eventbus:classifier"

// catchupBatch is the page size the classifier reads the journal tail in,
// the same size every other consumer uses.
const catchupBatch = 500

// Run polls store's change tail from its own cursor, classifies each entry,
// and dispatches it on b, checkpointing the cursor after each page. It
// blocks until ctx is canceled.
func Run(ctx context.Context, b *Bus, store *journal.Store, pollInterval time.Duration) error {
	cursor, err := store.GetCursor(ctx, ConsumerID)
	if err != nil && !isNotFoundErr(err) {
		return fmt.Errorf("eventbus: load cursor: %w", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			next, err := drainOnce(ctx, b, store, cursor)
			if err != nil {
				return err
			}
			cursor = next
		}
	}
}

// drainOnce dispatches every change after cursor, in change-id order, and
// returns the new cursor position.
func drainOnce(ctx context.Context, b *Bus, store *journal.Store, cursor int64) (int64, error) {
	for {
		changes, err := store.After(ctx, cursor, catchupBatch)
		if err != nil {
			return cursor, fmt.Errorf("eventbus: read journal tail: %w", err)
		}
		if len(changes) == 0 {
			return cursor, nil
		}
		for _, c := range changes {
			event := &Event{Type: Classify(c), Change: c, ClassifiedAt: time.Now()}
			if err := b.Dispatch(ctx, event); err != nil {
				return cursor, err
			}
			cursor = c.ID
		}
		if err := store.UpdateCursor(ctx, ConsumerID, cursor); err != nil {
			return cursor, fmt.Errorf("eventbus: update cursor: %w", err)
		}
		if len(changes) < catchupBatch {
			return cursor, nil
		}
	}
}

func isNotFoundErr(err error) bool {
	return errors.Is(err, journal.ErrNotFound)
}
