package eventbus

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CalvinMagezi/vaultsync/internal/journal"
	"github.com/CalvinMagezi/vaultsync/internal/model"
)

func TestRunDispatchesNewChangesAndAdvancesCursor(t *testing.T) {
	ctx := context.Background()
	store, err := journal.Open(ctx, filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Append(ctx, model.ChangeEntry{Path: "Notebooks/a.md", Kind: model.ChangeCreate, DeviceID: "d1", DetectedAt: time.Now()})
	require.NoError(t, err)

	var seen []EventType
	b := New()
	b.Register(NewFilterHandler("all", 0, Filter{}, func(ctx context.Context, e *Event) error {
		seen = append(seen, e.Type)
		return nil
	}))

	runCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_ = Run(runCtx, b, store, 20*time.Millisecond)

	require.Len(t, seen, 1)
	require.Equal(t, EventNoteCreated, seen[0])

	cursor, err := store.GetCursor(ctx, ConsumerID)
	require.NoError(t, err)
	require.Equal(t, int64(1), cursor)
}

func TestRunIsIdempotentAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "sync.db")
	store, err := journal.Open(ctx, dbPath)
	require.NoError(t, err)

	_, err = store.Append(ctx, model.ChangeEntry{Path: "Notebooks/a.md", Kind: model.ChangeCreate, DeviceID: "d1", DetectedAt: time.Now()})
	require.NoError(t, err)

	count := 0
	b := New()
	b.Register(NewFilterHandler("counter", 0, Filter{}, func(ctx context.Context, e *Event) error {
		count++
		return nil
	}))

	runCtx, cancel := context.WithTimeout(ctx, 80*time.Millisecond)
	_ = Run(runCtx, b, store, 10*time.Millisecond)
	cancel()
	require.NoError(t, store.Close())

	// Reopen the same database: the checkpointed cursor must prevent the
	// already-dispatched change from being reclassified.
	store2, err := journal.Open(ctx, dbPath)
	require.NoError(t, err)
	defer store2.Close()

	runCtx2, cancel2 := context.WithTimeout(ctx, 80*time.Millisecond)
	defer cancel2()
	_ = Run(runCtx2, b, store2, 10*time.Millisecond)

	require.Equal(t, 1, count)
}
