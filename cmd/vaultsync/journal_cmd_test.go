package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CalvinMagezi/vaultsync/internal/model"
)

func TestRunJournalCompactRemovesOldEntries(t *testing.T) {
	dir := t.TempDir()
	flagVaultRoot = dir
	t.Setenv("VAULTSYNC_PASSPHRASE", "p")

	ctx := context.Background()
	vc, err := openVaultContext(ctx, dir, true)
	require.NoError(t, err)

	_, err = vc.store.Append(ctx, model.ChangeEntry{
		Path: "old.md", Kind: model.ChangeCreate, Source: model.SourceWatcher,
		DeviceID: "dev1", DetectedAt: time.Now().AddDate(0, 0, -40),
	})
	require.NoError(t, err)
	_, err = vc.store.Append(ctx, model.ChangeEntry{
		Path: "new.md", Kind: model.ChangeCreate, Source: model.SourceWatcher,
		DeviceID: "dev1", DetectedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, vc.Close())

	compactDays = 30
	journalCompactCmd.SetContext(ctx)
	require.NoError(t, runJournalCompact(journalCompactCmd, nil))

	vc2, err := openVaultContext(ctx, dir, true)
	require.NoError(t, err)
	defer vc2.Close()

	remaining, err := vc2.store.After(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "new.md", remaining[0].Path)
}

func TestRunJournalCompactRejectsNonPositiveDays(t *testing.T) {
	dir := t.TempDir()
	flagVaultRoot = dir
	t.Setenv("VAULTSYNC_PASSPHRASE", "p")
	journalCompactCmd.SetContext(context.Background())

	compactDays = 0
	require.Error(t, runJournalCompact(journalCompactCmd, nil))

	compactDays = -5
	require.Error(t, runJournalCompact(journalCompactCmd, nil))
}
