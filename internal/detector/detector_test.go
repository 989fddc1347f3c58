package detector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CalvinMagezi/vaultsync/internal/journal"
)

func newTestDetector(t *testing.T) (*Detector, string) {
	t.Helper()
	root := t.TempDir()
	store, err := journal.Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	d := New(Config{VaultRoot: root, DeviceID: "dev1", Store: store})
	return d, root
}

func TestIgnoreSetRejectsNonMarkdownAndPatterns(t *testing.T) {
	s := NewIgnoreSet([]string{"Drafts/"})
	require.True(t, s.Ignored("readme.txt"))
	require.True(t, s.Ignored(".obsidian/workspace.md"))
	require.True(t, s.Ignored("Drafts/idea.md"))
	require.False(t, s.Ignored("Notebooks/idea.md"))
}

func TestSuppressSetLifecycle(t *testing.T) {
	s := newSuppressSet()
	require.False(t, s.IsSuppressed("a.md"))
	s.Suppress("a.md")
	require.True(t, s.IsSuppressed("a.md"))
	s.Release("a.md")
	require.True(t, s.IsSuppressed("a.md")) // still within grace window
	time.Sleep(unsuppressDelay + 50*time.Millisecond)
	require.False(t, s.IsSuppressed("a.md"))
}

func TestScanOnceRecordsCreatedFiles(t *testing.T) {
	d, root := newTestDetector(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("hello"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".obsidian"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".obsidian", "workspace.md"), []byte("x"), 0o644))

	require.NoError(t, d.scanOnce(ctx))

	cur, err := d.store.CurrentVersion(ctx, "a.md")
	require.NoError(t, err)
	require.NotEmpty(t, cur.ContentHash)

	_, err = d.store.CurrentVersion(ctx, ".obsidian/workspace.md")
	require.Error(t, err)

	changes, err := d.store.After(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, changes, 1)
}

func TestScanOnceDetectsDeletion(t *testing.T) {
	d, root := newTestDetector(t)
	ctx := context.Background()

	path := filepath.Join(root, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	require.NoError(t, d.scanOnce(ctx))

	require.NoError(t, os.Remove(path))
	require.NoError(t, d.scanOnce(ctx))

	_, err := d.store.CurrentVersion(ctx, "a.md")
	require.Error(t, err)

	changes, err := d.store.After(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	require.Equal(t, "delete", string(changes[1].Kind))
}

func TestScanOnceSkipsUnchangedFiles(t *testing.T) {
	d, root := newTestDetector(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("hello"), 0o644))
	require.NoError(t, d.scanOnce(ctx))
	require.NoError(t, d.scanOnce(ctx))

	changes, err := d.store.After(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, changes, 1)
}
