package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunShowMissingNoteErrors(t *testing.T) {
	flagVaultRoot = t.TempDir()
	err := runShow(showCmd, []string{"Notebooks/nope.md"})
	require.Error(t, err)
}

func TestRunShowPassesRawContentThroughWhenPiped(t *testing.T) {
	// The test binary's stdout is never a terminal, so this exercises the
	// raw passthrough branch.
	dir := t.TempDir()
	flagVaultRoot = dir
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Notebooks"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Notebooks", "a.md"), []byte("# Title\n"), 0o644))

	require.NoError(t, runShow(showCmd, []string{"Notebooks/a.md"}))
}
