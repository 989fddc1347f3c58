// vaultsync show renders a vault note in the terminal. The vault is all
// Markdown, so the operator-facing read path gets a real Markdown renderer;
// piped output passes the raw bytes through untouched.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"charm.land/glamour/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var showWidth int

var showCmd = &cobra.Command{
	Use:   "show <path>",
	Short: "Render a vault note as styled Markdown",
	Long: `show reads a note by its vault-relative path and renders it as styled
Markdown when stdout is a terminal. When piped, the raw file content is
written unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().IntVar(&showWidth, "width", 100, "Word-wrap width for rendered output")
}

func runShow(cmd *cobra.Command, args []string) error {
	rel := filepath.ToSlash(args[0])
	full := filepath.Join(flagVaultRoot, filepath.FromSlash(rel))

	data, err := os.ReadFile(full) // #nosec G304 -- path is the operator's own vault note
	if err != nil {
		return fmt.Errorf("vaultsync: read %s: %w", rel, err)
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		_, err := os.Stdout.Write(data)
		return err
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(showWidth),
	)
	if err != nil {
		return fmt.Errorf("vaultsync: markdown renderer: %w", err)
	}
	out, err := r.Render(string(data))
	if err != nil {
		return fmt.Errorf("vaultsync: render %s: %w", rel, err)
	}
	fmt.Print(out)
	return nil
}
