package main

import "github.com/charmbracelet/lipgloss"

// Styles for status/doctor output.
var (
	okStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	})
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	})
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	})
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	})
)

// statusWord colors ok-ish words green and everything else red, for the
// relay-health line shared by status and doctor.
func statusWord(s string) string {
	if s == "ok" {
		return okStyle.Render(s)
	}
	return failStyle.Render(s)
}
