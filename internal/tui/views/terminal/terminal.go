// Package terminal renders the tail of the agent's terminal history.
package terminal

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kulti/stream/internal/tui/theme"
	"github.com/kulti/stream/pkg/kulti"
)

var (
	styleInput  = lipgloss.NewStyle().Foreground(theme.ColorHealthy)
	styleError  = lipgloss.NewStyle().Foreground(theme.ColorDanger)
	styleOutput = lipgloss.NewStyle().Foreground(theme.ColorBright)
)

// View renders the newest lines that fit in a width x height panel.
// Multi-line entries are split so the tail is exact.
func View(lines []kulti.TerminalLine, width, height int) string {
	innerW := max(width-4, 10)
	visible := max(height-3, 1)

	var rows []string
	for _, l := range lines {
		style := styleOutput
		switch l.Type {
		case "input":
			style = styleInput
		case "error":
			style = styleError
		}
		for _, row := range strings.Split(strings.TrimRight(l.Content, "\n"), "\n") {
			if len(row) > innerW {
				row = row[:innerW]
			}
			rows = append(rows, style.Render(row))
		}
	}
	if len(rows) > visible {
		rows = rows[len(rows)-visible:]
	}

	body := strings.Join(rows, "\n")
	if len(rows) == 0 {
		body = theme.StyleDimmed.Render("No terminal output yet.")
	}
	return theme.StyleBorder.Width(innerW).Padding(0, 1).
		Render(lipgloss.JoinVertical(lipgloss.Left, theme.StyleHeader.Render("TERMINAL"), body))
}
