package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/kulti/stream/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	Agent     string
	Status    string
	Viewers   int
	Files     int
	Commands  int
	Width     int
}

func New() Model {
	return Model{}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	agent := theme.StyleHeader.Render(m.Agent)
	status := lipgloss.NewStyle().Foreground(theme.StatusColor(m.Status)).
		Render(theme.StatusGlyph(m.Status) + " " + m.Status)
	counts := fmt.Sprintf("%d watching  %d files  %d commands", m.Viewers, m.Files, m.Commands)

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + agent
	if m.Status != "" {
		content += sep + status
	}
	content += sep + counts

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
