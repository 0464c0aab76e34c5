// Package agents renders the agent picker overlay from GET /agents.
package agents

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kulti/stream/internal/tui/client"
	"github.com/kulti/stream/internal/tui/theme"
)

// Model holds the agent list and the selection.
type Model struct {
	Agents   []client.AgentSummary
	Selected int
	Err      error
}

func New() Model {
	return Model{}
}

// SetAgents replaces the list, most watched first, keeping current selected
// when it is still present.
func (m *Model) SetAgents(list []client.AgentSummary, current string) {
	m.Agents = append([]client.AgentSummary(nil), list...)
	sort.SliceStable(m.Agents, func(i, j int) bool {
		if m.Agents[i].ViewerCount != m.Agents[j].ViewerCount {
			return m.Agents[i].ViewerCount > m.Agents[j].ViewerCount
		}
		return m.Agents[i].AgentID < m.Agents[j].AgentID
	})
	m.Selected = 0
	for i, a := range m.Agents {
		if a.AgentID == current {
			m.Selected = i
		}
	}
	m.Err = nil
}

func (m *Model) Next() {
	if len(m.Agents) > 0 {
		m.Selected = (m.Selected + 1) % len(m.Agents)
	}
}

func (m *Model) Prev() {
	if len(m.Agents) > 0 {
		m.Selected = (m.Selected - 1 + len(m.Agents)) % len(m.Agents)
	}
}

// Choice is the selected agent id, or "" when the list is empty.
func (m Model) Choice() string {
	if m.Selected < 0 || m.Selected >= len(m.Agents) {
		return ""
	}
	return m.Agents[m.Selected].AgentID
}

func (m Model) View(width int) string {
	width = max(width-4, 40)
	title := theme.StyleHeader.Render(" AGENTS ")
	help := theme.StyleDimmed.Render("j/k:select  enter:watch  esc:close")

	var lines []string
	switch {
	case m.Err != nil:
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("  "+m.Err.Error()))
	case len(m.Agents) == 0:
		lines = append(lines, theme.StyleDimmed.Render("  No agents streaming"))
	}

	for i, a := range m.Agents {
		prefix := "  "
		if i == m.Selected {
			prefix = "> "
		}
		name := a.AgentName
		if name == "" {
			name = a.AgentID
		}
		status := lipgloss.NewStyle().Foreground(theme.StatusColor(a.Status)).
			Render(theme.StatusGlyph(a.Status) + " " + a.Status)
		line := fmt.Sprintf("%s%-20s %s  %d watching", prefix, name, status, a.ViewerCount)
		if a.CurrentTask != nil && *a.CurrentTask != "" {
			line += theme.StyleDimmed.Render("  " + *a.CurrentTask)
		}
		if i == m.Selected {
			line = theme.StyleSelected.Render(line)
		}
		lines = append(lines, line)
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, "", strings.Join(lines, "\n"), "", help)
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
