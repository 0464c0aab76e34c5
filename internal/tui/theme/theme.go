// Package theme provides the Lip Gloss color palette and reusable styles
// for the Kulti viewer. It is a leaf package with no internal imports to
// avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Thought type colors.
var (
	ColorGeneral     = lipgloss.Color("#9ca3af")
	ColorReasoning   = lipgloss.Color("#a855f7")
	ColorDecision    = lipgloss.Color("#22c55e")
	ColorObservation = lipgloss.Color("#06b6d4")
	ColorEvaluation  = lipgloss.Color("#f59e0b")
	ColorContext     = lipgloss.Color("#3b82f6")
	ColorTool        = lipgloss.Color("#d97706")
	ColorConfusion   = lipgloss.Color("#f472b6")
	ColorPrompt      = lipgloss.Color("#67e8f9")
)

// Status colors.
var (
	ColorLive     = lipgloss.Color("#dc2626")
	ColorWorking  = lipgloss.Color("#d97706")
	ColorThinking = lipgloss.Color("#2563eb")
	ColorStarting = lipgloss.Color("#7c3aed")
	ColorPaused   = lipgloss.Color("#854d0e")
	ColorDone     = lipgloss.Color("#16a34a")
	ColorOffline  = lipgloss.Color("#374151")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// ThoughtColor returns the color for a thought type.
func ThoughtColor(typ string) lipgloss.Color {
	switch typ {
	case "reasoning":
		return ColorReasoning
	case "decision":
		return ColorDecision
	case "observation":
		return ColorObservation
	case "evaluation":
		return ColorEvaluation
	case "context":
		return ColorContext
	case "tool":
		return ColorTool
	case "confusion":
		return ColorConfusion
	case "prompt":
		return ColorPrompt
	default:
		return ColorGeneral
	}
}

// StatusColor returns the color for an agent status.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "live":
		return ColorLive
	case "working":
		return ColorWorking
	case "thinking":
		return ColorThinking
	case "starting":
		return ColorStarting
	case "paused":
		return ColorPaused
	case "done":
		return ColorDone
	case "offline":
		return ColorOffline
	default:
		return ColorDefault
	}
}

// StatusGlyph returns a Unicode glyph for an agent status.
func StatusGlyph(status string) string {
	switch status {
	case "live":
		return "●"
	case "working":
		return "⚙"
	case "thinking":
		return "●>"
	case "starting":
		return "◎"
	case "paused":
		return "◌"
	case "done":
		return "✓"
	case "offline":
		return "○"
	default:
		return "·"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)
)
