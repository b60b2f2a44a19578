package cmd

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

var (
	// Colors meet WCAG AA contrast on dark terminals
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#F87171") // Red
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	pendingColor = lipgloss.Color("#60A5FA") // Blue

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	errorStyle  = lipgloss.NewStyle().Foreground(errorColor)

	outcomeStyles = map[string]lipgloss.Style{
		outcomeInitialized: lipgloss.NewStyle().Foreground(successColor),
		outcomeLoaded:      lipgloss.NewStyle().Foreground(successColor),
		outcomeInitFailed:  lipgloss.NewStyle().Foreground(warningColor),
		outcomeFailed:      lipgloss.NewStyle().Foreground(errorColor),
		outcomeAbandoned:   lipgloss.NewStyle().Foreground(mutedColor),
		outcomeLoading:     lipgloss.NewStyle().Foreground(pendingColor),
		outcomeWatching:    lipgloss.NewStyle().Foreground(pendingColor),
	}
)

// styleOutcome colors an outcome label. Unknown labels are left plain.
func styleOutcome(outcome string) string {
	if s, ok := outcomeStyles[outcome]; ok {
		return s.Render(outcome)
	}
	return outcome
}

// truncate shortens s to maxWidth visual columns, ending in "..." when cut.
// ANSI escape codes and wide characters are measured correctly.
func truncate(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, "...")
}

// pad right-pads s with spaces to width visual columns.
func pad(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}
