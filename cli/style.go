// ABOUTME: Terminal styles for CLI output
// ABOUTME: Colors actions and statuses with lipgloss
package cli

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// styleFor picks a color for an action or status word.
func styleFor(word string) lipgloss.Style {
	switch word {
	case "add", "update", "created", "resolved", "idle", "recorded":
		return okStyle
	case "delete", "pending", "syncing", "journaled":
		return warnStyle
	case "error", "failed":
		return errStyle
	default:
		return dimStyle
	}
}
