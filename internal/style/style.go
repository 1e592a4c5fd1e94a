package style

import "github.com/charmbracelet/lipgloss"

// Shared terminal styles. Keep the palette small: the CLI output should
// read fine on both light and dark backgrounds.
var (
	Bold    = lipgloss.NewStyle().Bold(true)
	Dim     = lipgloss.NewStyle().Faint(true)
	Success = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	Warning = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	Error   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	Accent  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

// State returns the style for a session lifecycle state.
func State(state string) lipgloss.Style {
	switch state {
	case "completed":
		return Success
	case "failed":
		return Error
	case "awaitingPlanApproval", "awaitingUserFeedback", "paused":
		return Warning
	case "inProgress", "planning", "queued":
		return Accent
	default:
		return Dim
	}
}
