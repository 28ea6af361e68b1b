// Package styles holds the lipgloss palette used by the command line output.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/workcrew/internal/model"
)

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	BorderColor    = lipgloss.Color("#6B7280") // Gray
	BlueColor      = lipgloss.Color("#60A5FA") // Blue

	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor)

	Label = lipgloss.NewStyle().
		Bold(true).
		Foreground(MutedColor)

	// OutputBox frames a frozen team output awaiting a checkpoint decision.
	OutputBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	Prompt = lipgloss.NewStyle().
		Bold(true).
		Foreground(WarningColor)
)

// StatusColor returns the color for a team, worker or execution status.
// The status machines share their value names.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case string(model.ExecutionCompleted):
		return SecondaryColor
	case string(model.ExecutionRunning):
		return BlueColor
	case string(model.ExecutionFailed):
		return ErrorColor
	case string(model.ExecutionPaused), string(model.TeamAwaitingCheckpoint):
		return WarningColor
	default:
		return MutedColor
	}
}

// Status renders status in its color.
func Status(status string) string {
	return lipgloss.NewStyle().Foreground(StatusColor(status)).Render(status)
}
