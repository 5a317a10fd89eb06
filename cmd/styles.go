package cmd

import "github.com/charmbracelet/lipgloss"

// Styles used by the startup banner
var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10E80C")). // Nosana green
			Bold(true).
			Padding(1, 0)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC")) // Light Gray

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6347")). // Tomato red
			Bold(true)
)
