// Package tui holds the interactive terminal front ends for the calculator and
// the task list.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	displayStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(22).
			Align(lipgloss.Right)

	buttonStyle = lipgloss.NewStyle().
			Width(5).
			Align(lipgloss.Center).
			Foreground(lipgloss.Color("252"))

	activeButtonStyle = buttonStyle.
				Bold(true).
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("39"))

	filterStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("241"))

	activeFilterStyle = filterStyle.
				Bold(true).
				Foreground(lipgloss.Color("10")).
				Underline(true)

	doneStyle = lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(lipgloss.Color("241"))

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)
