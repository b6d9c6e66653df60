package main

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF79C6"))

	personaStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#BD93F9"))

	emotionStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("#8BE9FD"))

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB86C"))
)
