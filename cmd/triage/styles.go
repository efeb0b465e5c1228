package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	appNameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("114"))

	bookedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("69"))

	sentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	waitingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

func stageStyle(stage string) lipgloss.Style {
	switch stage {
	case "meeting_completed":
		return completedStyle
	case "meeting_booked":
		return bookedStyle
	case "invitation_sent":
		return sentStyle
	case "no_invitation":
		return waitingStyle
	}
	return labelStyle
}

func centerText(text string, width int) string {
	if width <= 0 {
		return text
	}
	textWidth := lipgloss.Width(text)
	if textWidth >= width {
		return text
	}
	pad := (width - textWidth) / 2
	return strings.Repeat(" ", pad) + text
}

func separator(width int) string {
	w := width - 4
	if w < 1 {
		w = 1
	}
	return separatorStyle.Render("  " + strings.Repeat("─", w))
}
