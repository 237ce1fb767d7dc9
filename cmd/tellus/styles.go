package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/tellus/tellus/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	boldStyle  = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	tokenStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")).Bold(true)

	statusStyles = map[model.Status]lipgloss.Style{
		model.StatusReceived:    lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		model.StatusUnderReview: lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")),
		model.StatusSolved:      lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
	}
)

func renderStatus(s model.Status) string {
	label := map[model.Status]string{
		model.StatusReceived:    "received",
		model.StatusUnderReview: "under review",
		model.StatusSolved:      "solved",
	}[s]
	if label == "" {
		label = string(s)
	}
	if style, ok := statusStyles[s]; ok {
		return style.Render(label)
	}
	return label
}
