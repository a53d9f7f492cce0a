// Package cli provides styled terminal output and the interactive review prompts.
package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette.
var (
	ledgerGreen = lipgloss.Color("#2E8B57")
	teal        = lipgloss.Color("#4ECDC4")
	amber       = lipgloss.Color("#FFB347")
	coral       = lipgloss.Color("#FF6B6B")
	mint        = lipgloss.Color("#95E1D3")
	gray        = lipgloss.Color("#666666")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(ledgerGreen)
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(ledgerGreen)
	labelStyle  = lipgloss.NewStyle().Foreground(gray).Width(14)
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(1, 2)

	// SubtleStyle dims secondary text such as record ids.
	SubtleStyle = lipgloss.NewStyle().Foreground(gray)
)

// Icons shown in front of status lines and box titles.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	LedgerIcon  = "🧾"
	MailIcon    = "📬"
	ChartIcon   = "📊"
)

func status(color lipgloss.Color, icon, message string) string {
	return lipgloss.NewStyle().Foreground(color).Render(icon + " " + message)
}

func FormatSuccess(message string) string { return status(teal, SuccessIcon, message) }
func FormatError(message string) string   { return status(coral, ErrorIcon, message) }
func FormatWarning(message string) string { return status(amber, WarningIcon, message) }
func FormatInfo(message string) string    { return status(mint, InfoIcon, message) }

// FormatTitle renders a section heading with a blank line below it.
func FormatTitle(title string) string {
	return titleStyle.MarginBottom(1).Render(LedgerIcon + " " + title)
}

func FormatPrompt(prompt string) string {
	return promptStyle.Render(prompt + " → ")
}

// FormatField renders one label/value row of a record box. Empty values show as a dash.
func FormatField(label, value string) string {
	if value == "" {
		value = SubtleStyle.Render("-")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

// RenderBox frames content under a bold title.
func RenderBox(title, content string) string {
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), content))
}
