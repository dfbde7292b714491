package cmd

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// field is one labelled line of command output.
type field struct {
	Key   string
	Value string
	Warn  bool
}

// reportTheme groups the styles used for operator command output.
type reportTheme struct {
	title lipgloss.Style
	key   lipgloss.Style
	value lipgloss.Style
	warn  lipgloss.Style
}

func defaultReportTheme() reportTheme {
	return reportTheme{
		title: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("88")),
		key: lipgloss.NewStyle().
			Foreground(lipgloss.Color("180")),
		value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("223")),
		warn: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true),
	}
}

// renderReport lays out a title and aligned key/value rows.
func renderReport(title string, fields []field) string {
	theme := defaultReportTheme()

	width := 0
	for _, f := range fields {
		width = max(width, lipgloss.Width(f.Key))
	}
	keyStyle := theme.key.Width(width + 2)

	lines := make([]string, 0, len(fields)+1)
	lines = append(lines, theme.title.Render(title))
	for _, f := range fields {
		valueStyle := theme.value
		if f.Warn {
			valueStyle = theme.warn
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, keyStyle.Render(f.Key), valueStyle.Render(f.Value)))
	}

	return strings.Join(lines, "\n") + "\n"
}
