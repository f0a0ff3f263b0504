package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type SummaryRow struct {
	Label string
	Value string
}

func RenderSummary(rows []SummaryRow) string {
	labelWidth := 0
	valueWidth := 0
	for _, row := range rows {
		labelWidth = max(labelWidth, lipgloss.Width(row.Label))
		valueWidth = max(valueWidth, lipgloss.Width(row.Value))
	}

	hline := strings.Repeat("-", labelWidth+valueWidth+3)
	lines := []string{hline}

	for _, row := range rows {
		label := padRight(row.Label, labelWidth)
		value := padRight(row.Value, valueWidth)
		line := fmt.Sprintf("%s | %s", labelStyle.Render(label), valueStyle.Render(value))
		lines = append(lines, line)
	}

	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

// RenderTable lays out rows under header with columns separated by " | ".
// A row shorter than header is padded with blanks.
func RenderTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(header) && i < len(row); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	total := 0
	for _, w := range widths {
		total += w
	}
	hline := strings.Repeat("-", total+3*(len(widths)-1))

	format := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(header))
		for i := range header {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = style.Render(padRight(cell, widths[i]))
		}
		return strings.Join(parts, " | ")
	}

	lines := []string{hline, format(header, headerStyle), hline}
	for _, row := range rows {
		lines = append(lines, format(row, labelStyle))
	}
	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Warn styles a warning line.
func Warn(s string) string {
	return warnStyle.Render(s)
}

// Success styles a confirmation line.
func Success(s string) string {
	return successStyle.Render(s)
}

// Failed styles an error cell.
func Failed(s string) string {
	return errorStyle.Render(s)
}

// Change colours a change label: growth ("+N%") apart from savings.
func Change(label string) string {
	if strings.HasPrefix(label, "+") {
		return growthStyle.Render(label)
	}
	return successStyle.Render(label)
}

func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

var (
	valueStyle   = lipgloss.NewStyle().Foreground(ColorInk).Bold(true)
	headerStyle  = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(ColorWarn)
	successStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	errorStyle   = lipgloss.NewStyle().Foreground(ColorError)
	growthStyle  = lipgloss.NewStyle().Foreground(ColorGrowth)
)
