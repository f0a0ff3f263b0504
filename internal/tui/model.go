package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"lumen/internal/pipeline"
	"lumen/internal/record"
)

// Model is the progress view shown while a batch runs.
type Model struct {
	title    string
	mode     record.Mode
	updates  <-chan pipeline.ProgressUpdate
	started  time.Time
	width    int
	quitting bool

	total, processed, errors int
	bytesIn, bytesOut        int64
}

type doneMsg struct{}

type updateMsg pipeline.ProgressUpdate

func NewModel(title string, mode record.Mode, updates <-chan pipeline.ProgressUpdate) Model {
	return Model{title: title, mode: mode, updates: updates, started: time.Now()}
}

func (m Model) Init() tea.Cmd {
	return listenForUpdates(m.updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		m.total += msg.TotalDelta
		m.processed += msg.ProcessedDelta
		m.errors += msg.ErrorDelta
		m.bytesIn += msg.BytesInDelta
		m.bytesOut += msg.BytesOutDelta
		return m, listenForUpdates(m.updates)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.width = msg.Width
	}
	return m, nil
}

// done counts images that finished either way.
func (m Model) done() int {
	return m.processed + m.errors
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	ratio := 0.0
	if m.total > 0 {
		ratio = min(float64(m.done())/float64(m.total), 1)
	}

	status := labelStyle.Render(fmt.Sprintf("Images: %d/%d", m.processed, m.total))
	if m.errors > 0 {
		status += warnStyle.Render(fmt.Sprintf("  failed: %d", m.errors))
	}

	size := fmt.Sprintf("Size: %s -> %s", FormatBytes(m.bytesIn), FormatBytes(m.bytesOut))
	if m.bytesIn > 0 {
		size += "  " + Change(record.ChangeLabel(m.mode, m.bytesIn, m.bytesOut))
	}

	elapsed := time.Since(m.started)
	timing := fmt.Sprintf("Elapsed: %s", elapsed.Round(time.Millisecond))
	if eta, ok := estimate(elapsed, m.done(), m.total); ok {
		timing += fmt.Sprintf("  eta: %s", eta.Round(time.Second))
	}

	return strings.Join([]string{
		titleStyle.Render(m.title),
		status,
		labelStyle.Render(size),
		dimStyle.Render(timing),
		barStyle.Render(renderBar(barWidth(m.width), ratio)) + dimStyle.Render(fmt.Sprintf(" %3.0f%%", ratio*100)),
	}, "\n")
}

// estimate extrapolates the remaining time from the average so far.
func estimate(elapsed time.Duration, done, total int) (time.Duration, bool) {
	if done == 0 || done >= total {
		return 0, false
	}
	per := elapsed / time.Duration(done)
	return per * time.Duration(total-done), true
}

func listenForUpdates(updates <-chan pipeline.ProgressUpdate) tea.Cmd {
	return func() tea.Msg {
		if update, ok := <-updates; ok {
			return updateMsg(update)
		}
		return doneMsg{}
	}
}

func barWidth(termWidth int) int {
	if termWidth <= 0 {
		return 40
	}
	return max(20, min(60, termWidth-16))
}

func renderBar(width int, ratio float64) string {
	filled := max(0, min(width, int(ratio*float64(width)+0.5)))
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	labelStyle = lipgloss.NewStyle().Foreground(ColorInk)
	barStyle   = lipgloss.NewStyle().Foreground(ColorAccentAlt)
	dimStyle   = lipgloss.NewStyle().Foreground(ColorDim)
)
