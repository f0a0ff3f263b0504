package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// TransferModel shows a single byte transfer fed with fractions in [0,1].
type TransferModel struct {
	label    string
	progress <-chan float64
	width    int
	fraction float64
	quitting bool
}

type fractionMsg float64

func NewTransferModel(label string, progress <-chan float64) TransferModel {
	return TransferModel{label: label, progress: progress}
}

func (m TransferModel) Init() tea.Cmd {
	return listenForFractions(m.progress)
}

func (m TransferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case fractionMsg:
		m.fraction = max(m.fraction, min(float64(msg), 1))
		return m, listenForFractions(m.progress)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.width = msg.Width
	}
	return m, nil
}

func (m TransferModel) View() string {
	if m.quitting {
		return ""
	}
	return strings.Join([]string{
		titleStyle.Render(m.label),
		barStyle.Render(renderBar(barWidth(m.width), m.fraction)) + dimStyle.Render(fmt.Sprintf(" %3.0f%%", m.fraction*100)),
	}, "\n")
}

func listenForFractions(progress <-chan float64) tea.Cmd {
	return func() tea.Msg {
		if f, ok := <-progress; ok {
			return fractionMsg(f)
		}
		return doneMsg{}
	}
}
