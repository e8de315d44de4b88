package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// The elapsed time is only shown once a call is noticeably slow.
const showElapsedAfter = 2 * time.Second

type callDoneMsg struct {
	err error
}

type callSpinnerModel struct {
	spinner  spinner.Model
	label    string
	elapsed  lipgloss.Style
	call     tea.Cmd
	started  time.Time
	now      func() time.Time
	finished bool
	err      error
}

func newCallSpinnerModel(label string, call tea.Cmd, now func() time.Time) callSpinnerModel {
	return callSpinnerModel{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.MiniDot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("39"))),
		),
		label:   label,
		elapsed: lipgloss.NewStyle().Faint(true),
		call:    call,
		started: now(),
		now:     now,
	}
}

func (m callSpinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.call)
}

func (m callSpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case callDoneMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m callSpinnerModel) View() string {
	if m.finished {
		return ""
	}

	line := m.spinner.View() + " " + m.label
	if waited := m.now().Sub(m.started); waited >= showElapsedAfter {
		line += " " + m.elapsed.Render(fmt.Sprintf("(%ds)", int(waited.Seconds())))
	}
	return line
}

// runWithSpinner draws a spinner and label on output until call returns, and
// returns call's error.
func runWithSpinner(ctx context.Context, output io.Writer, label string, call func(context.Context) error) error {
	model := newCallSpinnerModel(label, func() tea.Msg {
		return callDoneMsg{err: call(ctx)}
	}, time.Now)

	final, err := tea.NewProgram(model,
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	).Run()
	if err != nil {
		return fmt.Errorf("run spinner: %w", err)
	}

	done, ok := final.(callSpinnerModel)
	if !ok {
		return fmt.Errorf("unexpected final spinner model type %T", final)
	}
	return done.err
}
