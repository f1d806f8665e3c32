package tui

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	spinnerColor = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD787"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
)

// ErrCanceled is returned when the user interrupts a spinner.
var ErrCanceled = errors.New("canceled")

// spinnerModel is the bubbletea model for a spinner.
type spinnerModel struct {
	spinner  spinner.Model
	message  string
	done     bool
	err      error
	quitting bool
}

type spinnerDoneMsg struct {
	err error
}

func newSpinnerModel(message string) spinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerColor
	return spinnerModel{spinner: s, message: message}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case spinnerDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	switch {
	case m.quitting:
		return ""
	case m.done && m.err != nil:
		return errorStyle.Render("✗ "+m.message) + "\n"
	case m.done:
		return successStyle.Render("✓ "+m.message) + "\n"
	}
	return fmt.Sprintf("%s %s\n", m.spinner.View(), m.message)
}

// RunWithSpinner runs fn while drawing a spinner on out. Interrupting the
// spinner cancels the context passed to fn and returns ErrCanceled.
func RunWithSpinner[T any](ctx context.Context, out io.Writer, message string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newSpinnerModel(message),
		tea.WithOutput(out),
		tea.WithContext(ctx),
	)

	var (
		result T
		fnErr  error
		done   = make(chan struct{})
	)
	go func() {
		defer close(done)
		result, fnErr = fn(ctx)
		p.Send(spinnerDoneMsg{err: fnErr})
	}()

	final, err := p.Run()
	if m, ok := final.(spinnerModel); ok && m.quitting {
		cancel()
		<-done
		var zero T
		return zero, ErrCanceled
	}
	<-done
	if err != nil && fnErr == nil && !errors.Is(err, tea.ErrProgramKilled) {
		var zero T
		return zero, err
	}
	return result, fnErr
}
