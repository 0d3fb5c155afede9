package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when the user interrupts a running spinner.
var ErrCancelled = errors.New("cancelled")

type workDoneMsg[T any] struct {
	value T
	err   error
}

type loaderModel[T any] struct {
	ctx     context.Context
	label   string
	timeout time.Duration
	work    func(ctx context.Context) (T, error)
	spinner spinner.Model
	result  T
	err     error
	done    bool
}

func (m loaderModel[T]) Init() tea.Cmd {
	return tea.Batch(m.doWork(), m.spinner.Tick)
}

func (m loaderModel[T]) doWork() tea.Cmd {
	parent, work, timeout := m.ctx, m.work, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		v, err := work(ctx)
		return workDoneMsg[T]{value: v, err: err}
	}
}

func (m loaderModel[T]) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case workDoneMsg[T]:
		m.result = msg.value
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			m.err = ErrCancelled
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m loaderModel[T]) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s %s...\n", m.spinner.View(), m.label)
}

// RunSpinner shows a spinner labelled label while work runs. It renders
// inline (no alt screen). work gets a child of ctx bounded by timeout, and
// is cancelled when RunSpinner returns early.
func RunSpinner[T any](ctx context.Context, label string, timeout time.Duration, work func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("33"))),
	)
	m := loaderModel[T]{
		ctx:     ctx,
		label:   label,
		timeout: timeout,
		work:    work,
		spinner: s,
	}

	result, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	if err != nil {
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, err
	}
	final := result.(loaderModel[T])
	return final.result, final.err
}
