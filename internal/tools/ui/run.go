package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(2)

	spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
)

const defaultTimeout = 3 * time.Minute

type tickMsg struct{}

type doneMsg struct {
	details []string
	err     error
}

type model struct {
	title   string
	frame   int
	started time.Time
	done    bool
	details []string
	err     error
	cancel  context.CancelFunc
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m model) Init() tea.Cmd { return tick() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, tick()
	case doneMsg:
		m.done = true
		m.details = msg.details
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			m.cancel()
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	elapsed := time.Since(m.started).Round(100 * time.Millisecond)
	switch {
	case !m.done:
		fmt.Fprintf(&b, "%s %s %s\n", spinnerFrames[m.frame], titleStyle.Render(m.title), detailStyle.Render(elapsed.String()))
	case m.err != nil:
		fmt.Fprintf(&b, "%s %s\n", errStyle.Render("✗"), titleStyle.Render(m.title))
	default:
		fmt.Fprintf(&b, "%s %s %s\n", okStyle.Render("✓"), titleStyle.Render(m.title), detailStyle.Render(elapsed.String()))
	}
	if m.done {
		for _, d := range m.details {
			b.WriteString(detailStyle.Render(d))
			b.WriteByte('\n')
		}
		if m.err != nil {
			b.WriteString(errStyle.Render("  error: " + m.err.Error()))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Run executes fn behind a spinner and prints its details once it returns.
// Pressing q or ctrl+c cancels the context handed to fn.
func Run(title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	p := tea.NewProgram(model{title: title, started: time.Now(), cancel: cancel})
	go func() {
		details, err := fn(ctx)
		p.Send(doneMsg{details: details, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("run ui: %w", err)
	}
	m, _ := final.(model)
	return m.details, m.err
}
