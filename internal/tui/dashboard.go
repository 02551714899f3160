// Package tui renders the live status dashboard. The dashboard is a pure
// reader: it polls snapshots through the publisher on a timer and never
// mutates orchestrator state except for the explicit cancel key.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/orchestra-dev/orchestra/internal/orchestrator"
	"github.com/orchestra-dev/orchestra/internal/publisher"
	"github.com/orchestra-dev/orchestra/internal/state"
	"github.com/orchestra-dev/orchestra/internal/util"
)

// Canceller is the single mutating operation the dashboard can trigger.
type Canceller interface {
	Cancel(taskID string) error
}

// tickMsg drives the snapshot refresh cycle.
type tickMsg time.Time

// cancelResultMsg reports the outcome of an async cancel request.
type cancelResultMsg struct {
	taskID string
	err    error
}

// Model is the bubbletea model for the dashboard.
type Model struct {
	pub       *publisher.Publisher
	canceller Canceller
	interval  time.Duration

	snapshot orchestrator.Snapshot
	spinner  spinner.Model
	cursor   int
	width    int
	height   int
	showOut  bool
	notice   string
	quitting bool
}

// NewModel creates a dashboard model polling through pub every interval.
func NewModel(pub *publisher.Publisher, canceller Canceller, interval time.Duration) Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(colorRunning)

	if interval <= 0 {
		interval = time.Second
	}
	return Model{
		pub:       pub,
		canceller: canceller,
		interval:  interval,
		snapshot:  pub.Latest(),
		spinner:   sp,
		showOut:   true,
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.spinner.Tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.snapshot = m.pub.Poll()
		m.clampCursor()
		return m, m.tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case cancelResultMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("cancel %s: %v", msg.taskID, msg.err)
		} else {
			m.notice = fmt.Sprintf("cancel requested for %s", msg.taskID)
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.snapshot.Tasks)-1 {
				m.cursor++
			}
		case "o":
			m.showOut = !m.showOut
		case "x":
			return m, m.cancelSelected()
		case "r":
			m.snapshot = m.pub.Poll()
			m.clampCursor()
		}
	}
	return m, nil
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.snapshot.Tasks) {
		m.cursor = len(m.snapshot.Tasks) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) cancelSelected() tea.Cmd {
	if m.canceller == nil || m.cursor >= len(m.snapshot.Tasks) {
		return nil
	}
	view := m.snapshot.Tasks[m.cursor]
	if view.EffectiveStatus.Terminal() && view.EffectiveStatus != state.StatusStale {
		return nil
	}
	id := view.Record.TaskID
	canceller := m.canceller
	return func() tea.Msg {
		return cancelResultMsg{taskID: id, err: canceller.Cancel(id)}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	width := m.width
	if width <= 0 {
		width = 100
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("orchestra"))
	b.WriteString(" ")
	b.WriteString(m.spinner.View())
	b.WriteString("\n\n")

	if len(m.snapshot.Tasks) == 0 {
		b.WriteString(branchStyle.Render("  no tasks yet"))
		b.WriteString("\n")
	}

	for i, t := range m.snapshot.Tasks {
		b.WriteString(m.renderTask(i, t, width))
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter(width))
	return b.String()
}

func (m Model) renderTask(i int, t orchestrator.TaskView, width int) string {
	marker := "  "
	if i == m.cursor {
		marker = "> "
	}

	line := fmt.Sprintf("%s%s %s %s %s",
		marker,
		statusDot(t.EffectiveStatus),
		taskIDStyle.Render(t.Record.TaskID),
		statusLabel(t.EffectiveStatus),
		branchStyle.Render(t.Record.BranchName))
	if age := heartbeatAge(t); age != "" {
		line += " " + branchStyle.Render(age)
	}
	out := util.TruncateANSI(line, width) + "\n"

	if m.showOut && i == m.cursor && t.OutputTail != "" {
		out += outputStyle.Render(util.TruncateANSI(lastLine(t.OutputTail), width-6)) + "\n"
	}
	return out
}

func (m Model) renderFooter(width int) string {
	counts := m.snapshot.Counts()
	summary := fmt.Sprintf("%d running · %d pending · %d completed · %d failed · %d stale · %d cancelled",
		counts[state.StatusRunning],
		counts[state.StatusPending],
		counts[state.StatusCompleted],
		counts[state.StatusFailed],
		counts[state.StatusStale],
		counts[state.StatusCancelled])

	help := "↑/↓ select · x cancel · o output · r refresh · q quit"
	lines := []string{summary, help}
	if m.notice != "" {
		lines = append(lines, m.notice)
	}
	for i, line := range lines {
		lines[i] = util.TruncateANSI(footerStyle.Render(line), width)
	}
	return strings.Join(lines, "\n")
}

// heartbeatAge formats the time since the last liveness signal for active
// tasks. Terminal tasks show nothing; their heartbeat no longer matters.
func heartbeatAge(t orchestrator.TaskView) string {
	if t.EffectiveStatus != state.StatusRunning && t.EffectiveStatus != state.StatusStale {
		return ""
	}
	if t.HeartbeatAge < 0 {
		return ""
	}
	return fmt.Sprintf("(heartbeat %s ago)", t.HeartbeatAge.Round(time.Second))
}

// lastLine returns the last non-empty line of a chunk of output.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// Run starts the dashboard and blocks until the user quits or ctx is done.
func Run(ctx context.Context, pub *publisher.Publisher, canceller Canceller, interval time.Duration) error {
	model := NewModel(pub, canceller, interval)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}
