package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/orchestra-dev/orchestra/internal/orchestrator"
	"github.com/orchestra-dev/orchestra/internal/publisher"
	"github.com/orchestra-dev/orchestra/internal/state"
)

type fakeSource struct {
	snap orchestrator.Snapshot
}

func (f *fakeSource) Status() orchestrator.Snapshot { return f.snap }

type fakeCanceller struct {
	cancelled []string
}

func (f *fakeCanceller) Cancel(taskID string) error {
	f.cancelled = append(f.cancelled, taskID)
	return nil
}

func taskView(id string, status state.Status) orchestrator.TaskView {
	return orchestrator.TaskView{
		Record: state.AgentRecord{
			TaskID:     id,
			BranchName: "orchestra/" + id,
			Status:     status,
		},
		EffectiveStatus: status,
		HeartbeatAge:    2 * time.Second,
	}
}

func testModel(t *testing.T, tasks ...orchestrator.TaskView) (Model, *fakeSource) {
	t.Helper()
	src := &fakeSource{snap: orchestrator.Snapshot{TakenAt: time.Now(), Tasks: tasks}}
	pub := publisher.New(src, time.Second, nil)
	pub.Poll()
	return NewModel(pub, &fakeCanceller{}, time.Second), src
}

func TestViewRendersTasks(t *testing.T) {
	m, _ := testModel(t,
		taskView("fix-login-abc12345", state.StatusRunning),
		taskView("add-tests-def67890", state.StatusCompleted),
	)

	view := m.View()
	if !strings.Contains(view, "fix-login-abc12345") {
		t.Errorf("view missing running task:\n%s", view)
	}
	if !strings.Contains(view, "add-tests-def67890") {
		t.Errorf("view missing completed task:\n%s", view)
	}
	if !strings.Contains(view, "orchestra/fix-login-abc12345") {
		t.Errorf("view missing branch name:\n%s", view)
	}
	if !strings.Contains(view, "1 running") || !strings.Contains(view, "1 completed") {
		t.Errorf("footer counts wrong:\n%s", view)
	}
}

func TestViewEmptySnapshot(t *testing.T) {
	m, _ := testModel(t)
	if view := m.View(); !strings.Contains(view, "no tasks yet") {
		t.Errorf("empty view = %q", view)
	}
}

func TestQuitKeys(t *testing.T) {
	for _, key := range []string{"q", "ctrl+c"} {
		t.Run(key, func(t *testing.T) {
			m, _ := testModel(t, taskView("a", state.StatusRunning))

			var msg tea.Msg
			if key == "ctrl+c" {
				msg = tea.KeyMsg{Type: tea.KeyCtrlC}
			} else {
				msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
			}
			updated, cmd := m.Update(msg)
			if cmd == nil {
				t.Fatal("expected a quit command")
			}
			if _, ok := cmd().(tea.QuitMsg); !ok {
				t.Errorf("cmd() = %T, want tea.QuitMsg", cmd())
			}
			if view := updated.(Model).View(); view != "" {
				t.Errorf("quitting view = %q, want empty", view)
			}
		})
	}
}

func TestCursorMovement(t *testing.T) {
	m, _ := testModel(t,
		taskView("first", state.StatusRunning),
		taskView("second", state.StatusRunning),
	)

	down := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")}
	up := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")}

	updated, _ := m.Update(down)
	m = updated.(Model)
	if m.cursor != 1 {
		t.Fatalf("cursor = %d after down, want 1", m.cursor)
	}

	// Does not run past the last row.
	updated, _ = m.Update(down)
	m = updated.(Model)
	if m.cursor != 1 {
		t.Fatalf("cursor = %d after second down, want 1", m.cursor)
	}

	updated, _ = m.Update(up)
	m = updated.(Model)
	if m.cursor != 0 {
		t.Fatalf("cursor = %d after up, want 0", m.cursor)
	}
}

func TestTickRefreshesSnapshot(t *testing.T) {
	m, src := testModel(t, taskView("only", state.StatusRunning))

	src.snap = orchestrator.Snapshot{
		TakenAt: time.Now(),
		Tasks:   []orchestrator.TaskView{taskView("only", state.StatusCompleted)},
	}

	updated, cmd := m.Update(tickMsg(time.Now()))
	m = updated.(Model)
	if cmd == nil {
		t.Error("tick did not schedule the next tick")
	}
	if got := m.snapshot.Tasks[0].EffectiveStatus; got != state.StatusCompleted {
		t.Errorf("status after tick = %v, want completed", got)
	}
}

func TestCancelKeySendsCancelForActiveTask(t *testing.T) {
	src := &fakeSource{snap: orchestrator.Snapshot{
		TakenAt: time.Now(),
		Tasks:   []orchestrator.TaskView{taskView("active-task", state.StatusRunning)},
	}}
	pub := publisher.New(src, time.Second, nil)
	pub.Poll()
	canceller := &fakeCanceller{}
	m := NewModel(pub, canceller, time.Second)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	if cmd == nil {
		t.Fatal("expected a cancel command")
	}
	result, ok := cmd().(cancelResultMsg)
	if !ok {
		t.Fatalf("cmd() = %T, want cancelResultMsg", cmd())
	}
	if result.err != nil {
		t.Errorf("cancel error = %v", result.err)
	}
	if len(canceller.cancelled) != 1 || canceller.cancelled[0] != "active-task" {
		t.Errorf("cancelled = %v, want [active-task]", canceller.cancelled)
	}
}

func TestCancelKeyIgnoresTerminalTask(t *testing.T) {
	m, _ := testModel(t, taskView("done-task", state.StatusCompleted))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	if cmd != nil {
		t.Error("cancel command issued for a terminal task")
	}
}

func TestCancelResultShowsNotice(t *testing.T) {
	m, _ := testModel(t, taskView("a", state.StatusRunning))

	updated, _ := m.Update(cancelResultMsg{taskID: "a"})
	m = updated.(Model)
	if !strings.Contains(m.View(), "cancel requested for a") {
		t.Errorf("view missing cancel notice:\n%s", m.View())
	}
}

func TestOutputToggle(t *testing.T) {
	view := taskView("talky", state.StatusRunning)
	view.OutputTail = "compiling package three of nine\n"
	m, _ := testModel(t, view)

	if !strings.Contains(m.View(), "compiling package three of nine") {
		t.Fatalf("output tail not shown by default:\n%s", m.View())
	}

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("o")})
	m = updated.(Model)
	if strings.Contains(m.View(), "compiling package three of nine") {
		t.Errorf("output tail still visible after toggle:\n%s", m.View())
	}
}

func TestWindowSizeTruncatesRows(t *testing.T) {
	m, _ := testModel(t, taskView("a-task-with-a-rather-long-identifier", state.StatusRunning))

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 24, Height: 10})
	m = updated.(Model)
	for _, line := range strings.Split(m.View(), "\n") {
		if w := lipgloss.Width(line); w > 24 {
			t.Errorf("line wider than window (%d cols): %q", w, line)
		}
	}
}
