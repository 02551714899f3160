package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/orchestra-dev/orchestra/internal/orchestrator"
	"github.com/orchestra-dev/orchestra/internal/state"
)

// fakeSource serves a swappable snapshot.
type fakeSource struct {
	mu   sync.Mutex
	snap orchestrator.Snapshot
}

func (f *fakeSource) Status() orchestrator.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSource) set(snap orchestrator.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
}

func snapshotWith(statuses map[string]state.Status) orchestrator.Snapshot {
	snap := orchestrator.Snapshot{TakenAt: time.Now()}
	for id, s := range statuses {
		snap.Tasks = append(snap.Tasks, orchestrator.TaskView{
			Record:          state.AgentRecord{TaskID: id, Status: s},
			EffectiveStatus: s,
		})
	}
	return snap
}

func TestPollDeliversSnapshots(t *testing.T) {
	src := &fakeSource{}
	src.set(snapshotWith(map[string]state.Status{"t-1": state.StatusRunning}))

	p := New(src, time.Second, nil)

	var got []orchestrator.Snapshot
	p.Subscribe(func(s orchestrator.Snapshot) { got = append(got, s) })

	p.Poll()
	if len(got) != 1 {
		t.Fatalf("handler called %d times, want 1", len(got))
	}
	if len(got[0].Tasks) != 1 || got[0].Tasks[0].Record.TaskID != "t-1" {
		t.Errorf("unexpected snapshot delivered: %+v", got[0])
	}
	if len(p.Latest().Tasks) != 1 {
		t.Errorf("Latest() not updated")
	}
}

func TestTransitionsEmittedOnStatusChange(t *testing.T) {
	src := &fakeSource{}
	src.set(snapshotWith(map[string]state.Status{"t-1": state.StatusRunning}))

	p := New(src, time.Second, nil)

	var transitions []Transition
	p.OnTransition(func(tr Transition) { transitions = append(transitions, tr) })

	// First poll: a never-seen task counts as a transition into its status.
	p.Poll()
	if len(transitions) != 1 || transitions[0].To != state.StatusRunning {
		t.Fatalf("transitions after first poll = %+v", transitions)
	}

	// Same status again: no new transition.
	p.Poll()
	if len(transitions) != 1 {
		t.Fatalf("unchanged poll emitted transitions: %+v", transitions)
	}

	// Status change: exactly one transition with from/to populated.
	src.set(snapshotWith(map[string]state.Status{"t-1": state.StatusCompleted}))
	p.Poll()
	if len(transitions) != 2 {
		t.Fatalf("transitions after change = %+v", transitions)
	}
	last := transitions[1]
	if last.From != state.StatusRunning || last.To != state.StatusCompleted || last.TaskID != "t-1" {
		t.Errorf("transition = %+v, want running->completed for t-1", last)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	src := &fakeSource{}
	src.set(snapshotWith(nil))

	p := New(src, time.Second, nil)

	calls := 0
	id := p.Subscribe(func(orchestrator.Snapshot) { calls++ })

	p.Poll()
	if !p.Unsubscribe(id) {
		t.Error("Unsubscribe() = false for live subscription")
	}
	p.Poll()

	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
	if p.Unsubscribe(id) {
		t.Error("Unsubscribe() = true for already-removed subscription")
	}
}

func TestPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	src := &fakeSource{}
	src.set(snapshotWith(nil))

	p := New(src, time.Second, nil)

	p.Subscribe(func(orchestrator.Snapshot) { panic("boom") })
	delivered := false
	p.Subscribe(func(orchestrator.Snapshot) { delivered = true })

	p.Poll()
	if !delivered {
		t.Error("panic in one handler blocked delivery to the next")
	}
}

func TestRunPollsUntilCancelled(t *testing.T) {
	src := &fakeSource{}
	src.set(snapshotWith(map[string]state.Status{"t-1": state.StatusPending}))

	p := New(src, 10*time.Millisecond, nil)

	var mu sync.Mutex
	calls := 0
	p.Subscribe(func(orchestrator.Snapshot) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx); err != context.DeadlineExceeded {
		t.Errorf("Run() = %v, want context.DeadlineExceeded", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls < 2 {
		t.Errorf("Run() polled %d times, want several", calls)
	}
}
