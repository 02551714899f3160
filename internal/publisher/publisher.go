// Package publisher relays orchestrator snapshots to presentation layers.
// It polls the orchestrator on an interval and dispatches the resulting
// snapshot, plus any status transitions observed between polls, to
// registered handlers. Presentation code never talks to the orchestrator's
// internals; it only ever sees plain snapshot data.
package publisher

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orchestra-dev/orchestra/internal/logging"
	"github.com/orchestra-dev/orchestra/internal/orchestrator"
	"github.com/orchestra-dev/orchestra/internal/state"
)

// SnapshotSource produces point-in-time task snapshots.
type SnapshotSource interface {
	Status() orchestrator.Snapshot
}

// Handler receives each polled snapshot.
type Handler func(orchestrator.Snapshot)

// TransitionHandler receives per-task status changes observed between polls.
type TransitionHandler func(Transition)

// Transition is one observed status change for one task.
type Transition struct {
	TaskID string
	From   state.Status
	To     state.Status
	At     time.Time
}

// Publisher polls a snapshot source and fans results out to handlers.
// Handlers run on the polling goroutine in registration order; a panicking
// handler is recovered and logged so it cannot stop delivery to the rest.
type Publisher struct {
	source   SnapshotSource
	interval time.Duration
	logger   *logging.Logger

	mu          sync.RWMutex
	snapshots   map[uint64]Handler
	transitions map[uint64]TransitionHandler
	latest      orchestrator.Snapshot
	lastStatus  map[string]state.Status
	nextID      atomic.Uint64
}

// New creates a Publisher polling source every interval.
// A nil logger falls back to a no-op logger.
func New(source SnapshotSource, interval time.Duration, logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Publisher{
		source:      source,
		interval:    interval,
		logger:      logger.WithComponent("publisher"),
		snapshots:   make(map[uint64]Handler),
		transitions: make(map[uint64]TransitionHandler),
		lastStatus:  make(map[string]state.Status),
	}
}

// Subscribe registers a snapshot handler and returns its subscription id.
func (p *Publisher) Subscribe(h Handler) uint64 {
	id := p.nextID.Add(1)
	p.mu.Lock()
	p.snapshots[id] = h
	p.mu.Unlock()
	return id
}

// OnTransition registers a transition handler and returns its subscription id.
func (p *Publisher) OnTransition(h TransitionHandler) uint64 {
	id := p.nextID.Add(1)
	p.mu.Lock()
	p.transitions[id] = h
	p.mu.Unlock()
	return id
}

// Unsubscribe removes a subscription by id. Returns true if it existed.
func (p *Publisher) Unsubscribe(id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.snapshots[id]; ok {
		delete(p.snapshots, id)
		return true
	}
	if _, ok := p.transitions[id]; ok {
		delete(p.transitions, id)
		return true
	}
	return false
}

// Latest returns the most recently published snapshot. Useful for pull-based
// readers that render on their own schedule.
func (p *Publisher) Latest() orchestrator.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Run polls until ctx is done. The first poll happens immediately.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.publish()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.publish()
		}
	}
}

// Poll takes and publishes one snapshot outside of Run's schedule.
func (p *Publisher) Poll() orchestrator.Snapshot {
	return p.publish()
}

func (p *Publisher) publish() orchestrator.Snapshot {
	snap := p.source.Status()

	p.mu.Lock()
	p.latest = snap

	var changes []Transition
	for _, t := range snap.Tasks {
		prev, seen := p.lastStatus[t.Record.TaskID]
		if !seen || prev != t.EffectiveStatus {
			changes = append(changes, Transition{
				TaskID: t.Record.TaskID,
				From:   prev,
				To:     t.EffectiveStatus,
				At:     snap.TakenAt,
			})
			p.lastStatus[t.Record.TaskID] = t.EffectiveStatus
		}
	}

	snapHandlers := make([]Handler, 0, len(p.snapshots))
	for _, h := range p.snapshots {
		snapHandlers = append(snapHandlers, h)
	}
	transHandlers := make([]TransitionHandler, 0, len(p.transitions))
	for _, h := range p.transitions {
		transHandlers = append(transHandlers, h)
	}
	p.mu.Unlock()

	for _, h := range snapHandlers {
		p.safeSnapshot(h, snap)
	}
	for _, change := range changes {
		p.logger.Debug("task transition",
			"task", change.TaskID,
			"from", change.From.String(),
			"to", change.To.String())
		for _, h := range transHandlers {
			p.safeTransition(h, change)
		}
	}
	return snap
}

func (p *Publisher) safeSnapshot(h Handler, snap orchestrator.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("snapshot handler panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	h(snap)
}

func (p *Publisher) safeTransition(h TransitionHandler, t Transition) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("transition handler panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	h(t)
}
