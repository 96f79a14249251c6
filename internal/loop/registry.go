package loop

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/albert-ai/loopguard/internal/logging"
	"github.com/albert-ai/loopguard/pkg/schema"
)

type entry struct {
	mu       sync.Mutex
	meta     *Metadata
	state    schema.LoopStatus
	decision Decision
	lastSeen time.Time
}

func (e *entry) snapshot(now time.Time) Snapshot {
	s := e.meta.Snapshot(now)
	s.State = e.state
	s.ExitReason = e.decision.Reason
	s.ExitKind = e.decision.Kind
	return s
}

// Registry holds loops driven step by step by an external executor. It has
// no timers of its own: idle loops leave only through Evict.
type Registry struct {
	runner *Runner

	mu    sync.RWMutex
	loops map[string]*entry
}

// NewRegistry creates an empty Registry backed by runner.
func NewRegistry(runner *Runner) *Registry {
	return &Registry{
		runner: runner,
		loops:  make(map[string]*entry),
	}
}

// Put registers and starts tracking meta.
func (r *Registry) Put(ctx context.Context, meta *Metadata) error {
	r.mu.Lock()
	if _, exists := r.loops[meta.LoopID]; exists {
		r.mu.Unlock()
		return schema.NewError(schema.ErrCodeConflict, "loop already registered").WithLoop(meta.LoopID)
	}
	e := &entry{meta: meta, state: schema.LoopStatusRunning, lastSeen: r.runner.eval.Now()}
	r.loops[meta.LoopID] = e
	r.mu.Unlock()

	ctx = logging.WithLoop(ctx, meta.WorkflowID, meta.LoopID)
	if err := r.runner.begin(ctx, meta); err != nil {
		r.mu.Lock()
		delete(r.loops, meta.LoopID)
		r.mu.Unlock()
		return err
	}
	return nil
}

// Get returns a snapshot of the loop.
func (r *Registry) Get(id string) (Snapshot, bool) {
	e, ok := r.lookup(id)
	if !ok {
		return Snapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(r.runner.eval.Now()), true
}

// List returns snapshots of every tracked loop, ordered by loop id.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.loops))
	for _, e := range r.loops {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	now := r.runner.eval.Now()
	out := make([]Snapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.snapshot(now))
		e.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b Snapshot) int { return strings.Compare(a.LoopID, b.LoopID) })
	return out
}

// Record feeds one iteration's output to the loop and returns the
// evaluator's decision. A loop that already stopped rejects new output.
func (r *Registry) Record(ctx context.Context, id, output string) (Decision, error) {
	e, ok := r.lookup(id)
	if !ok {
		return Decision{}, schema.NewError(schema.ErrCodeNotFound, "loop not registered").WithLoop(id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.IsTerminal() {
		return e.decision, schema.NewErrorf(schema.ErrCodeConflict, "loop is %s", e.state).WithLoop(id)
	}

	ctx = logging.WithLoop(ctx, e.meta.WorkflowID, id)
	e.lastSeen = r.runner.eval.Now()
	d, err := r.runner.advance(ctx, e.meta, output)
	if err != nil {
		return d, err
	}
	if d.ShouldExit {
		e.state = schema.LoopStatusExited
		e.decision = d
		if err := r.runner.finish(ctx, e.meta, e.state, d.Reason, d.Kind); err != nil {
			return d, err
		}
	}
	return d, nil
}

// Cancel stops a running loop.
func (r *Registry) Cancel(ctx context.Context, id, reason string) error {
	e, ok := r.lookup(id)
	if !ok {
		return schema.NewError(schema.ErrCodeNotFound, "loop not registered").WithLoop(id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.IsTerminal() {
		return schema.NewErrorf(schema.ErrCodeConflict, "loop is %s", e.state).WithLoop(id)
	}
	if reason == "" {
		reason = "cancelled"
	}
	e.state = schema.LoopStatusCancelled
	e.decision = Decision{ShouldExit: true, Reason: reason}
	e.lastSeen = r.runner.eval.Now()
	return r.runner.finish(logging.WithLoop(ctx, e.meta.WorkflowID, id), e.meta, e.state, reason, schema.ExitKindNone)
}

// Delete drops a loop without recording anything. It reports whether the
// loop was tracked.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.loops[id]
	delete(r.loops, id)
	return ok
}

// Evict removes loops untouched for longer than idle as of now. Loops still
// running are recorded as evicted. It returns the removed ids in order.
func (r *Registry) Evict(ctx context.Context, now time.Time, idle time.Duration) []string {
	r.mu.Lock()
	var stale []*entry
	for id, e := range r.loops {
		e.mu.Lock()
		if now.Sub(e.lastSeen) > idle {
			stale = append(stale, e)
			delete(r.loops, id)
		}
		e.mu.Unlock()
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(stale))
	for _, e := range stale {
		e.mu.Lock()
		if !e.state.IsTerminal() {
			e.state = schema.LoopStatusEvicted
			e.decision = Decision{ShouldExit: true, Reason: "evicted after idle timeout"}
			r.runner.abort(logging.WithLoop(ctx, e.meta.WorkflowID, e.meta.LoopID), e.meta, e.state, e.decision.Reason, schema.ExitKindNone)
		}
		ids = append(ids, e.meta.LoopID)
		e.mu.Unlock()
	}
	slices.Sort(ids)
	return ids
}

// Len is the number of tracked loops.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.loops)
}

func (r *Registry) lookup(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.loops[id]
	return e, ok
}
