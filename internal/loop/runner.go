package loop

import (
	"context"
	"errors"
	"log/slog"

	"github.com/albert-ai/loopguard/internal/convergence"
	"github.com/albert-ai/loopguard/internal/logging"
	"github.com/albert-ai/loopguard/internal/store"
	"github.com/albert-ai/loopguard/internal/streaming"
	"github.com/albert-ai/loopguard/pkg/schema"
)

// IterationFunc produces the output of one loop iteration. iteration is
// 1-based; previous is the prior output, empty on the first call.
type IterationFunc func(ctx context.Context, iteration int, previous string) (string, error)

// Result is the outcome of a completed Run.
type Result struct {
	LoopID     string            `json:"loop_id"`
	Status     schema.LoopStatus `json:"status"`
	Iterations int               `json:"iterations"`
	Reason     string            `json:"reason,omitempty"`
	Kind       schema.ExitKind   `json:"kind,omitempty"`
	LastOutput string            `json:"last_output"`
}

// RunnerDeps are the collaborators of a Runner. Store, Hub and Observer
// are optional.
type RunnerDeps struct {
	Evaluator *Evaluator
	Store     store.Store
	Hub       streaming.EventHub
	Observer  Observer
	Logger    *slog.Logger
}

// Runner drives loops one iteration at a time, persisting each step and
// publishing lifecycle events.
type Runner struct {
	eval     *Evaluator
	store    store.Store
	hub      streaming.EventHub
	observer Observer
	logger   *slog.Logger
}

// NewRunner creates a Runner. A nil Evaluator gets the defaults.
func NewRunner(deps RunnerDeps) *Runner {
	r := &Runner{
		eval:     deps.Evaluator,
		store:    deps.Store,
		hub:      deps.Hub,
		observer: deps.Observer,
		logger:   deps.Logger,
	}
	if r.eval == nil {
		r.eval = NewEvaluator()
	}
	if r.observer == nil {
		r.observer = nopObserver{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Evaluator returns the runner's evaluator.
func (r *Runner) Evaluator() *Evaluator { return r.eval }

// Run executes fn until the evaluator says stop or ctx is cancelled.
func (r *Runner) Run(ctx context.Context, meta *Metadata, fn IterationFunc) (*Result, error) {
	ctx = logging.WithLoop(ctx, meta.WorkflowID, meta.LoopID)
	if err := r.begin(ctx, meta); err != nil {
		return nil, err
	}

	var last string
	for {
		if err := ctx.Err(); err != nil {
			return r.cancelled(ctx, meta, last, err)
		}

		out, err := fn(ctx, meta.CurrentIteration+1, last)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return r.cancelled(ctx, meta, last, ctxErr)
			}
			r.abort(context.WithoutCancel(ctx), meta, schema.LoopStatusFailed, err.Error(), schema.ExitKindNone)
			return nil, schema.NewErrorf(schema.ErrCodeExecution, "iteration %d failed", meta.CurrentIteration+1).
				WithLoop(meta.LoopID).WithCause(err)
		}
		last = out

		// A finished iteration is recorded even when ctx ended while it ran.
		d, err := r.advance(context.WithoutCancel(ctx), meta, out)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return r.cancelled(ctx, meta, last, ctxErr)
		}
		if err != nil {
			r.abort(context.WithoutCancel(ctx), meta, schema.LoopStatusFailed, err.Error(), schema.ExitKindNone)
			return nil, err
		}
		if d.ShouldExit {
			if err := r.finish(ctx, meta, schema.LoopStatusExited, d.Reason, d.Kind); err != nil {
				return nil, err
			}
			return &Result{
				LoopID:     meta.LoopID,
				Status:     schema.LoopStatusExited,
				Iterations: meta.CurrentIteration,
				Reason:     d.Reason,
				Kind:       d.Kind,
				LastOutput: out,
			}, nil
		}
	}
}

func (r *Runner) cancelled(ctx context.Context, meta *Metadata, last string, cause error) (*Result, error) {
	reason := "cancelled"
	if errors.Is(cause, context.DeadlineExceeded) {
		reason = "deadline exceeded"
	}
	r.abort(context.WithoutCancel(ctx), meta, schema.LoopStatusCancelled, reason, schema.ExitKindNone)
	return &Result{
			LoopID:     meta.LoopID,
			Status:     schema.LoopStatusCancelled,
			Iterations: meta.CurrentIteration,
			Reason:     reason,
			LastOutput: last,
		}, schema.NewError(schema.ErrCodeCancelled, "loop "+reason).
			WithLoop(meta.LoopID).WithCause(cause)
}

// begin records a new loop run and announces it.
func (r *Runner) begin(ctx context.Context, meta *Metadata) error {
	meta.ensureHistory()
	if r.store != nil {
		err := r.store.CreateLoopRun(ctx, &store.LoopRun{
			ID:             meta.LoopID,
			WorkflowID:     meta.WorkflowID,
			Nodes:          meta.Nodes,
			EntryNode:      meta.EntryNode,
			ExitNode:       meta.ExitNode,
			MaxIterations:  meta.MaxIterations,
			TimeoutMs:      meta.Timeout.Milliseconds(),
			ExitConditions: meta.ExitConditions,
			Status:         schema.LoopStatusRunning,
			StartedAt:      meta.StartTime,
		})
		if err != nil {
			return storeError(meta, "create loop run", err)
		}
	}
	r.observer.LoopStarted(meta.WorkflowID)
	r.publish(ctx, meta, schema.EventLoopStarted, map[string]any{
		"nodes":          meta.Nodes,
		"max_iterations": meta.MaxIterations,
		"timeout_ms":     meta.Timeout.Milliseconds(),
	})
	logging.LogWith(ctx, r.logger).Info("loop started",
		slog.Int("nodes", len(meta.Nodes)),
		slog.Int("max_iterations", meta.MaxIterations),
	)
	return nil
}

// advance accounts for one finished iteration: the counter moves, the
// evaluator runs against the prior history, the iteration is stored, then
// output joins history. When the store rejects the iteration meta is left
// as it was, so the same output can be recorded again.
func (r *Runner) advance(ctx context.Context, meta *Metadata, output string) (Decision, error) {
	meta.ensureHistory()
	similarity, changeRate := 0.0, 1.0
	if prev, ok := meta.History.Last(); ok {
		similarity = convergence.StringSimilarity(prev, output)
		changeRate = 1 - similarity
	}

	meta.CurrentIteration++
	d := r.eval.ShouldExit(ctx, meta, output)

	if r.store != nil {
		err := r.store.AppendIteration(ctx, &store.Iteration{
			LoopID:     meta.LoopID,
			Iteration:  meta.CurrentIteration,
			Output:     output,
			Similarity: similarity,
			ChangeRate: changeRate,
		})
		if err != nil {
			meta.CurrentIteration--
			return Decision{}, storeError(meta, "append iteration", err)
		}
	}
	meta.History.Append(output)

	r.observer.IterationRecorded(meta.WorkflowID, similarity)
	r.publish(ctx, meta, schema.EventLoopIterCompleted, map[string]any{
		"similarity":  similarity,
		"change_rate": changeRate,
		"should_exit": d.ShouldExit,
	})
	logging.LogWith(ctx, r.logger).Debug("loop iteration completed",
		slog.Int("iteration", meta.CurrentIteration),
		slog.Float64("similarity", similarity),
		slog.Bool("should_exit", d.ShouldExit),
	)
	return d, nil
}

// finish records a loop that stopped on its own.
func (r *Runner) finish(ctx context.Context, meta *Metadata, status schema.LoopStatus, reason string, kind schema.ExitKind) error {
	r.observer.LoopFinished(meta.WorkflowID, status, kind, meta.CurrentIteration, r.eval.Now().Sub(meta.StartTime))
	if r.store != nil {
		err := r.store.CompleteLoopRun(ctx, meta.LoopID, store.LoopRunCompletion{
			Status:     status,
			ExitReason: reason,
			ExitKind:   kind,
			Iterations: meta.CurrentIteration,
			At:         r.eval.Now(),
		})
		if err != nil {
			return storeError(meta, "complete loop run", err)
		}
	}
	r.publish(ctx, meta, eventFor(status), map[string]any{
		"status": string(status),
		"reason": reason,
		"kind":   string(kind),
	})
	logging.LogWith(ctx, r.logger).Info("loop finished",
		slog.String("status", string(status)),
		slog.String("reason", reason),
		slog.Int("iterations", meta.CurrentIteration),
	)
	return nil
}

// abort is finish for paths that already carry an error; store failures
// are only logged.
func (r *Runner) abort(ctx context.Context, meta *Metadata, status schema.LoopStatus, reason string, kind schema.ExitKind) {
	if err := r.finish(ctx, meta, status, reason, kind); err != nil {
		logging.LogWith(ctx, r.logger).Error("failed to record loop end",
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Runner) publish(ctx context.Context, meta *Metadata, eventType string, payload map[string]any) {
	if r.hub == nil {
		return
	}
	err := r.hub.Publish(ctx, streaming.StreamEvent{
		WorkflowID: meta.WorkflowID,
		LoopID:     meta.LoopID,
		EventType:  eventType,
		Iteration:  meta.CurrentIteration,
		Payload:    payload,
		Timestamp:  r.eval.Now().UTC(),
	})
	if err != nil {
		logging.LogWith(ctx, r.logger).Warn("failed to publish loop event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
	}
}

func eventFor(status schema.LoopStatus) string {
	switch status {
	case schema.LoopStatusCancelled:
		return schema.EventLoopCancelled
	case schema.LoopStatusEvicted:
		return schema.EventLoopEvicted
	default:
		return schema.EventLoopExited
	}
}

func storeError(meta *Metadata, op string, err error) error {
	var lgErr *schema.LoopguardError
	if errors.As(err, &lgErr) {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %v", op, err).WithLoop(meta.LoopID).WithCause(err)
}
