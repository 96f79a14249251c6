package loop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/albert-ai/loopguard/internal/convergence"
	"github.com/albert-ai/loopguard/internal/expressions"
	"github.com/albert-ai/loopguard/internal/logging"
	"github.com/albert-ai/loopguard/pkg/schema"
)

// Decision is the evaluator's verdict after one iteration.
type Decision struct {
	ShouldExit bool            `json:"should_exit"`
	Reason     string          `json:"reason"`
	Kind       schema.ExitKind `json:"kind,omitempty"`
}

func exit(kind schema.ExitKind, format string, args ...any) Decision {
	return Decision{ShouldExit: true, Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Evaluator decides whether a loop should stop after its latest output.
// Checks run in a fixed order and the first hit wins: timeout, max
// iterations, then each configured exit condition in list order.
type Evaluator struct {
	logger     *slog.Logger
	now        func() time.Time
	conditions *expressions.ConditionEvaluator
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithLogger sets the logger used for condition failures.
func WithLogger(l *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) { e.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

// WithConditions enables prefixed custom conditions (cel:, expr:, jq:).
func WithConditions(c *expressions.ConditionEvaluator) EvaluatorOption {
	return func(e *Evaluator) { e.conditions = c }
}

// NewEvaluator creates an Evaluator. Without WithConditions only the
// built-in custom grammar is understood.
func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the evaluator's clock reading.
func (e *Evaluator) Now() time.Time { return e.now() }

// ShouldExit evaluates meta after an iteration produced output. meta's
// history must not yet contain output. It never panics and never fails:
// a broken condition is logged and counts as not met.
func (e *Evaluator) ShouldExit(ctx context.Context, meta *Metadata, output string) Decision {
	elapsed := e.now().Sub(meta.StartTime)
	if meta.Timeout > 0 && elapsed > meta.Timeout {
		return exit(schema.ExitKindTimeout, "Timeout reached after %ds", int64(elapsed/time.Second))
	}
	if meta.MaxIterations > 0 && meta.CurrentIteration >= meta.MaxIterations {
		return exit(schema.ExitKindMaxIterations, "Max iterations reached (%d)", meta.MaxIterations)
	}

	for i, cond := range meta.ExitConditions {
		if d := e.evalCondition(ctx, meta, cond, output, elapsed, i); d.ShouldExit {
			return d
		}
	}
	return Decision{}
}

func (e *Evaluator) evalCondition(ctx context.Context, meta *Metadata, cond schema.LoopExitCondition, output string, elapsed time.Duration, index int) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogWith(ctx, e.logger).Error("exit condition panicked",
				slog.Int("condition", index),
				slog.String("type", string(cond.Type)),
				slog.Any("panic", r),
			)
			d = Decision{}
		}
	}()

	switch cond.Type {
	case schema.ExitMaxIterations:
		return Decision{}
	case schema.ExitConvergence:
		return e.evalConvergence(meta, cond, output)
	case schema.ExitValueEquals:
		return evalValueEquals(cond.Value, output)
	case schema.ExitCustom:
		return e.evalCustom(ctx, meta, cond.Value, output, elapsed)
	default:
		logging.LogWith(ctx, e.logger).Warn("unknown exit condition type",
			slog.Int("condition", index),
			slog.String("type", string(cond.Type)),
		)
		return Decision{}
	}
}

func (e *Evaluator) evalConvergence(meta *Metadata, cond schema.LoopExitCondition, output string) Decision {
	threshold := convergence.DefaultThreshold
	switch {
	case cond.Threshold != nil:
		threshold = *cond.Threshold
	case meta.ConvergenceThreshold != nil:
		threshold = *meta.ConvergenceThreshold
	}

	history := append(meta.History.Values(), output)
	report := convergence.Check(history, threshold, convergence.DefaultWindow)
	switch {
	case report.Converged:
		return exit(schema.ExitKindConverged, "Output converged (%.1f%% similarity)", report.Similarity*100)
	case report.Oscillating:
		return exit(schema.ExitKindOscillating, "Oscillation detected between recurring outputs")
	}
	return Decision{}
}

func evalValueEquals(value, output string) Decision {
	target := strings.ToLower(strings.TrimSpace(value))
	if target == "" {
		return Decision{}
	}
	got := strings.ToLower(strings.TrimSpace(output))
	switch {
	case got == target:
		return exit(schema.ExitKindValueEquals, "Output matches target value %q", strings.TrimSpace(value))
	case strings.Contains(got, target):
		return exit(schema.ExitKindValueContains, "Output contains target value %q", strings.TrimSpace(value))
	}
	return Decision{}
}

func (e *Evaluator) evalCustom(ctx context.Context, meta *Metadata, expression, output string, elapsed time.Duration) Decision {
	log := logging.LogWith(ctx, e.logger)

	if e.conditions != nil && e.conditions.Handles(expression) {
		ok, err := e.conditions.Evaluate(ctx, expression, expressions.LoopScope{
			Output:        output,
			Iteration:     meta.CurrentIteration,
			MaxIterations: meta.MaxIterations,
			History:       meta.History.Values(),
			ElapsedMs:     elapsed.Milliseconds(),
		})
		if err != nil {
			log.Warn("custom exit condition failed",
				slog.String("expression", expression),
				slog.String("error", err.Error()),
			)
			return Decision{}
		}
		if ok {
			return exit(schema.ExitKindCustom, "Custom condition met: %s", strings.TrimSpace(expression))
		}
		return Decision{}
	}

	res := evalCustom(expression, output, meta.CurrentIteration)
	if !res.recognized {
		log.Warn("unrecognized custom exit condition", slog.String("expression", expression))
		return Decision{}
	}
	if res.matched {
		return exit(schema.ExitKindCustom, "Custom condition met: %s", strings.TrimSpace(expression))
	}
	return Decision{}
}
