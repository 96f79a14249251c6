package expressions

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/albert-ai/loopguard/pkg/schema"
)

// CELEngine implements Engine using Google's Common Expression Language.
// Thread-safe: compiled programs are cached and reused across goroutines.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine creates a CEL engine whose environment declares the loop scope:
//   - output:         string
//   - iteration:      int
//   - max_iterations: int
//   - history:        list(string), previous outputs
//   - value:          double, last number in output (0 when has_value is false)
//   - has_value:      bool
//   - elapsed_ms:     int
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarOutput, cel.StringType),
		cel.Variable(VarIteration, cel.IntType),
		cel.Variable(VarMaxIterations, cel.IntType),
		cel.Variable(VarHistory, cel.ListType(cel.StringType)),
		cel.Variable(VarValue, cel.DoubleType),
		cel.Variable(VarHasValue, cel.BoolType),
		cel.Variable(VarElapsedMs, cel.IntType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEngine{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return "cel"
}

// Evaluate compiles (or retrieves from cache) a CEL expression and evaluates
// it against data, normally produced by LoopScope.Data.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeExpression, "empty CEL expression")
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.ContextEval(ctx, buildActivation(data))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"CEL evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return out.Value(), nil
}

func (e *CELEngine) getOrCompile(expression string) (cel.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"CEL compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}

	prg, err := e.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"CEL program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = prg
	return prg, nil
}

// buildActivation fills in zero values for missing variables so partially
// populated scopes do not fail with "no such attribute".
func buildActivation(data map[string]any) map[string]any {
	activation := map[string]any{
		VarOutput:        "",
		VarIteration:     int64(0),
		VarMaxIterations: int64(0),
		VarHistory:       []string{},
		VarValue:         0.0,
		VarHasValue:      false,
		VarElapsedMs:     int64(0),
	}
	for k, v := range data {
		if _, declared := activation[k]; declared && v != nil {
			activation[k] = v
		}
	}
	return activation
}

var _ Engine = (*CELEngine)(nil)
