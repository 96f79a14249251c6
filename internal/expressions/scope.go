package expressions

import (
	"encoding/json"
	"strings"

	"github.com/albert-ai/loopguard/internal/convergence"
)

// Scope variable names shared by every engine.
const (
	VarOutput        = "output"
	VarIteration     = "iteration"
	VarMaxIterations = "max_iterations"
	VarHistory       = "history"
	VarValue         = "value"
	VarHasValue      = "has_value"
	VarElapsedMs     = "elapsed_ms"

	// jqInputKey carries the document a jq program runs over.
	jqInputKey = "$input"
)

// LoopScope is the read-only view of a loop handed to custom conditions.
// History excludes Output.
type LoopScope struct {
	Output        string
	Iteration     int
	MaxIterations int
	History       []string
	ElapsedMs     int64
}

// Data returns the variable map used by the CEL and Expr engines.
func (s LoopScope) Data() map[string]any {
	value, ok := convergence.ExtractNumericValue(s.Output)

	history := make([]string, len(s.History))
	copy(history, s.History)

	return map[string]any{
		VarOutput:        s.Output,
		VarIteration:     int64(s.Iteration),
		VarMaxIterations: int64(s.MaxIterations),
		VarHistory:       history,
		VarValue:         value,
		VarHasValue:      ok,
		VarElapsedMs:     s.ElapsedMs,
	}
}

// JQData returns the jq input wrapped for GoJQEngine. When the output is a
// JSON document the program runs over it directly; otherwise it runs over
// a JSON-shaped copy of the scope.
func (s LoopScope) JQData() map[string]any {
	trimmed := strings.TrimSpace(s.Output)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var doc any
		if err := json.Unmarshal([]byte(trimmed), &doc); err == nil {
			return map[string]any{jqInputKey: doc}
		}
	}

	history := make([]any, len(s.History))
	for i, h := range s.History {
		history[i] = h
	}
	data := map[string]any{
		VarOutput:        s.Output,
		VarIteration:     s.Iteration,
		VarMaxIterations: s.MaxIterations,
		VarHistory:       history,
		VarElapsedMs:     s.ElapsedMs,
	}
	if v, ok := convergence.ExtractNumericValue(s.Output); ok {
		data[VarValue] = v
	}
	return map[string]any{jqInputKey: data}
}
