package expressions

import (
	"context"
	"fmt"
	"strings"

	"github.com/albert-ai/loopguard/pkg/schema"
)

// ConditionEvaluator routes prefixed custom exit conditions ("cel:",
// "expr:", "jq:") to the matching engine.
type ConditionEvaluator struct {
	engines map[string]Engine
}

// NewConditionEvaluator builds an evaluator with all three engines.
func NewConditionEvaluator() (*ConditionEvaluator, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return NewConditionEvaluatorWith(celEngine, NewExprEngine(), NewGoJQEngine()), nil
}

// NewConditionEvaluatorWith builds an evaluator from explicit engines, keyed by Name.
func NewConditionEvaluatorWith(engines ...Engine) *ConditionEvaluator {
	m := make(map[string]Engine, len(engines))
	for _, e := range engines {
		m[e.Name()] = e
	}
	return &ConditionEvaluator{engines: m}
}

// SplitPrefix separates "cel: iteration > 2" into ("cel", "iteration > 2").
// ok is false when the expression has no recognised engine prefix.
func SplitPrefix(expression string) (engine, body string, ok bool) {
	trimmed := strings.TrimSpace(expression)
	idx := strings.Index(trimmed, ":")
	if idx <= 0 {
		return "", "", false
	}
	name := strings.ToLower(strings.TrimSpace(trimmed[:idx]))
	switch name {
	case "cel", "expr", "jq":
		return name, strings.TrimSpace(trimmed[idx+1:]), true
	}
	return "", "", false
}

// Handles reports whether expression is routed to an engine.
func (c *ConditionEvaluator) Handles(expression string) bool {
	name, _, ok := SplitPrefix(expression)
	if !ok {
		return false
	}
	_, registered := c.engines[name]
	return registered
}

// Evaluate runs a prefixed expression against scope. Only a boolean true
// result is a match; any other value is an error.
func (c *ConditionEvaluator) Evaluate(ctx context.Context, expression string, scope LoopScope) (bool, error) {
	name, body, ok := SplitPrefix(expression)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeExpression, "expression %q has no engine prefix", expression)
	}
	engine, registered := c.engines[name]
	if !registered {
		return false, schema.NewErrorf(schema.ErrCodeExpression, "engine %q is not available", name)
	}

	data := scope.Data()
	if name == "jq" {
		data = scope.JQData()
	}

	out, err := engine.Evaluate(ctx, body, data)
	if err != nil {
		return false, err
	}

	matched, isBool := out.(bool)
	if !isBool {
		return false, schema.NewErrorf(schema.ErrCodeExpression,
			"%s condition %q must evaluate to bool, got %s", name, body, typeName(out))
	}
	return matched, nil
}

// Compile checks that a prefixed expression parses, without running it.
// Used by document validation.
func (c *ConditionEvaluator) Compile(expression string) error {
	name, body, ok := SplitPrefix(expression)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeExpression, "expression %q has no engine prefix", expression)
	}
	switch e := c.engines[name].(type) {
	case *CELEngine:
		_, err := e.getOrCompile(body)
		return err
	case *ExprEngine:
		_, err := e.getOrCompile(body, LoopScope{}.Data())
		return err
	case *GoJQEngine:
		_, err := e.getOrCompile(body)
		return err
	case nil:
		return schema.NewErrorf(schema.ErrCodeExpression, "engine %q is not available", name)
	default:
		return nil
	}
}

func typeName(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
