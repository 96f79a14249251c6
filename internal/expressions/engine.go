// Package expressions evaluates user-written exit conditions against the
// state of a running loop.
package expressions

import "context"

// Engine evaluates one expression language over a loop scope.
// Three implementations: CEL, Expr and GoJQ.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
