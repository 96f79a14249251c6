package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExprEngine(t *testing.T) {
	e := NewExprEngine()
	assert.Equal(t, "expr", e.Name())
}

func TestExpr_Contains(t *testing.T) {
	e := NewExprEngine()
	out, err := e.Evaluate(context.Background(), `output contains "score"`, sampleScope().Data())
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestExpr_HistoryHelpers(t *testing.T) {
	e := NewExprEngine()
	scope := LoopScope{Output: "same", History: []string{"same", "other", "same"}}

	out, err := e.Evaluate(context.Background(), `count(history, # == output) >= 2`, scope.Data())
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestExpr_NonBoolRejectedAtCompile(t *testing.T) {
	e := NewExprEngine()
	_, err := e.Evaluate(context.Background(), `iteration + 1`, sampleScope().Data())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expr compile error")
}

func TestExpr_EmptyExpression(t *testing.T) {
	_, err := NewExprEngine().Evaluate(context.Background(), "", nil)
	require.Error(t, err)
}

func TestExpr_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExprEngine().Evaluate(ctx, "true", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExpr_Caching(t *testing.T) {
	e := NewExprEngine()
	for i := 0; i < 3; i++ {
		_, err := e.Evaluate(context.Background(), "iteration > 1", sampleScope().Data())
		require.NoError(t, err)
	}
	assert.Len(t, e.cache, 1)
}
