package validation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albert-ai/loopguard/internal/expressions"
	"github.com/albert-ai/loopguard/pkg/schema"
)

func TestDocumentValidator_ImplementsValidator(t *testing.T) {
	var _ Validator = (*DocumentValidator)(nil)
}

func newDV(t *testing.T) *DocumentValidator {
	t.Helper()
	conds, err := expressions.NewConditionEvaluator()
	require.NoError(t, err)
	dv, err := NewDocumentValidator(conds)
	require.NoError(t, err)
	return dv
}

func TestDocumentValidator_FullValid(t *testing.T) {
	back := edge("c-a", "C", "A")
	back.IsLoopEdge = true
	back.LoopConfig = &schema.LoopConfig{
		MaxIterations: 3,
		ExitConditions: []schema.LoopExitCondition{
			{Type: schema.ExitMaxIterations},
			{Type: schema.ExitCustom, Value: "cel: iteration > 1 && output.contains('done')"},
			{Type: schema.ExitCustom, Value: "length > 100"},
		},
	}
	doc := &schema.WorkflowDocument{Connections: []schema.Connection{edge("a-b", "A", "B"), edge("b-c", "B", "C"), back}}

	result := newDV(t).Validate(doc)
	assert.True(t, result.Valid(), "%+v", result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestDocumentValidator_NilDoc(t *testing.T) {
	result := newDV(t).Validate(nil)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "nil")
}

func TestDocumentValidator_StructuralFailShortCircuits(t *testing.T) {
	doc := &schema.WorkflowDocument{Connections: []schema.Connection{
		{ID: "", FromNodeID: "A", ToNodeID: "B"},
		{ID: "", FromNodeID: "B", ToNodeID: "A"},
	}}
	result := newDV(t).Validate(doc)
	require.False(t, result.Valid())
	for _, e := range result.Errors {
		assert.NotContains(t, e.Message, "duplicate connection id")
	}
	assert.Empty(t, result.Warnings, "loop stage skipped")
}

func TestDocumentValidator_SemanticErrorsSkipLoops(t *testing.T) {
	doc := &schema.WorkflowDocument{Connections: []schema.Connection{
		edge("c1", "A", "B"),
		edge("c1", "B", "A"),
	}}
	result := newDV(t).Validate(doc)
	require.False(t, result.Valid())
	assert.Empty(t, result.Warnings)
}

func TestDocumentValidator_BrokenCELExpression(t *testing.T) {
	c := edge("a-b", "A", "B")
	c.LoopConfig = &schema.LoopConfig{ExitConditions: []schema.LoopExitCondition{{Type: schema.ExitCustom, Value: "cel: iteration >"}}}
	result := newDV(t).Validate(&schema.WorkflowDocument{Connections: []schema.Connection{c}})
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeExpression, result.Errors[0].Code)
}

func TestDocumentValidator_ValidateRaw(t *testing.T) {
	raw := []byte(`{
		"id": "wf-1",
		"connections": [
			{"id": "a-b", "from_node_id": "A", "to_node_id": "B"},
			{"id": "b-a", "from_node_id": "B", "to_node_id": "A", "is_loop_edge": true,
			 "loop_config": {"max_iterations": 4, "exit_conditions": [{"type": "value_equals", "value": "done"}]}}
		]
	}`)
	doc, result := newDV(t).ValidateRaw(raw)
	require.True(t, result.Valid(), "%+v", result.Errors)
	require.NotNil(t, doc)
	assert.Equal(t, "wf-1", doc.ID)
	require.Len(t, doc.Connections, 2)
	assert.Equal(t, 4, doc.Connections[1].LoopConfig.MaxIterations)
}

func TestDocumentValidator_ValidateRawRejectsShape(t *testing.T) {
	doc, result := newDV(t).ValidateRaw([]byte(`{"connections": [{"id": 7}]}`))
	assert.Nil(t, doc)
	assert.False(t, result.Valid())
}

func TestDocumentValidator_ValidateDocumentError(t *testing.T) {
	err := newDV(t).ValidateDocument(&schema.WorkflowDocument{Connections: []schema.Connection{edge("c1", "A", "B"), edge("c1", "B", "C")}})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestDocumentValidator_Concurrent(t *testing.T) {
	dv := newDV(t)
	doc := &schema.WorkflowDocument{Connections: []schema.Connection{edge("a-b", "A", "B")}}

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, dv.Validate(doc).Valid())
		}()
	}
	wg.Wait()
}
