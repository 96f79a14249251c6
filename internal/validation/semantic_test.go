package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albert-ai/loopguard/pkg/schema"
)

// mockCompiler implements ExpressionCompiler for tests.
type mockCompiler struct {
	broken map[string]bool
}

func (m *mockCompiler) Handles(expr string) bool {
	return strings.HasPrefix(expr, "cel:")
}

func (m *mockCompiler) Compile(expr string) error {
	if m.broken[expr] {
		return errors.New("syntax error")
	}
	return nil
}

func customConn(expr string) schema.Connection {
	return schema.Connection{
		ID: "c1", FromNodeID: "A", ToNodeID: "B",
		LoopConfig: &schema.LoopConfig{ExitConditions: []schema.LoopExitCondition{{Type: schema.ExitCustom, Value: expr}}},
	}
}

func TestSemantic_Valid(t *testing.T) {
	doc := &schema.WorkflowDocument{
		Nodes:       []schema.Node{{ID: "A"}, {ID: "B"}},
		Connections: []schema.Connection{{ID: "c1", FromNodeID: "A", ToNodeID: "B"}},
	}
	assert.True(t, validateSemantic(doc, nil).Valid())
}

func TestSemantic_DuplicateIDs(t *testing.T) {
	doc := &schema.WorkflowDocument{
		Nodes: []schema.Node{{ID: "A"}, {ID: "A"}, {ID: "B"}},
		Connections: []schema.Connection{
			{ID: "c1", FromNodeID: "A", ToNodeID: "B"},
			{ID: "c1", FromNodeID: "B", ToNodeID: "A"},
		},
	}
	result := validateSemantic(doc, nil)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "nodes[1].id", result.Errors[0].Path)
	assert.Equal(t, "connections[1].id", result.Errors[1].Path)
}

func TestSemantic_UnknownEndpoints(t *testing.T) {
	doc := &schema.WorkflowDocument{
		Nodes:       []schema.Node{{ID: "A"}},
		Connections: []schema.Connection{{ID: "c1", FromNodeID: "A", ToNodeID: "Z"}},
	}
	result := validateSemantic(doc, nil)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "connections[0].to_node_id", result.Errors[0].Path)
	assert.Contains(t, result.Errors[0].Message, `"Z"`)
}

func TestSemantic_ImplicitNodes(t *testing.T) {
	doc := &schema.WorkflowDocument{Connections: []schema.Connection{{ID: "c1", FromNodeID: "A", ToNodeID: "Z"}}}
	assert.True(t, validateSemantic(doc, nil).Valid())
}

func TestSemantic_ValueEqualsRequiresValue(t *testing.T) {
	doc := &schema.WorkflowDocument{Connections: []schema.Connection{{
		ID: "c1", FromNodeID: "A", ToNodeID: "B",
		LoopConfig: &schema.LoopConfig{ExitConditions: []schema.LoopExitCondition{{Type: schema.ExitValueEquals, Value: "  "}}},
	}}}
	result := validateSemantic(doc, nil)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "connections[0].loop_config.exit_conditions[0].value", result.Errors[0].Path)
}

func TestSemantic_CustomExpressions(t *testing.T) {
	compiler := &mockCompiler{broken: map[string]bool{"cel: iteration >": true}}

	cases := []struct {
		expr  string
		valid bool
	}{
		{"length > 100", true},
		{"contains 'done'", true},
		{"iteration >= 3", true},
		{"value < 0.5", true},
		{"cel: iteration > 2", true},
		{"cel: iteration >", false},
		{"looks finished", false},
		{"", false},
	}
	for _, tc := range cases {
		doc := &schema.WorkflowDocument{Connections: []schema.Connection{customConn(tc.expr)}}
		assert.Equal(t, tc.valid, validateSemantic(doc, compiler).Valid(), tc.expr)
	}
}

func TestSemantic_PrefixedWithoutCompiler(t *testing.T) {
	doc := &schema.WorkflowDocument{Connections: []schema.Connection{customConn("cel: true")}}
	result := validateSemantic(doc, nil)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeExpression, result.Errors[0].Code)
}

func TestSemantic_ConvergenceValueWarning(t *testing.T) {
	doc := &schema.WorkflowDocument{Connections: []schema.Connection{{
		ID: "c1", FromNodeID: "A", ToNodeID: "B",
		LoopConfig: &schema.LoopConfig{ExitConditions: []schema.LoopExitCondition{{Type: schema.ExitConvergence, Value: "x"}}},
	}}}
	result := validateSemantic(doc, nil)
	assert.True(t, result.Valid())
	assert.Len(t, result.Warnings, 1)
}
