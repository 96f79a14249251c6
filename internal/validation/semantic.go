package validation

import (
	"fmt"
	"strings"

	"github.com/albert-ai/loopguard/internal/loop"
	"github.com/albert-ai/loopguard/pkg/schema"
)

// validateSemantic checks what the schema cannot: unique ids, endpoints
// that name listed nodes, and exit conditions that carry what they need.
func validateSemantic(doc *schema.WorkflowDocument, exprs ExpressionCompiler) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodeIDs := make(map[string]bool, len(doc.Nodes))
	for i, n := range doc.Nodes {
		if nodeIDs[n.ID] {
			result.AddError(fmt.Sprintf("nodes[%d].id", i), schema.ErrCodeValidation,
				fmt.Sprintf("duplicate node id %q", n.ID))
		}
		nodeIDs[n.ID] = true
	}

	connIDs := make(map[string]bool, len(doc.Connections))
	for i, c := range doc.Connections {
		path := fmt.Sprintf("connections[%d]", i)
		if connIDs[c.ID] {
			result.AddError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate connection id %q", c.ID))
		}
		connIDs[c.ID] = true

		// Without a node list, endpoints are implicit.
		if len(doc.Nodes) > 0 {
			if !nodeIDs[c.FromNodeID] {
				result.AddError(path+".from_node_id", schema.ErrCodeValidation,
					fmt.Sprintf("references non-existent node %q", c.FromNodeID))
			}
			if !nodeIDs[c.ToNodeID] {
				result.AddError(path+".to_node_id", schema.ErrCodeValidation,
					fmt.Sprintf("references non-existent node %q", c.ToNodeID))
			}
		}

		if c.LoopConfig != nil {
			validateExitConditions(c.LoopConfig.ExitConditions, path+".loop_config", exprs, result)
		}
	}

	return result
}

func validateExitConditions(conds []schema.LoopExitCondition, path string, exprs ExpressionCompiler, result *schema.ValidationResult) {
	for j, cond := range conds {
		cpath := fmt.Sprintf("%s.exit_conditions[%d]", path, j)
		value := strings.TrimSpace(cond.Value)

		switch cond.Type {
		case schema.ExitValueEquals:
			if value == "" {
				result.AddError(cpath+".value", schema.ErrCodeValidation,
					"value_equals condition requires a target value")
			}
		case schema.ExitCustom:
			if value == "" {
				result.AddError(cpath+".value", schema.ErrCodeValidation,
					"custom condition requires an expression")
				continue
			}
			validateCustomExpression(value, cpath+".value", exprs, result)
		case schema.ExitConvergence:
			if cond.Value != "" {
				result.AddWarning(cpath+".value", schema.ErrCodeValidation,
					"value is ignored by convergence conditions")
			}
		}
	}
}

func validateCustomExpression(expr, path string, exprs ExpressionCompiler, result *schema.ValidationResult) {
	if loop.IsBuiltinCondition(expr) {
		return
	}
	if exprs != nil && exprs.Handles(expr) {
		if err := exprs.Compile(expr); err != nil {
			result.AddError(path, schema.ErrCodeExpression,
				fmt.Sprintf("expression does not compile: %s", err.Error()))
		}
		return
	}
	result.AddError(path, schema.ErrCodeExpression,
		fmt.Sprintf("unrecognized custom expression %q", expr))
}
