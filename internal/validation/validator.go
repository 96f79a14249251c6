package validation

import "github.com/albert-ai/loopguard/pkg/schema"

// Validator checks workflow documents before loops are activated.
// Uses JSON Schema Draft 2020-12 for the structural stage.
type Validator interface {
	Validate(doc *schema.WorkflowDocument) *schema.ValidationResult
	ValidateRaw(data []byte) (*schema.WorkflowDocument, *schema.ValidationResult)
}

// ExpressionCompiler checks prefixed custom exit conditions.
// Satisfied by *expressions.ConditionEvaluator.
type ExpressionCompiler interface {
	Handles(expression string) bool
	Compile(expression string) error
}
