package validation

import (
	"encoding/json"

	"github.com/albert-ai/loopguard/pkg/schema"
)

// DocumentValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (ids, endpoints, exit conditions)
// 3. Loops (cycle analysis, warnings only)
type DocumentValidator struct {
	jsonSchema *JSONSchemaValidator
	exprs      ExpressionCompiler
}

// NewDocumentValidator creates a DocumentValidator. exprs may be nil, in
// which case only the built-in custom grammar is accepted.
func NewDocumentValidator(exprs ExpressionCompiler) (*DocumentValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &DocumentValidator{jsonSchema: jsv, exprs: exprs}, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural errors short-circuit the later stages.
func (dv *DocumentValidator) Validate(doc *schema.WorkflowDocument) *schema.ValidationResult {
	if doc == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow document is nil")
		return r
	}

	result := structuralResult(dv.jsonSchema.ValidateDocument(doc))
	if !result.Valid() {
		return result
	}
	return dv.analyze(doc, result)
}

// ValidateRaw validates and decodes a JSON document. The returned document
// is nil when the input is not structurally valid.
func (dv *DocumentValidator) ValidateRaw(data []byte) (*schema.WorkflowDocument, *schema.ValidationResult) {
	result := structuralResult(dv.jsonSchema.ValidateRaw(data))
	if !result.Valid() {
		return nil, result
	}

	var doc schema.WorkflowDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return nil, result
	}
	return &doc, dv.analyze(&doc, result)
}

// ValidateDocument returns the pipeline result as an error.
func (dv *DocumentValidator) ValidateDocument(doc *schema.WorkflowDocument) error {
	return dv.Validate(doc).ToError()
}

func (dv *DocumentValidator) analyze(doc *schema.WorkflowDocument, result *schema.ValidationResult) *schema.ValidationResult {
	result.Merge(validateSemantic(doc, dv.exprs))
	if result.Valid() {
		result.Merge(validateLoops(doc))
	}
	return result
}

// structuralResult converts a JSON Schema error into a ValidationResult.
func structuralResult(err error) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if err == nil {
		return result
	}

	lgErr, ok := err.(*schema.LoopguardError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}
	if violations, ok := lgErr.Details["violations"].([]string); ok {
		for _, v := range violations {
			result.AddError("/", schema.ErrCodeValidation, v)
		}
		return result
	}
	result.AddError("/", schema.ErrCodeValidation, lgErr.Message)
	return result
}
