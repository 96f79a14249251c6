package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/albert-ai/loopguard/pkg/schema"
)

const workflowSchemaURL = "https://loopguard.albert.dev/schemas/workflow.json"

// workflowSchemaJSON is the JSON Schema for WorkflowDocument validation.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://loopguard.albert.dev/schemas/workflow.json",
  "type": "object",
  "required": ["connections"],
  "properties": {
    "id": { "type": "string" },
    "name": { "type": "string" },
    "nodes": {
      "type": "array",
      "items": { "$ref": "#/$defs/node" }
    },
    "connections": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/connection" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "kind": { "type": "string", "enum": ["agent", "function", "tool"] },
        "label": { "type": "string" },
        "config": {}
      },
      "additionalProperties": false
    },
    "connection": {
      "type": "object",
      "required": ["id", "from_node_id", "to_node_id"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "from_node_id": { "type": "string", "minLength": 1 },
        "to_node_id": { "type": "string", "minLength": 1 },
        "is_loop_edge": { "type": "boolean" },
        "loop_config": { "$ref": "#/$defs/loop_config" }
      },
      "additionalProperties": false
    },
    "loop_config": {
      "type": "object",
      "properties": {
        "max_iterations": { "type": "integer", "minimum": 0 },
        "exit_conditions": {
          "type": "array",
          "items": { "$ref": "#/$defs/exit_condition" }
        },
        "convergence_threshold": { "type": "number" },
        "timeout_seconds": { "type": "integer", "minimum": 0 }
      },
      "additionalProperties": false
    },
    "exit_condition": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {
          "type": "string",
          "enum": ["max_iterations", "convergence", "value_equals", "custom"]
        },
        "threshold": { "type": "number" },
        "value": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator checks the shape of workflow documents.
// It is safe for concurrent use.
type JSONSchemaValidator struct {
	workflowSchema *jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with the workflow schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource(workflowSchemaURL, schemaDoc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}

	wfSchema, err := c.Compile(workflowSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}
	return &JSONSchemaValidator{workflowSchema: wfSchema}, nil
}

// ValidateDocument validates a WorkflowDocument against the workflow JSON Schema.
func (v *JSONSchemaValidator) ValidateDocument(doc *schema.WorkflowDocument) error {
	if doc == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow document is nil")
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow document").WithCause(err)
	}
	return v.ValidateRaw(b)
}

// ValidateRaw validates raw JSON before it is decoded, so type mismatches
// are reported with their location instead of as a decode error.
func (v *JSONSchemaValidator) ValidateRaw(data []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow document is not valid JSON").WithCause(err)
	}
	if err := v.workflowSchema.Validate(inst); err != nil {
		return toLoopguardError(err)
	}
	return nil
}

// toLoopguardError converts a jsonschema.ValidationError into a LoopguardError
// listing every leaf violation.
func toLoopguardError(err error) *schema.LoopguardError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
