package schema

import (
	"cmp"
	"fmt"
	"slices"
)

// ValidationSeverity indicates whether an issue is an error or warning.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is a single validation problem with location context.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// ValidationResult aggregates all issues from the validation pipeline.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid returns true if there are no errors (warnings are acceptable).
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// AddError appends an error-severity issue.
func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityError,
	})
}

// AddWarning appends a warning-severity issue.
func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityWarning,
	})
}

// Merge combines another ValidationResult into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// HasCode reports whether any error or warning carries code.
func (r *ValidationResult) HasCode(code string) bool {
	for _, issue := range r.Issues() {
		if issue.Code == code {
			return true
		}
	}
	return false
}

// Issues returns errors followed by warnings.
func (r *ValidationResult) Issues() []ValidationIssue {
	out := make([]ValidationIssue, 0, len(r.Errors)+len(r.Warnings))
	out = append(out, r.Errors...)
	return append(out, r.Warnings...)
}

// Sort orders errors and warnings by path. Issues sharing a path keep
// the order the pipeline produced them in.
func (r *ValidationResult) Sort() {
	byPath := func(a, b ValidationIssue) int { return cmp.Compare(a.Path, b.Path) }
	slices.SortStableFunc(r.Errors, byPath)
	slices.SortStableFunc(r.Warnings, byPath)
}

// Summary is a one-line description such as "invalid: 2 errors, 1 warning".
func (r *ValidationResult) Summary() string {
	state := "valid"
	if !r.Valid() {
		state = "invalid"
	}
	return fmt.Sprintf("%s: %s, %s", state,
		plural(len(r.Errors), "error"), plural(len(r.Warnings), "warning"))
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// ToError converts the result to a LoopguardError if invalid, nil if valid.
// A single error keeps its own message prefixed with its path.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Errors[0].Message
	if r.Errors[0].Path != "" && r.Errors[0].Path != "/" {
		msg = r.Errors[0].Path + ": " + msg
	}
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(r.Errors))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
		})
}
