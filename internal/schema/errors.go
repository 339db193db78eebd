package schema

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"

	"github.com/mesh-intelligence/obay/pkg/types"
)

// ErrDefinitionNotFound is returned by Load when no schema file defines the
// requested kind.
var ErrDefinitionNotFound = errors.New("schema definition not found")

// Violation is a single schema failure.
type Violation struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationError reports why a document does not satisfy its kind's schema.
type ValidationError struct {
	Kind       string      `json:"kind"`
	Violations []Violation `json:"violations"`
}

// NewValidationError builds a ValidationError with a single violation.
func NewValidationError(kind, field, message string) *ValidationError {
	return &ValidationError{
		Kind:       kind,
		Violations: []Violation{{Field: field, Message: message}},
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.Field != "" {
			parts = append(parts, v.Field+": "+v.Message)
		} else {
			parts = append(parts, v.Message)
		}
	}
	return fmt.Sprintf("invalid %s: %s", e.Kind, strings.Join(parts, "; "))
}

func newValidationError(kind types.Kind, err error) *ValidationError {
	ve := &ValidationError{Kind: kind.Name}
	seen := make(map[Violation]bool)
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		v := Violation{
			Field:   fieldPath(kind, e.Path()),
			Message: fmt.Sprintf(format, args...),
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		ve.Violations = append(ve.Violations, v)
	}
	if len(ve.Violations) == 0 {
		ve.Violations = []Violation{{Message: err.Error()}}
	}
	return ve
}

// fieldPath drops the definition name CUE prefixes to error paths.
func fieldPath(kind types.Kind, p []string) string {
	if len(p) > 0 && p[0] == kind.Definition {
		p = p[1:]
	}
	return strings.Join(p, ".")
}
