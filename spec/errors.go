package spec

import "fmt"

// Problem classifies a ValidationError.
type Problem string

const (
	UndefinedField    Problem = "undefined field"
	UndefinedParam    Problem = "undefined parameter"
	DuplicateParam    Problem = "duplicate parameter"
	InvalidDefinition Problem = "invalid definition"
)

// ValidationError reports a spec that references something it never defines.
// It is returned synchronously by Build and DeriveAggregateOverlay.
type ValidationError struct {
	Problem Problem
	Name    string // the field or parameter, when there is one
	Where   string // e.g. "transform[0] filter", "layer[1].encoding.color"
	Detail  string
}

func (e *ValidationError) Error() string {
	switch e.Problem {
	case InvalidDefinition:
		return fmt.Sprintf("invalid spec at %s: %s", e.Where, e.Detail)
	default:
		return fmt.Sprintf("%s %q at %s", e.Problem, e.Name, e.Where)
	}
}

func undefinedField(name, where string) error {
	return &ValidationError{Problem: UndefinedField, Name: name, Where: where}
}

func undefinedParam(name, where string) error {
	return &ValidationError{Problem: UndefinedParam, Name: name, Where: where}
}

func invalid(where, detail string) error {
	return &ValidationError{Problem: InvalidDefinition, Where: where, Detail: detail}
}
