package schema

import "fmt"

// ErrorKind classifies a ValidationError.
type ErrorKind string

const (
	MissingRequired ErrorKind = "missing_required"
	TypeMismatch    ErrorKind = "type_mismatch"
	OutOfRange      ErrorKind = "out_of_range"
	EnumMismatch    ErrorKind = "enum_mismatch"
)

// ValidationError reports an argument that does not satisfy its parameter.
type ValidationError struct {
	Param  string
	Kind   ErrorKind
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Kind == MissingRequired {
		return fmt.Sprintf("missing required parameter %q", e.Param)
	}
	if e.Param == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("invalid parameter %q (%s): %s", e.Param, e.Kind, e.Detail)
}

func invalid(kind ErrorKind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
