package dispatch

import (
	"errors"
	"fmt"

	"github.com/golovatskygroup/mcp-toolkit/internal/apitool"
	"github.com/golovatskygroup/mcp-toolkit/internal/schema"
	"github.com/golovatskygroup/mcp-toolkit/internal/script"
)

// NotFoundError is returned when no builtin or dispatchable custom tool has
// the requested name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found", e.Name)
}

// UnavailableError is returned for a custom tool that exists in the store but
// failed to compile.
type UnavailableError struct {
	Name  string
	Cause error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("tool %q is not available: %v", e.Name, e.Cause)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

// errorClass labels a failure for logs.
func errorClass(err error) string {
	var (
		verr   *schema.ValidationError
		nf     *NotFoundError
		unav   *UnavailableError
		serr   *script.Error
		status *apitool.StatusError
	)
	switch {
	case errors.As(err, &verr):
		return "validation"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &unav), errors.Is(err, apitool.ErrMissingURL):
		return "configuration"
	case errors.As(err, &serr):
		return "script"
	case errors.As(err, &status):
		return "downstream"
	default:
		return "internal"
	}
}
