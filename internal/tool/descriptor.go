// Package tool defines custom tool descriptors and the contract of the store
// that persists them.
package tool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golovatskygroup/mcp-toolkit/internal/schema"
)

// Kind selects how a tool is executed.
type Kind string

const (
	KindBuiltin Kind = "builtin"
	KindScript  Kind = "script"
	KindAPI     Kind = "api"
)

// ErrNotFound is returned by stores when a named descriptor does not exist.
var ErrNotFound = errors.New("tool not found")

const maxNameLength = 64

// API is the outbound request template of an api tool.
type API struct {
	URL     string            `json:"url" yaml:"url"`
	Method  string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Descriptor is the declarative definition of a custom tool.
type Descriptor struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Kind        Kind           `json:"kind" yaml:"kind"`
	BodySchema  *schema.Schema `json:"body_schema,omitempty" yaml:"body_schema,omitempty"`
	QuerySchema *schema.Schema `json:"query_schema,omitempty" yaml:"query_schema,omitempty"`
	Script      string         `json:"script,omitempty" yaml:"script,omitempty"`
	API         *API           `json:"api,omitempty" yaml:"api,omitempty"`
}

// Store persists custom descriptors. List must reflect every Upsert and
// Delete that returned successfully.
type Store interface {
	List(ctx context.Context) ([]*Descriptor, error)
	Upsert(ctx context.Context, d *Descriptor) error
	Delete(ctx context.Context, name string) error
}

// Method returns the HTTP method of an api tool, GET when unset.
func (d *Descriptor) Method() string {
	if d.API == nil || d.API.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(d.API.Method)
}

// InputSchema is the combined schema callers must satisfy: the body schema,
// plus the query schema for api tools.
func (d *Descriptor) InputSchema() schema.Schema {
	if d.Kind == KindAPI {
		return schema.Merge(d.BodySchema, d.QuerySchema)
	}
	return schema.Merge(d.BodySchema)
}

// Validate checks the structural rules a descriptor must satisfy before it is
// stored. Schema contents are checked later by the compiler.
func (d *Descriptor) Validate() error {
	if d == nil {
		return fmt.Errorf("descriptor cannot be nil")
	}
	if !IsValidName(d.Name) {
		return fmt.Errorf("invalid tool name %q: must be 1-%d characters of a-z, 0-9 and underscores", d.Name, maxNameLength)
	}

	switch d.Kind {
	case KindScript:
		if d.API != nil {
			return fmt.Errorf("script tool %q cannot carry an api section", d.Name)
		}
		if d.QuerySchema != nil {
			return fmt.Errorf("query_schema is only allowed on api tools")
		}
	case KindAPI:
		if d.Script != "" {
			return fmt.Errorf("api tool %q cannot carry a script", d.Name)
		}
		if d.API != nil && d.API.Method != "" && !knownMethod(d.Method()) {
			return fmt.Errorf("unsupported http method %q", d.API.Method)
		}
	case KindBuiltin:
		return fmt.Errorf("builtin tools cannot be stored")
	default:
		return fmt.Errorf("unknown tool kind %q", d.Kind)
	}
	return nil
}

// IsValidName reports whether name is usable as a tool name (snake_case).
func IsValidName(name string) bool {
	if name == "" || len(name) > maxNameLength {
		return false
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			continue
		}
		return false
	}
	return true
}

func knownMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
