package tool

import (
	"context"
	"fmt"
	"sort"

	"github.com/golovatskygroup/mcp-toolkit/internal/schema"
)

// Handler runs a builtin tool on arguments that already passed its schema.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Builtin is a tool compiled into the process.
type Builtin struct {
	Name        string
	Description string
	Category    string
	Schema      schema.Schema
	Handler     Handler
	// Refreshes marks tools that change the custom tool set; the registry
	// snapshot is invalidated after each successful run.
	Refreshes bool

	validator *schema.Compiled
}

// Validator returns the compiled schema. It is set once the builtin is added
// to a BuiltinSet.
func (b *Builtin) Validator() *schema.Compiled { return b.validator }

// BuiltinSet is the fixed catalog of builtin tools. It is populated at start
// and read-only afterwards.
type BuiltinSet struct {
	tools map[string]*Builtin
}

// NewBuiltinSet compiles every builtin. Duplicate names and invalid schemas
// are programming errors and reported as such.
func NewBuiltinSet(builtins ...*Builtin) (*BuiltinSet, error) {
	s := &BuiltinSet{tools: make(map[string]*Builtin, len(builtins))}
	if err := s.Add(builtins...); err != nil {
		return nil, err
	}
	return s, nil
}

// Add registers more builtins. It must not be called once dispatch has
// started.
func (s *BuiltinSet) Add(builtins ...*Builtin) error {
	for _, b := range builtins {
		if b.Name == "" || b.Handler == nil {
			return fmt.Errorf("builtin %q needs a name and a handler", b.Name)
		}
		if _, dup := s.tools[b.Name]; dup {
			return fmt.Errorf("duplicate builtin tool %q", b.Name)
		}
		compiled, err := schema.CompileSchema(b.Schema)
		if err != nil {
			return fmt.Errorf("builtin %s: %w", b.Name, err)
		}
		b.validator = compiled
		s.tools[b.Name] = b
	}
	return nil
}

// Get returns the builtin named name.
func (s *BuiltinSet) Get(name string) (*Builtin, bool) {
	b, ok := s.tools[name]
	return b, ok
}

// List returns all builtins sorted by name.
func (s *BuiltinSet) List() []*Builtin {
	out := make([]*Builtin, 0, len(s.tools))
	for _, b := range s.tools {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of builtins.
func (s *BuiltinSet) Len() int { return len(s.tools) }
