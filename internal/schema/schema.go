// Package schema describes tool parameters declaratively and compiles those
// descriptions into validators that check and coerce raw argument values.
package schema

import (
	"encoding/json"
	"sort"
)

// Kind is the value type of a parameter.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
)

// Numeric reports whether k holds numbers.
func (k Kind) Numeric() bool {
	return k == KindNumber || k == KindInteger
}

// Parameter describes one named input of a tool.
type Parameter struct {
	Type        Kind     `json:"type" yaml:"type"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Enum        []string `json:"enum,omitempty" yaml:"enum,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	Default     any      `json:"default,omitempty" yaml:"default,omitempty"`
}

// Schema maps parameter names to their descriptions. Every name in Required
// must be a key of Properties.
type Schema struct {
	Properties map[string]Parameter `json:"properties,omitempty" yaml:"properties,omitempty"`
	Required   []string             `json:"required,omitempty" yaml:"required,omitempty"`
}

// Has reports whether name is declared.
func (s *Schema) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Properties[name]
	return ok
}

// Names returns the declared parameter names in sorted order.
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge combines schemas into one. Later schemas win when a name is declared
// twice; required names are unioned.
func Merge(schemas ...*Schema) Schema {
	out := Schema{Properties: map[string]Parameter{}}
	seen := map[string]bool{}
	for _, s := range schemas {
		if s == nil {
			continue
		}
		for name, p := range s.Properties {
			out.Properties[name] = p
		}
		for _, name := range s.Required {
			if !seen[name] {
				seen[name] = true
				out.Required = append(out.Required, name)
			}
		}
	}
	return out
}

// JSONSchema renders the schema as a JSON Schema object, the shape MCP
// clients expect in tools/list.
func (s *Schema) JSONSchema() json.RawMessage {
	doc := struct {
		Type       string               `json:"type"`
		Properties map[string]Parameter `json:"properties"`
		Required   []string             `json:"required,omitempty"`
	}{
		Type:       "object",
		Properties: map[string]Parameter{},
	}
	if s != nil {
		for name, p := range s.Properties {
			doc.Properties[name] = p
		}
		doc.Required = s.Required
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return data
}
