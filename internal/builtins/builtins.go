// Package builtins holds the fixed catalog of stateless utility tools served
// next to the custom tools: hashing, encoding, text transforms, validators
// and generators.
package builtins

import (
	"errors"
	"fmt"

	"github.com/golovatskygroup/mcp-toolkit/internal/schema"
	"github.com/golovatskygroup/mcp-toolkit/internal/tool"
)

const (
	CategoryHashing    = "hashing"
	CategoryEncoding   = "encoding"
	CategoryText       = "text"
	CategoryValidation = "validation"
	CategoryGenerators = "generators"
)

// ErrInvalidInput is wrapped by handler errors caused by malformed input
// that the schema cannot express, such as undecodable base64.
var ErrInvalidInput = errors.New("invalid input")

// All returns a fresh copy of every utility builtin.
func All() []*tool.Builtin {
	var out []*tool.Builtin
	out = append(out, hashingTools()...)
	out = append(out, encodingTools()...)
	out = append(out, textTools()...)
	out = append(out, validationTools()...)
	out = append(out, generatorTools()...)
	return out
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Schema helpers. Parameters are declared inline in each catalog file.

func props(params map[string]schema.Parameter, required ...string) schema.Schema {
	return schema.Schema{Properties: params, Required: required}
}

func text(desc string) schema.Parameter {
	return schema.Parameter{Type: schema.KindString, Description: desc}
}

func boolean(desc string, def bool) schema.Parameter {
	return schema.Parameter{Type: schema.KindBoolean, Description: desc, Default: def}
}

func oneOf(desc, def string, values ...string) schema.Parameter {
	p := schema.Parameter{Type: schema.KindString, Description: desc, Enum: values}
	if def != "" {
		p.Default = def
	}
	return p
}

func integer(desc string, def, lo, hi float64) schema.Parameter {
	return schema.Parameter{Type: schema.KindInteger, Description: desc, Default: def, Minimum: &lo, Maximum: &hi}
}

// Argument accessors. Values have already been coerced by the schema, so a
// failed assertion means the argument was omitted.

func str(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func flag(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func intArg(args map[string]any, key string) int64 {
	switch v := args[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}
