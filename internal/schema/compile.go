package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// Validator checks one raw argument value and returns it coerced to the
// parameter's kind.
type Validator func(v any) (any, error)

type checker func(p Parameter, v any) (any, *ValidationError)

var checkers = map[Kind]checker{
	KindString:  checkString,
	KindNumber:  checkNumber,
	KindInteger: checkInteger,
	KindBoolean: checkBoolean,
}

// Compile builds the validator for a single parameter. It fails when the
// parameter description itself is inconsistent.
func Compile(p Parameter) (Validator, error) {
	check, ok := checkers[p.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported parameter type %q", p.Type)
	}
	if len(p.Enum) > 0 && p.Type != KindString {
		return nil, fmt.Errorf("enum is only allowed on string parameters, not %s", p.Type)
	}
	if (p.Minimum != nil || p.Maximum != nil) && !p.Type.Numeric() {
		return nil, fmt.Errorf("minimum/maximum are only allowed on numeric parameters, not %s", p.Type)
	}
	if p.Minimum != nil && p.Maximum != nil && *p.Minimum > *p.Maximum {
		return nil, fmt.Errorf("minimum %v is greater than maximum %v", *p.Minimum, *p.Maximum)
	}

	return func(v any) (any, error) {
		out, verr := check(p, v)
		if verr != nil {
			return nil, verr
		}
		return out, nil
	}, nil
}

type field struct {
	name       string
	validate   Validator
	required   bool
	hasDefault bool
	def        any
}

// Compiled is the aggregate validator of a Schema.
type Compiled struct {
	fields []field
}

// CompileSchema compiles every parameter of s. Defaults are validated here so
// a bad default surfaces at registration rather than at call time.
func CompileSchema(s Schema) (*Compiled, error) {
	for _, name := range s.Required {
		if _, ok := s.Properties[name]; !ok {
			return nil, fmt.Errorf("required parameter %q is not declared in properties", name)
		}
	}

	c := &Compiled{}
	for _, name := range s.Names() {
		p := s.Properties[name]
		validate, err := Compile(p)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}

		f := field{
			name:     name,
			validate: validate,
			required: slices.Contains(s.Required, name),
		}
		if p.Default != nil {
			def, err := validate(p.Default)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: invalid default: %w", name, err)
			}
			f.hasDefault = true
			f.def = def
		}
		c.fields = append(c.fields, f)
	}
	return c, nil
}

// Apply validates args and returns a new map holding coerced values. Declared
// parameters are visited in name order and the first failure is returned.
// Undeclared arguments are copied through unchanged; null counts as omitted.
func (c *Compiled) Apply(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if v != nil {
			out[k] = v
		}
	}
	if c == nil {
		return out, nil
	}

	for _, f := range c.fields {
		v, present := out[f.name]
		if !present {
			switch {
			case f.hasDefault:
				out[f.name] = f.def
			case f.required:
				return nil, &ValidationError{Param: f.name, Kind: MissingRequired}
			}
			continue
		}

		coerced, err := f.validate(v)
		if err != nil {
			if verr, ok := err.(*ValidationError); ok {
				verr.Param = f.name
			}
			return nil, err
		}
		out[f.name] = coerced
	}
	return out, nil
}

func checkString(p Parameter, v any) (any, *ValidationError) {
	s, ok := v.(string)
	if !ok {
		return nil, invalid(TypeMismatch, "expected string, got %s", describe(v))
	}
	if len(p.Enum) > 0 && !slices.Contains(p.Enum, s) {
		return nil, invalid(EnumMismatch, "%q is not one of %v", s, p.Enum)
	}
	return s, nil
}

func checkBoolean(_ Parameter, v any) (any, *ValidationError) {
	b, ok := v.(bool)
	if !ok {
		return nil, invalid(TypeMismatch, "expected boolean, got %s", describe(v))
	}
	return b, nil
}

func checkNumber(p Parameter, v any) (any, *ValidationError) {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, invalid(TypeMismatch, "expected number, got %s", describe(v))
	}
	if verr := checkBounds(p, f); verr != nil {
		return nil, verr
	}
	return f, nil
}

func checkInteger(p Parameter, v any) (any, *ValidationError) {
	if i, ok := exactInt(v); ok {
		if verr := checkBounds(p, float64(i)); verr != nil {
			return nil, verr
		}
		return i, nil
	}
	// -2^63-1 would otherwise round to math.MinInt64 on the float path.
	if n, isNum := v.(json.Number); isNum {
		if _, err := strconv.ParseInt(string(n), 10, 64); errors.Is(err, strconv.ErrRange) {
			return nil, invalid(OutOfRange, "%s does not fit in a 64-bit integer", n)
		}
	}

	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, invalid(TypeMismatch, "expected integer, got %s", describe(v))
	}
	if f != math.Trunc(f) {
		return nil, invalid(TypeMismatch, "expected integer, got %v", f)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return nil, invalid(OutOfRange, "%v does not fit in a 64-bit integer", f)
	}
	i := int64(f)
	if verr := checkBounds(p, float64(i)); verr != nil {
		return nil, verr
	}
	return i, nil
}

func checkBounds(p Parameter, f float64) *ValidationError {
	if p.Minimum != nil && f < *p.Minimum {
		return invalid(OutOfRange, "%v is less than minimum %v", f, *p.Minimum)
	}
	if p.Maximum != nil && f > *p.Maximum {
		return invalid(OutOfRange, "%v is greater than maximum %v", f, *p.Maximum)
	}
	return nil
}

// exactInt converts integer inputs without a float64 round trip.
func exactInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint64:
		return int64(n), n <= math.MaxInt64
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
