package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// metaSchema describes the parameter-schema documents accepted for custom
// tools. Anything richer than flat scalar parameters is rejected.
const metaSchema = `{
	"type": "object",
	"properties": {
		"type": {"const": "object"},
		"properties": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"required": ["type"],
				"properties": {
					"type": {"enum": ["string", "number", "integer", "boolean"]},
					"description": {"type": "string"},
					"enum": {"type": "array", "items": {"type": "string"}},
					"minimum": {"type": "number"},
					"maximum": {"type": "number"},
					"default": {"type": ["string", "number", "boolean"]}
				}
			}
		},
		"required": {"type": "array", "items": {"type": "string"}, "uniqueItems": true}
	}
}`

var (
	metaOnce     sync.Once
	metaCompiled *jsonschema.Schema
	metaErr      error
)

func documentSchema() (*jsonschema.Schema, error) {
	metaOnce.Do(func() {
		metaCompiled, metaErr = jsonschema.CompileString("tool-parameters.json", metaSchema)
	})
	return metaCompiled, metaErr
}

// ValidateDocument checks a raw parameter-schema document before it is decoded.
func ValidateDocument(raw []byte) error {
	s, err := documentSchema()
	if err != nil {
		return fmt.Errorf("compile meta-schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("schema is not valid JSON: %w", err)
	}

	if err := s.Validate(doc); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			leaf := firstLeafValidationError(ve)
			loc := leaf.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			msg := leaf.Message
			if msg == "" {
				msg = leaf.Error()
			}
			return fmt.Errorf("invalid parameter schema at %s: %s", loc, msg)
		}
		return fmt.Errorf("invalid parameter schema: %w", err)
	}
	return nil
}

// Parse validates and decodes a parameter-schema document.
func Parse(raw []byte) (*Schema, error) {
	if err := ValidateDocument(raw); err != nil {
		return nil, err
	}
	var s Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode parameter schema: %w", err)
	}
	return &s, nil
}

func firstLeafValidationError(err *jsonschema.ValidationError) *jsonschema.ValidationError {
	if err == nil {
		return nil
	}
	if len(err.Causes) == 0 {
		return err
	}
	for _, c := range err.Causes {
		if leaf := firstLeafValidationError(c); leaf != nil {
			return leaf
		}
	}
	return err
}
