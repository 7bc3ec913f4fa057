package tool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/golovatskygroup/mcp-toolkit/internal/schema"
)

// ParseDescriptor decodes a descriptor document written as JSON or YAML.
// Nested parameter schemas are checked against the schema meta-schema and the
// result is validated.
func ParseDescriptor(raw []byte) (*Descriptor, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty descriptor")
	}

	var doc map[string]any
	if raw[0] == '{' {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse descriptor json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse descriptor yaml: %w", err)
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("descriptor must be an object")
	}

	// Both formats are normalized through JSON so YAML documents obey the
	// same schema checks.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize descriptor: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(normalized, &fields); err != nil {
		return nil, fmt.Errorf("normalize descriptor: %w", err)
	}
	for _, key := range []string{"body_schema", "query_schema"} {
		section, ok := fields[key]
		if !ok || string(section) == "null" {
			continue
		}
		if err := schema.ValidateDocument(section); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}

	var d Descriptor
	if err := json.Unmarshal(normalized, &d); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
