package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/golovatskygroup/mcp-toolkit/pkg/mcp"
)

// Normalize turns a handler's return value into a result envelope. Strings
// become one text block, values already shaped like an envelope pass through,
// and everything else is rendered as indented JSON.
func Normalize(v any) *mcp.CallToolResult {
	switch t := v.(type) {
	case *mcp.CallToolResult:
		if t == nil {
			return mcp.TextResult("null")
		}
		return t
	case string:
		return mcp.TextResult(t)
	case map[string]any:
		if res, ok := asEnvelope(t); ok {
			return res
		}
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.TextResult(fmt.Sprint(v))
	}
	return mcp.TextResult(string(data))
}

// asEnvelope accepts {content: [...], isError?} where every block has a
// string type.
func asEnvelope(m map[string]any) (*mcp.CallToolResult, bool) {
	blocks, ok := m["content"].([]any)
	if !ok {
		return nil, false
	}
	for _, b := range blocks {
		obj, ok := b.(map[string]any)
		if !ok {
			return nil, false
		}
		if _, ok := obj["type"].(string); !ok {
			return nil, false
		}
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, false
	}
	var res mcp.CallToolResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false
	}
	if res.Content == nil {
		res.Content = []mcp.ContentBlock{}
	}
	return &res, true
}
