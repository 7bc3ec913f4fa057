// Package apitool turns an api tool invocation into an outbound HTTP request:
// arguments are split between the query string and a JSON body, the request
// is sent, and non-2xx responses are reported as errors.
package apitool

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/golovatskygroup/mcp-toolkit/internal/tool"
)

// Params is the result of routing an argument bag.
type Params struct {
	Query map[string]any
	Body  map[string]any
}

// Route places every non-null argument in exactly one bucket: the query when
// the name is declared in the query schema, the body when it is declared in
// the body schema, and otherwise the query for GET and the body for any other
// method.
func Route(d *tool.Descriptor, args map[string]any) Params {
	p := Params{Query: map[string]any{}, Body: map[string]any{}}
	get := d.Method() == http.MethodGet

	for k, v := range args {
		if v == nil {
			continue
		}
		switch {
		case d.QuerySchema.Has(k):
			p.Query[k] = v
		case d.BodySchema.Has(k):
			p.Body[k] = v
		case get:
			p.Query[k] = v
		default:
			p.Body[k] = v
		}
	}
	return p
}

// targetURL parses raw and replaces its query string with query. Each key is
// set once; list values are joined with commas.
func targetURL(raw string, query map[string]any) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid target url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid target url %q: scheme must be http or https", raw)
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		values.Set(k, queryValue(query[k]))
	}
	u.RawQuery = values.Encode()
	return u, nil
}

func queryValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if e != nil {
				parts = append(parts, queryValue(e))
			}
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(t, ",")
	default:
		if b, err := json.Marshal(t); err == nil {
			return string(b)
		}
		return fmt.Sprint(t)
	}
}
