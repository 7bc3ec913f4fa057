package apitool

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golovatskygroup/mcp-toolkit/internal/schema"
	"github.com/golovatskygroup/mcp-toolkit/internal/tool"
)

func declared(names ...string) *schema.Schema {
	s := &schema.Schema{Properties: map[string]schema.Parameter{}}
	for _, n := range names {
		s.Properties[n] = schema.Parameter{Type: schema.KindNumber}
	}
	return s
}

func apiTool(method, url string) *tool.Descriptor {
	return &tool.Descriptor{
		Name:        "remote",
		Kind:        tool.KindAPI,
		QuerySchema: declared("a"),
		BodySchema:  declared("b"),
		API:         &tool.API{URL: url, Method: method},
	}
}

func TestRoute_FallbackByMethod(t *testing.T) {
	args := map[string]any{"a": 1, "b": 2, "c": 3}

	post := Route(apiTool("POST", "http://x"), args)
	assert.Equal(t, map[string]any{"a": 1}, post.Query)
	assert.Equal(t, map[string]any{"b": 2, "c": 3}, post.Body)

	get := Route(apiTool("GET", "http://x"), args)
	assert.Equal(t, map[string]any{"a": 1, "c": 3}, get.Query)
	assert.Equal(t, map[string]any{"b": 2}, get.Body)
}

func TestRoute_QueryWinsAndNullsDropped(t *testing.T) {
	d := apiTool("PUT", "http://x")
	d.BodySchema = declared("a", "b")

	p := Route(d, map[string]any{"a": 1, "b": nil})
	assert.Equal(t, map[string]any{"a": 1}, p.Query)
	assert.Empty(t, p.Body)
}

func TestBuildRequest_RebuildsQuery(t *testing.T) {
	c := NewCaller(nil, "toolkit-test")
	d := apiTool("GET", "https://api.example.test/v1/items?a=old&stale=1")

	req, err := c.BuildRequest(context.Background(), d, map[string]any{
		"a":    int64(5),
		"tags": []any{"x", "y"},
		"q":    "two words",
	})
	require.NoError(t, err)

	q := req.URL.Query()
	assert.Equal(t, []string{"5"}, q["a"])
	assert.Equal(t, []string{"x,y"}, q["tags"])
	assert.Equal(t, "two words", q.Get("q"))
	assert.NotContains(t, q, "stale")
	assert.Nil(t, req.Body)
	assert.Equal(t, "toolkit-test", req.Header.Get("User-Agent"))
}

func TestBuildRequest_JSONBody(t *testing.T) {
	c := NewCaller(nil, "")
	d := apiTool("POST", "https://api.example.test/v1/items")
	d.API.Headers = map[string]string{"Authorization": "Bearer t"}

	req, err := c.BuildRequest(context.Background(), d, map[string]any{"a": 1.5, "b": 2.0, "c": "x"})
	require.NoError(t, err)

	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "Bearer t", req.Header.Get("Authorization"))
	assert.Equal(t, "a=1.5", req.URL.RawQuery)

	raw, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2,"c":"x"}`, string(raw))
}

func TestBuildRequest_KeepsExplicitContentType(t *testing.T) {
	c := NewCaller(nil, "")
	d := apiTool("PATCH", "https://api.example.test")
	d.API.Headers = map[string]string{"content-type": "application/merge-patch+json"}

	req, err := c.BuildRequest(context.Background(), d, map[string]any{"b": 1})
	require.NoError(t, err)
	assert.Equal(t, "application/merge-patch+json", req.Header.Get("Content-Type"))
}

func TestBuildRequest_NoBodyWithoutParams(t *testing.T) {
	c := NewCaller(nil, "")
	req, err := c.BuildRequest(context.Background(), apiTool("DELETE", "https://api.example.test"), nil)
	require.NoError(t, err)
	assert.Nil(t, req.Body)
	assert.Empty(t, req.Header.Get("Content-Type"))
}

func TestCall_MissingURL(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	t.Cleanup(srv.Close)

	c := NewCaller(srv.Client(), "")
	_, err := c.Call(context.Background(), &tool.Descriptor{Name: "x", Kind: tool.KindAPI}, nil)
	assert.ErrorIs(t, err, ErrMissingURL)

	_, err = c.Call(context.Background(), &tool.Descriptor{Name: "x", Kind: tool.KindAPI, API: &tool.API{URL: "  "}}, nil)
	assert.ErrorIs(t, err, ErrMissingURL)
	assert.Equal(t, int64(0), hits.Load())
}

func TestCall_InvalidURL(t *testing.T) {
	c := NewCaller(nil, "")
	_, err := c.Call(context.Background(), apiTool("GET", "ftp://example.test/file"), nil)
	assert.ErrorContains(t, err, "scheme")
}

func TestCall_DecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"method": r.Method,
			"a":      r.URL.Query().Get("a"),
			"body":   body,
		})
	}))
	t.Cleanup(srv.Close)

	c := NewCaller(srv.Client(), "")
	got, err := c.Call(context.Background(), apiTool("POST", srv.URL), map[string]any{"a": 1, "b": 2, "c": 3})
	require.NoError(t, err)

	m, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "POST", m["method"])
	assert.Equal(t, "1", m["a"])
	assert.Equal(t, map[string]any{"b": 2.0, "c": 3.0}, m["body"])
}

func TestCall_TextAndEmptyBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte("plain text"))
	}))
	t.Cleanup(srv.Close)

	c := NewCaller(srv.Client(), "")
	got, err := c.Call(context.Background(), apiTool("GET", srv.URL+"/text"), nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", got)

	got, err = c.Call(context.Background(), apiTool("GET", srv.URL+"/empty"), nil)
	require.NoError(t, err)
	assert.Contains(t, got, "204")
}

func TestCall_NonSuccessIsNotRetried(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"upstream down"}`))
	}))
	t.Cleanup(srv.Close)

	c := NewCaller(srv.Client(), "")
	_, err := c.Call(context.Background(), apiTool("GET", srv.URL), nil)

	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusBadGateway, serr.Code)
	assert.Equal(t, `{"error":"upstream down"}`, serr.Body)
	assert.Contains(t, serr.Error(), "502")
	assert.Equal(t, int64(1), hits.Load())
}
