package script

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_Run(t *testing.T) {
	r := NewRunner(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name   string
		source string
		args   map[string]any
		want   any
	}{
		{
			name:   "returns string",
			source: `return "hello " + args.name;`,
			args:   map[string]any{"name": "world"},
			want:   "hello world",
		},
		{
			name:   "arithmetic on args",
			source: `return args.x + args.y;`,
			args:   map[string]any{"x": int64(10), "y": json.Number("20")},
			want:   int64(30),
		},
		{
			name:   "returns object",
			source: `return {status: "ok", items: [1, 2].map(function(x) { return x * 2; })};`,
			want:   map[string]any{"status": "ok", "items": []any{int64(2), int64(4)}},
		},
		{
			name:   "json round trip",
			source: `return JSON.parse(JSON.stringify({a: 1})).a;`,
			want:   int64(1),
		},
		{
			name:   "base64 helpers are utf-8",
			source: `return atob(btoa("héllo"));`,
			want:   "héllo",
		},
		{
			name:   "btoa output",
			source: `return btoa("hello");`,
			want:   "aGVsbG8=",
		},
		{
			name:   "uri helpers",
			source: `return decodeURIComponent(encodeURIComponent("a b&c"));`,
			want:   "a b&c",
		},
		{
			name:   "math and regexp",
			source: `return Math.max(1, 3) + (/b+/.test("abbc") ? 1 : 0);`,
			want:   int64(4),
		},
		{
			name:   "no return",
			source: `var x = 1;`,
			want:   nil,
		},
		{
			name:   "async function settles",
			source: `return (async function() { return 7; })();`,
			want:   int64(7),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Run(ctx, "test_tool", tt.source, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunner_ClosedGlobals(t *testing.T) {
	r := NewRunner(time.Second)
	ctx := context.Background()

	for _, name := range []string{"require", "eval", "globalThis", "Function", "Promise", "setTimeout", "Proxy", "Reflect", "Symbol"} {
		got, err := r.Run(ctx, "probe", "return typeof "+name+";", nil)
		require.NoError(t, err)
		assert.Equal(t, "undefined", got, name)
	}

	for _, name := range []string{"JSON", "Math", "Date", "console", "btoa", "atob", "parseInt"} {
		got, err := r.Run(ctx, "probe", "return typeof "+name+";", nil)
		require.NoError(t, err)
		assert.NotEqual(t, "undefined", got, name)
	}
}

func TestRunner_Throw(t *testing.T) {
	r := NewRunner(time.Second)

	_, err := r.Run(context.Background(), "boom_tool", `throw new Error("boom")`, nil)
	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "boom_tool", serr.Tool)
	assert.Contains(t, serr.Message, "boom")
	assert.False(t, serr.Timeout)

	_, err = r.Run(context.Background(), "str_tool", `throw "plain"`, nil)
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "plain", serr.Message)
}

func TestRunner_RejectedPromise(t *testing.T) {
	r := NewRunner(time.Second)

	_, err := r.Run(context.Background(), "async_tool", `return (async function() { throw new TypeError("nope"); })();`, nil)
	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "TypeError: nope", serr.Message)
}

func TestRunner_SyntaxError(t *testing.T) {
	r := NewRunner(time.Second)

	_, err := r.Run(context.Background(), "broken", `return (;`, nil)
	var serr *Error
	assert.True(t, errors.As(err, &serr))
}

func TestRunner_InvalidBase64Throws(t *testing.T) {
	r := NewRunner(time.Second)

	_, err := r.Run(context.Background(), "b64", `return atob("***");`, nil)
	assert.ErrorContains(t, err, "invalid base64")
}

func TestRunner_EmptySource(t *testing.T) {
	r := NewRunner(time.Second)

	got, err := r.Run(context.Background(), "empty_tool", "  \n", nil)
	require.NoError(t, err)
	assert.Contains(t, got, "no logic defined")
}

func TestRunner_Timeout(t *testing.T) {
	r := NewRunner(50 * time.Millisecond)

	start := time.Now()
	_, err := r.Run(context.Background(), "spin", `while (true) {}`, nil)
	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.True(t, serr.Timeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunner_ContextCancel(t *testing.T) {
	r := NewRunner(0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, "spin", `for (;;) {}`, nil)
	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Contains(t, serr.Message, "cancelled")
}

func TestRunner_UsableAfterFailure(t *testing.T) {
	r := NewRunner(time.Second)
	ctx := context.Background()

	_, err := r.Run(ctx, "boom", `throw new Error("boom")`, nil)
	require.Error(t, err)

	got, err := r.Run(ctx, "ok", `return 1 + 1;`, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
}
