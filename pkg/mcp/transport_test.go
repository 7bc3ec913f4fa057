package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_ReadMessage(t *testing.T) {
	in := strings.NewReader("\n{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"tools/list\"}\n{\"jsonrpc\":\"2.0\",\"method\":\"notifications/initialized\"}\n")
	tr := NewTransport(in, io.Discard)

	req, err := tr.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "tools/list", req.Method)
	assert.Equal(t, "1", string(req.ID))
	assert.False(t, req.IsNotification())

	req, err = tr.ReadMessage()
	require.NoError(t, err)
	assert.True(t, req.IsNotification())

	_, err = tr.ReadMessage()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTransport_ReadMessageMalformed(t *testing.T) {
	tr := NewTransport(strings.NewReader("{not json}\n"), io.Discard)

	_, err := tr.ReadMessage()
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestTransport_WriteResponse(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTransport(strings.NewReader(""), &buf)

	resp, err := NewResponse(json.RawMessage(`"abc"`), TextResult("hi"))
	require.NoError(t, err)
	require.NoError(t, tr.WriteResponse(resp))
	require.NoError(t, tr.WriteNotification("notifications/tools/list_changed", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var got Response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, `"abc"`, string(got.ID))
	assert.JSONEq(t, `{"content":[{"type":"text","text":"hi"}]}`, string(got.Result))
	assert.Contains(t, lines[1], `"method":"notifications/tools/list_changed"`)
}

func TestNewErrorResponse_NullID(t *testing.T) {
	resp := NewErrorResponse(nil, ParseError, "bad")
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"bad"}}`, string(data))
}
