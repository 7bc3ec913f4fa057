package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrMalformed is returned by ReadMessage for lines that are not valid JSON-RPC.
var ErrMalformed = errors.New("malformed message")

// Transport handles MCP communication over newline-delimited JSON (stdio).
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	mu     sync.Mutex
}

// NewTransport creates a new stdio transport
func NewTransport(r io.Reader, w io.Writer) *Transport {
	return &Transport{
		reader: bufio.NewReader(r),
		writer: w,
	}
}

// ReadMessage reads the next JSON-RPC message. Blank lines are skipped.
func (t *Transport) ReadMessage() (*Request, error) {
	for {
		line, err := t.reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err != nil {
				return nil, err
			}
			continue
		}

		var req Request
		if uerr := json.Unmarshal(line, &req); uerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, uerr)
		}
		if req.Method == "" {
			return &req, fmt.Errorf("%w: missing method", ErrMalformed)
		}
		return &req, nil
	}
}

// WriteResponse writes a JSON-RPC response line.
func (t *Transport) WriteResponse(resp *Response) error {
	return t.writeLine(resp)
}

// WriteNotification writes a JSON-RPC notification
func (t *Transport) WriteNotification(method string, params any) error {
	var paramsData json.RawMessage
	if params != nil {
		var err error
		paramsData, err = json.Marshal(params)
		if err != nil {
			return err
		}
	}

	return t.writeLine(Notification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsData,
	})
}

func (t *Transport) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	_, err = fmt.Fprintf(t.writer, "%s\n", data)
	return err
}
