package apitool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/golovatskygroup/mcp-toolkit/internal/tool"
)

const maxResponseBytes = 8 << 20

// ErrMissingURL is returned before any I/O when an api tool has no target url.
var ErrMissingURL = errors.New("api tool has no target url configured")

// StatusError carries a non-2xx response verbatim.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("HTTP %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// Caller executes api tools. Requests are sent once; there is no retry.
type Caller struct {
	client    *http.Client
	userAgent string
}

// NewCaller uses client for all requests. A nil client means
// http.DefaultClient.
func NewCaller(client *http.Client, userAgent string) *Caller {
	if client == nil {
		client = http.DefaultClient
	}
	return &Caller{client: client, userAgent: userAgent}
}

// BuildRequest assembles the outbound request for d from already validated
// arguments.
func (c *Caller) BuildRequest(ctx context.Context, d *tool.Descriptor, args map[string]any) (*http.Request, error) {
	if d.API == nil || strings.TrimSpace(d.API.URL) == "" {
		return nil, ErrMissingURL
	}

	method := d.Method()
	params := Route(d, args)

	u, err := targetURL(d.API.URL, params.Query)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	sendBody := method != http.MethodGet && method != http.MethodHead && len(params.Body) > 0
	if sendBody {
		data, err := json.Marshal(params.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	} else if len(params.Body) > 0 {
		log.Debug().Str("tool", d.Name).Int("dropped", len(params.Body)).Msg("body parameters ignored for " + method)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range d.API.Headers {
		req.Header.Set(k, v)
	}
	if sendBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("User-Agent") == "" && c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

// Call sends the request for d and returns the decoded JSON response, or the
// raw text when the body is not JSON.
func (c *Caller) Call(ctx context.Context, d *tool.Descriptor, args map[string]any) (any, error) {
	req, err := c.BuildRequest(ctx, d, args)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("tool", d.Name).Str("method", req.Method).Str("url", req.URL.Redacted()).Msg("calling api tool")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Sprintf("HTTP %d (empty response)", resp.StatusCode), nil
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err == nil {
		return decoded, nil
	}
	return string(data), nil
}
