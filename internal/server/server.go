// Package server exposes the dispatcher over MCP JSON-RPC, on stdio or HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/golovatskygroup/mcp-toolkit/internal/dispatch"
	"github.com/golovatskygroup/mcp-toolkit/internal/registry"
	"github.com/golovatskygroup/mcp-toolkit/pkg/mcp"
)

const (
	serverName    = "mcp-toolkit"
	serverVersion = "1.0.0"

	methodToolsListChanged     = "notifications/tools/list_changed"
	methodResourcesListChanged = "notifications/resources/list_changed"
)

// Options tune a Server.
type Options struct {
	// MaxConcurrency bounds the requests of one stdio session handled at once.
	// Values below 1 mean one at a time.
	MaxConcurrency int
	Version        string
}

// Server answers MCP requests by delegating to a dispatcher.
type Server struct {
	disp *dispatch.Dispatcher
	opts Options

	// stdio is the live stdio session, if any. Change notifications go there.
	stdio atomic.Pointer[mcp.Transport]
}

// New creates a server and subscribes it to tool set changes.
func New(disp *dispatch.Dispatcher, opts Options) *Server {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	if opts.Version == "" {
		opts.Version = serverVersion
	}
	s := &Server{disp: disp, opts: opts}
	disp.OnToolsChanged(s.NotifyToolsChanged)
	return s
}

// ServeStdio runs the main message loop over r and w until r is exhausted or
// ctx is cancelled. Requests are handled concurrently; responses may be
// written out of order and are matched by ID.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	transport := mcp.NewTransport(r, w)
	s.stdio.Store(transport)
	defer s.stdio.CompareAndSwap(transport, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrency)

	msgs := make(chan *mcp.Request)
	readErr := make(chan error, 1)
	go func() {
		defer close(msgs)
		for {
			req, err := transport.ReadMessage()
			if err != nil {
				if errors.Is(err, mcp.ErrMalformed) {
					log.Warn().Err(err).Msg("malformed message")
					s.write(transport, parseErrorResponse(req, err))
					continue
				}
				if !errors.Is(err, io.EOF) {
					readErr <- err
				}
				return
			}
			select {
			case msgs <- req:
			case <-gctx.Done():
				return
			}
		}
	}()

loop:
	for {
		select {
		case <-gctx.Done():
			break loop
		case req, ok := <-msgs:
			if !ok {
				break loop
			}
			g.Go(func() error {
				if resp := s.Handle(gctx, req); resp != nil {
					s.write(transport, resp)
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	select {
	case err := <-readErr:
		return fmt.Errorf("read message: %w", err)
	default:
		return ctx.Err()
	}
}

// parseErrorResponse answers a line that could not be decoded. A decodable
// message without a method is an invalid request instead.
func parseErrorResponse(req *mcp.Request, err error) *mcp.Response {
	if req != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InvalidRequest, err.Error())
	}
	return mcp.NewErrorResponse(nil, mcp.ParseError, err.Error())
}

func (s *Server) write(t *mcp.Transport, resp *mcp.Response) {
	if err := t.WriteResponse(resp); err != nil {
		log.Error().Err(err).Msg("write response")
	}
}

// NotifyToolsChanged tells the connected stdio client to refetch tools/list
// and resources/list.
func (s *Server) NotifyToolsChanged() {
	t := s.stdio.Load()
	if t == nil {
		return
	}
	for _, method := range []string{methodToolsListChanged, methodResourcesListChanged} {
		if err := t.WriteNotification(method, nil); err != nil {
			log.Warn().Err(err).Str("method", method).Msg("write notification")
		}
	}
}

// Handle answers one request. It returns nil for notifications.
func (s *Server) Handle(ctx context.Context, req *mcp.Request) *mcp.Response {
	resp := s.handleRequest(ctx, req)
	if req.IsNotification() {
		return nil
	}
	return resp
}

func (s *Server) handleRequest(ctx context.Context, req *mcp.Request) *mcp.Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(ctx, req)
	case "notifications/initialized", "notifications/cancelled":
		return nil
	case "tools/list":
		return s.handleListTools(ctx, req)
	case "tools/call":
		return s.handleCallTool(ctx, req)
	case "resources/list":
		return s.handleListResources(ctx, req)
	case "resources/read":
		return s.handleReadResource(ctx, req)
	case "ping":
		return s.handlePing(req)
	default:
		return mcp.NewErrorResponse(req.ID, mcp.MethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (s *Server) handleInitialize(ctx context.Context, req *mcp.Request) *mcp.Response {
	result := mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Tools:     &mcp.ToolsCapability{ListChanged: true},
			Resources: &mcp.ResourcesCapability{ListChanged: true},
		},
		ServerInfo: mcp.ServerInfo{
			Name:    serverName,
			Version: s.opts.Version,
		},
		Instructions: s.buildInstructions(ctx),
	}
	return respond(req, result)
}

func (s *Server) handleListTools(ctx context.Context, req *mcp.Request) *mcp.Response {
	return respond(req, mcp.ListToolsResult{Tools: s.disp.ListTools(ctx)})
}

func (s *Server) handleCallTool(ctx context.Context, req *mcp.Request) *mcp.Response {
	var params mcp.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InvalidParams, "Invalid params: "+err.Error())
	}
	if params.Name == "" {
		return mcp.NewErrorResponse(req.ID, mcp.InvalidParams, "Invalid params: name is required")
	}
	return respond(req, s.disp.InvokeRaw(ctx, params.Name, params.Arguments))
}

func (s *Server) handlePing(req *mcp.Request) *mcp.Response {
	resp, _ := mcp.NewResponse(req.ID, map[string]any{})
	return resp
}

func respond(req *mcp.Request, result any) *mcp.Response {
	resp, err := mcp.NewResponse(req.ID, result)
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InternalError, err.Error())
	}
	return resp
}

func (s *Server) buildInstructions(ctx context.Context) string {
	var sb strings.Builder
	sb.WriteString("MCP Toolkit: builtin utilities plus custom script and API tools.\n\n")
	sb.WriteString("Use search_tools to find a tool and describe_tool to see its input schema.\n")
	sb.WriteString("Define new tools with save_custom_tool; they are callable immediately.\n\n")
	sb.WriteString("Categories:\n")
	for _, c := range registry.Categories {
		fmt.Fprintf(&sb, "- %s: %s\n", c.Name, strings.Join(c.Keywords, ", "))
	}
	fmt.Fprintf(&sb, "\nTotal available tools: %d\n", len(s.disp.ListTools(ctx)))
	return sb.String()
}
