// Package dispatch resolves tool invocations to a builtin handler, a custom
// script or an outbound API call, and renders every outcome as a result
// envelope.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/golovatskygroup/mcp-toolkit/internal/apitool"
	"github.com/golovatskygroup/mcp-toolkit/internal/metrics"
	"github.com/golovatskygroup/mcp-toolkit/internal/registry"
	"github.com/golovatskygroup/mcp-toolkit/internal/script"
	"github.com/golovatskygroup/mcp-toolkit/internal/tool"
	"github.com/golovatskygroup/mcp-toolkit/pkg/mcp"
)

// unknownTool is the metrics label for names that resolved to nothing, so
// arbitrary client input cannot grow label cardinality.
const unknownTool = "_unknown"

// Dispatcher is safe for concurrent use. It holds no per-request state.
type Dispatcher struct {
	builtins *tool.BuiltinSet
	cache    *registry.Cache
	scripts  *script.Runner
	api      *apitool.Caller
	metrics  *metrics.Metrics

	onChange atomic.Pointer[func()]
}

type Option func(*Dispatcher)

// WithMetrics records every invocation on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New builds a dispatcher over the given builtins and custom tool cache. The
// administrative builtins are added to builtins.
func New(builtins *tool.BuiltinSet, cache *registry.Cache, scripts *script.Runner, api *apitool.Caller, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		builtins: builtins,
		cache:    cache,
		scripts:  scripts,
		api:      api,
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := builtins.Add(d.adminTools()...); err != nil {
		return nil, fmt.Errorf("register admin tools: %w", err)
	}
	return d, nil
}

// OnToolsChanged installs fn to be called after the custom tool set changed
// through a refreshing builtin or NotifyToolsChanged.
func (d *Dispatcher) OnToolsChanged(fn func()) {
	d.onChange.Store(&fn)
}

// NotifyToolsChanged invalidates the registry snapshot and runs the change
// hook. The store watcher calls it when files are edited by hand.
func (d *Dispatcher) NotifyToolsChanged() {
	d.cache.Invalidate()
	d.toolsChanged()
}

// Cache returns the custom tool registry.
func (d *Dispatcher) Cache() *registry.Cache { return d.cache }

// InvokeRaw decodes raw JSON arguments and invokes name. Numbers are kept as
// json.Number so integers beyond 2^53 survive validation.
func (d *Dispatcher) InvokeRaw(ctx context.Context, name string, raw json.RawMessage) *mcp.CallToolResult {
	args := map[string]any{}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && string(trimmed) != "null" {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&args); err != nil {
			return mcp.ErrorResult("arguments must be a JSON object: " + err.Error())
		}
	}
	return d.Invoke(ctx, name, args)
}

// Invoke runs the tool named name. It never returns nil and never panics on a
// tool failure: every error becomes an error-flagged envelope.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]any) *mcp.CallToolResult {
	start := time.Now()
	res, kind, err := d.safeInvoke(ctx, name, args)
	elapsed := time.Since(start)

	label := name
	if kind == "" {
		label, kind = unknownTool, "unknown"
	}

	if err != nil {
		log.Warn().
			Err(err).
			Str("tool", name).
			Str("kind", kind).
			Str("class", errorClass(err)).
			Dur("elapsed", elapsed).
			Msg("tool call failed")
		d.metrics.ObserveCall(label, kind, true, elapsed)
		return mcp.ErrorResult(err.Error())
	}

	log.Debug().Str("tool", name).Str("kind", kind).Dur("elapsed", elapsed).Msg("tool call")
	d.metrics.ObserveCall(label, kind, res.IsError, elapsed)
	return res
}

func (d *Dispatcher) safeInvoke(ctx context.Context, name string, args map[string]any) (res *mcp.CallToolResult, kind string, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("tool %q panicked: %v", name, r)
		}
	}()
	return d.invoke(ctx, name, args)
}

func (d *Dispatcher) invoke(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, string, error) {
	// Builtins win over custom tools of the same name.
	if b, ok := d.builtins.Get(name); ok {
		kind := string(tool.KindBuiltin)
		typed, err := b.Validator().Apply(args)
		if err != nil {
			return nil, kind, err
		}
		out, err := b.Handler(ctx, typed)
		if err != nil {
			return nil, kind, err
		}
		if b.Refreshes {
			d.NotifyToolsChanged()
		}
		return Normalize(out), kind, nil
	}

	snap := d.cache.EnsureFresh(ctx)
	e, ok := snap.Lookup(name)
	if !ok {
		if broken, found := snap.Find(name); found {
			return nil, string(broken.Descriptor.Kind), &UnavailableError{Name: name, Cause: broken.Err}
		}
		return nil, "", &NotFoundError{Name: name}
	}

	desc := e.Descriptor
	kind := string(desc.Kind)
	typed, err := e.Validator.Apply(args)
	if err != nil {
		return nil, kind, err
	}

	var out any
	switch desc.Kind {
	case tool.KindScript:
		out, err = d.scripts.Run(ctx, desc.Name, desc.Script, typed)
	case tool.KindAPI:
		out, err = d.api.Call(ctx, desc, typed)
	default:
		err = fmt.Errorf("tool %q has unsupported kind %q", name, desc.Kind)
	}
	if err != nil {
		return nil, kind, err
	}
	return Normalize(out), kind, nil
}

// ListTools returns the builtins followed by the dispatchable custom tools
// of the current snapshot. It never waits on the store.
func (d *Dispatcher) ListTools(ctx context.Context) []mcp.Tool {
	builtins := d.builtins.List()
	snap := d.cache.Get()

	out := make([]mcp.Tool, 0, len(builtins)+len(snap.Entries))
	for _, b := range builtins {
		out = append(out, mcp.Tool{
			Name:        b.Name,
			Description: b.Description,
			InputSchema: b.Schema.JSONSchema(),
		})
	}
	for _, e := range snap.Entries {
		if !e.Dispatchable() {
			continue
		}
		if _, shadowed := d.builtins.Get(e.Descriptor.Name); shadowed {
			continue
		}
		s := e.Descriptor.InputSchema()
		out = append(out, mcp.Tool{
			Name:        e.Descriptor.Name,
			Description: e.Descriptor.Description,
			InputSchema: s.JSONSchema(),
		})
	}
	return out
}
