package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golovatskygroup/mcp-toolkit/internal/registry"
	"github.com/golovatskygroup/mcp-toolkit/internal/schema"
	"github.com/golovatskygroup/mcp-toolkit/internal/tool"
)

// CategoryAdmin groups the builtins that inspect or change the registry.
const CategoryAdmin = "admin"

const searchDescriptionLimit = 160

func (d *Dispatcher) adminTools() []*tool.Builtin {
	format := schema.Parameter{Type: schema.KindString, Description: "Output format", Enum: []string{"text", "json"}, Default: "text"}

	return []*tool.Builtin{
		{
			Name:        "refresh_registry",
			Description: "Reload custom tools from the store now and report what is available",
			Category:    CategoryAdmin,
			Handler:     d.refreshRegistry,
		},
		{
			Name:        "list_custom_tools",
			Description: "List custom tools with their kind and compile status, including tools that failed to compile",
			Category:    CategoryAdmin,
			Schema:      schema.Schema{Properties: map[string]schema.Parameter{"format": format}},
			Handler:     d.listCustomTools,
		},
		{
			Name:        "describe_tool",
			Description: "Get the full description and input schema of a builtin or custom tool",
			Category:    CategoryAdmin,
			Schema: schema.Schema{
				Properties: map[string]schema.Parameter{
					"name": {Type: schema.KindString, Description: "Exact tool name"},
				},
				Required: []string{"name"},
			},
			Handler: d.describeTool,
		},
		{
			Name:        "search_tools",
			Description: "Search builtin and custom tools by keyword or category",
			Category:    CategoryAdmin,
			Schema: schema.Schema{
				Properties: map[string]schema.Parameter{
					"query": {Type: schema.KindString, Description: "Search query, e.g. 'hash' or 'base64'"},
					"category": {
						Type:        schema.KindString,
						Description: "Restrict to one category",
						Enum:        categoryNames(),
					},
					"limit":  {Type: schema.KindInteger, Description: "Max results", Default: 10.0, Minimum: ptr(1), Maximum: ptr(100)},
					"format": format,
				},
			},
			Handler: d.searchTools,
		},
		{
			Name:        "save_custom_tool",
			Description: "Create or replace a custom tool from a JSON or YAML descriptor document",
			Category:    CategoryAdmin,
			Schema: schema.Schema{
				Properties: map[string]schema.Parameter{
					"descriptor": {Type: schema.KindString, Description: "Descriptor document with name, description, kind, body_schema, query_schema, script or api"},
				},
				Required: []string{"descriptor"},
			},
			Handler:   d.saveCustomTool,
			Refreshes: true,
		},
		{
			Name:        "delete_custom_tool",
			Description: "Delete a custom tool by name",
			Category:    CategoryAdmin,
			Schema: schema.Schema{
				Properties: map[string]schema.Parameter{
					"name": {Type: schema.KindString, Description: "Custom tool name"},
				},
				Required: []string{"name"},
			},
			Handler:   d.deleteCustomTool,
			Refreshes: true,
		},
	}
}

func ptr(f float64) *float64 { return &f }

func categoryNames() []string {
	names := make([]string, 0, len(registry.Categories))
	for _, c := range registry.Categories {
		names = append(names, c.Name)
	}
	return names
}

func (d *Dispatcher) refreshRegistry(ctx context.Context, _ map[string]any) (any, error) {
	d.cache.Invalidate()
	snap := d.cache.EnsureFresh(ctx)

	var sb strings.Builder
	if !d.cache.Fresh() {
		fetched := "never"
		if !snap.FetchedAt.IsZero() {
			fetched = snap.FetchedAt.UTC().Format("2006-01-02 15:04:05 UTC")
		}
		fmt.Fprintf(&sb, "Store unavailable; still serving the snapshot loaded %s.\n", fetched)
	}

	broken := snap.Broken()
	fmt.Fprintf(&sb, "Registry refreshed: %d custom tools, %d dispatchable, %d with errors.",
		len(snap.Entries), len(snap.Entries)-len(broken), len(broken))
	for _, e := range broken {
		fmt.Fprintf(&sb, "\n- %s: %v", e.Descriptor.Name, e.Err)
	}

	d.toolsChanged()
	return sb.String(), nil
}

type customToolInfo struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	Shadowed    bool   `json:"shadowed_by_builtin,omitempty"`
}

func (d *Dispatcher) listCustomTools(ctx context.Context, args map[string]any) (any, error) {
	snap := d.cache.EnsureFresh(ctx)

	infos := make([]customToolInfo, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		info := customToolInfo{
			Name:        e.Descriptor.Name,
			Kind:        string(e.Descriptor.Kind),
			Description: e.Descriptor.Description,
			Status:      "ok",
		}
		if e.Err != nil {
			info.Status = "error"
			info.Error = e.Err.Error()
		}
		_, info.Shadowed = d.builtins.Get(info.Name)
		infos = append(infos, info)
	}

	if args["format"] == "json" {
		return map[string]any{"count": len(infos), "tools": infos}, nil
	}

	if len(infos) == 0 {
		return "No custom tools defined. Use save_custom_tool to add one.", nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Custom tools (%d):\n", len(infos))
	for _, info := range infos {
		fmt.Fprintf(&sb, "\n- **%s** [%s] %s", info.Name, info.Kind, info.Description)
		if info.Error != "" {
			fmt.Fprintf(&sb, "\n  error: %s", info.Error)
		}
		if info.Shadowed {
			sb.WriteString("\n  note: shadowed by a builtin of the same name")
		}
	}
	return sb.String(), nil
}

func (d *Dispatcher) describeTool(ctx context.Context, args map[string]any) (any, error) {
	name, _ := args["name"].(string)

	if b, ok := d.builtins.Get(name); ok {
		return formatTool(name, b.Description, "builtin", b.Schema, nil)
	}

	snap := d.cache.EnsureFresh(ctx)
	e, ok := snap.Find(name)
	if !ok {
		return nil, fmt.Errorf("%w. Use search_tools to find available tools", &NotFoundError{Name: name})
	}
	desc := e.Descriptor
	return formatTool(desc.Name, desc.Description, string(desc.Kind), desc.InputSchema(), e.Err)
}

func formatTool(name, description, kind string, s schema.Schema, compileErr error) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", name)
	fmt.Fprintf(&sb, "**Kind:** %s\n\n", kind)
	fmt.Fprintf(&sb, "**Description:** %s\n\n", description)
	if compileErr != nil {
		fmt.Fprintf(&sb, "**Error:** %v\n\n", compileErr)
	}

	// Indent keeps the document's key order: type, properties, required.
	var schemaJSON bytes.Buffer
	if err := json.Indent(&schemaJSON, s.JSONSchema(), "", "  "); err != nil {
		return "", fmt.Errorf("format input schema of %s: %w", name, err)
	}
	sb.WriteString("**Input Schema:**\n```json\n")
	sb.Write(schemaJSON.Bytes())
	sb.WriteString("\n```\n")
	return sb.String(), nil
}

func (d *Dispatcher) searchTools(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	category, _ := args["category"].(string)
	limit, _ := args["limit"].(int64)

	var summaries []registry.Summary
	for _, b := range d.builtins.List() {
		summaries = append(summaries, registry.Summary{Name: b.Name, Description: b.Description, Category: b.Category})
	}
	snap := d.cache.EnsureFresh(ctx)
	for _, e := range snap.Entries {
		if !e.Dispatchable() {
			continue
		}
		if _, shadowed := d.builtins.Get(e.Descriptor.Name); shadowed {
			continue
		}
		summaries = append(summaries, registry.Summary{
			Name:        e.Descriptor.Name,
			Description: e.Descriptor.Description,
			Category:    "custom",
		})
	}

	results := registry.Search(summaries, query, category, int(limit))

	if args["format"] == "json" {
		return map[string]any{
			"query":    query,
			"category": category,
			"count":    len(results),
			"tools":    results,
		}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d tools matching '%s':\n\n", len(results), query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. **%s** [%s]\n   %s\n\n", i+1, r.Name, r.Category,
			registry.TruncateDescription(r.Description, searchDescriptionLimit))
	}
	if len(results) == 0 {
		sb.WriteString("No tools found. Try a different query or browse categories:\n")
		for _, c := range registry.Categories {
			fmt.Fprintf(&sb, "- %s\n", c.Name)
		}
	}
	return sb.String(), nil
}

func (d *Dispatcher) saveCustomTool(ctx context.Context, args map[string]any) (any, error) {
	raw, _ := args["descriptor"].(string)
	desc, err := tool.ParseDescriptor([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid descriptor: %w", err)
	}
	if _, err := schema.CompileSchema(desc.InputSchema()); err != nil {
		return nil, fmt.Errorf("invalid descriptor %s: %w", desc.Name, err)
	}

	if err := d.cache.Upsert(ctx, desc); err != nil {
		return nil, fmt.Errorf("save %s: %w", desc.Name, err)
	}

	msg := fmt.Sprintf("Saved %s tool %q.", desc.Kind, desc.Name)
	if _, shadowed := d.builtins.Get(desc.Name); shadowed {
		msg += " Note: a builtin with the same name takes precedence, so this tool will not be dispatched."
	}
	if desc.Kind == tool.KindAPI && (desc.API == nil || strings.TrimSpace(desc.API.URL) == "") {
		msg += " Note: no api.url is set; calls will fail until one is configured."
	}
	return msg, nil
}

func (d *Dispatcher) deleteCustomTool(ctx context.Context, args map[string]any) (any, error) {
	name, _ := args["name"].(string)
	if err := d.cache.Delete(ctx, name); err != nil {
		if errors.Is(err, tool.ErrNotFound) {
			return nil, fmt.Errorf("custom tool %q not found", name)
		}
		return nil, fmt.Errorf("delete %s: %w", name, err)
	}
	return fmt.Sprintf("Deleted custom tool %q.", name), nil
}

func (d *Dispatcher) toolsChanged() {
	if fn := d.onChange.Load(); fn != nil && *fn != nil {
		(*fn)()
	}
}
