package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golovatskygroup/mcp-toolkit/pkg/mcp"
)

// Custom tool descriptors are readable as resources so clients can fetch and
// edit the stored definition of a tool.
const descriptorScheme = "tool://"

type listResourcesResult struct {
	Resources []resource `json:"resources"`
}

type resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

type readResourceParams struct {
	URI string `json:"uri"`
}

type readResourceResult struct {
	Contents []mcp.ContentBlock `json:"contents"`
}

func descriptorURI(name string) string { return descriptorScheme + name }

func parseDescriptorURI(uri string) (string, bool) {
	name, ok := strings.CutPrefix(uri, descriptorScheme)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

func (s *Server) handleListResources(ctx context.Context, req *mcp.Request) *mcp.Response {
	snap := s.disp.Cache().EnsureFresh(ctx)

	res := make([]resource, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		res = append(res, resource{
			URI:         descriptorURI(e.Descriptor.Name),
			Name:        e.Descriptor.Name,
			Description: e.Descriptor.Description,
			MimeType:    "application/json",
		})
	}
	return respond(req, listResourcesResult{Resources: res})
}

func (s *Server) handleReadResource(ctx context.Context, req *mcp.Request) *mcp.Response {
	var params readResourceParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InvalidParams, "Invalid params: "+err.Error())
	}
	name, ok := parseDescriptorURI(params.URI)
	if !ok {
		return mcp.NewErrorResponse(req.ID, mcp.InvalidParams, fmt.Sprintf("Unsupported resource URI: %s", params.URI))
	}

	e, ok := s.disp.Cache().EnsureFresh(ctx).Find(name)
	if !ok {
		return mcp.NewErrorResponse(req.ID, mcp.InvalidParams, "Resource not found")
	}

	b, err := json.MarshalIndent(e.Descriptor, "", "  ")
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InternalError, err.Error())
	}
	result := readResourceResult{Contents: []mcp.ContentBlock{{
		Type:     "text",
		Text:     string(b),
		MimeType: "application/json",
		URI:      params.URI,
	}}}
	return respond(req, result)
}
