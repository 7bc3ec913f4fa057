package builtins

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/golovatskygroup/mcp-toolkit/internal/schema"
	"github.com/golovatskygroup/mcp-toolkit/internal/tool"
)

func encodingTools() []*tool.Builtin {
	return []*tool.Builtin{
		{
			Name:        "base64_encode",
			Description: "Encode text as base64",
			Category:    CategoryEncoding,
			Schema: props(map[string]schema.Parameter{
				"text":     text("Text to encode"),
				"url_safe": boolean("Use the URL-safe alphabet", false),
			}, "text"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return base64Encoding(flag(args, "url_safe")).EncodeToString([]byte(str(args, "text"))), nil
			},
		},
		{
			Name:        "base64_decode",
			Description: "Decode base64 to text",
			Category:    CategoryEncoding,
			Schema: props(map[string]schema.Parameter{
				"text":     text("base64 input"),
				"url_safe": boolean("Input uses the URL-safe alphabet", false),
			}, "text"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				in := strings.TrimSpace(str(args, "text"))
				enc := base64Encoding(flag(args, "url_safe"))
				out, err := enc.DecodeString(in)
				if err != nil {
					// Accept unpadded input as well.
					out, err = enc.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(in, "="))
				}
				if err != nil {
					return nil, invalidf("not valid base64: %v", err)
				}
				return string(out), nil
			},
		},
		{
			Name:        "url_encode",
			Description: "Percent-encode text for use in a URL",
			Category:    CategoryEncoding,
			Schema: props(map[string]schema.Parameter{
				"text": text("Text to encode"),
				"mode": oneOf("query escapes spaces as '+', path as '%20'", "query", "query", "path"),
			}, "text"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				if str(args, "mode") == "path" {
					return url.PathEscape(str(args, "text")), nil
				}
				return url.QueryEscape(str(args, "text")), nil
			},
		},
		{
			Name:        "url_decode",
			Description: "Decode percent-encoded text",
			Category:    CategoryEncoding,
			Schema: props(map[string]schema.Parameter{
				"text": text("Encoded text"),
				"mode": oneOf("query treats '+' as space, path keeps it", "query", "query", "path"),
			}, "text"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				unescape := url.QueryUnescape
				if str(args, "mode") == "path" {
					unescape = url.PathUnescape
				}
				out, err := unescape(str(args, "text"))
				if err != nil {
					return nil, invalidf("%v", err)
				}
				return out, nil
			},
		},
		{
			Name:        "hex_encode",
			Description: "Encode text as lowercase hex",
			Category:    CategoryEncoding,
			Schema:      props(map[string]schema.Parameter{"text": text("Text to encode")}, "text"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return hex.EncodeToString([]byte(str(args, "text"))), nil
			},
		},
		{
			Name:        "hex_decode",
			Description: "Decode hex to text",
			Category:    CategoryEncoding,
			Schema:      props(map[string]schema.Parameter{"text": text("Hex input")}, "text"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				out, err := hex.DecodeString(strings.TrimSpace(str(args, "text")))
				if err != nil {
					return nil, invalidf("not valid hex: %v", err)
				}
				return string(out), nil
			},
		},
		{
			Name:        "html_escape",
			Description: "Escape the HTML special characters <, >, &, ' and \"",
			Category:    CategoryEncoding,
			Schema:      props(map[string]schema.Parameter{"text": text("Text to escape")}, "text"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return html.EscapeString(str(args, "text")), nil
			},
		},
		{
			Name:        "html_unescape",
			Description: "Unescape HTML entities",
			Category:    CategoryEncoding,
			Schema:      props(map[string]schema.Parameter{"text": text("Text with entities")}, "text"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return html.UnescapeString(str(args, "text")), nil
			},
		},
		{
			Name:        "jwt_decode",
			Description: "Decode a JWT header and claims without verifying the signature",
			Category:    CategoryEncoding,
			Schema:      props(map[string]schema.Parameter{"token": text("Encoded JWT")}, "token"),
			Handler:     jwtDecode,
		},
		{
			Name:        "json_format",
			Description: "Pretty-print or minify a JSON document",
			Category:    CategoryEncoding,
			Schema: props(map[string]schema.Parameter{
				"json":      text("JSON document"),
				"minify":    boolean("Remove all insignificant whitespace", false),
				"sort_keys": boolean("Sort object keys", false),
			}, "json"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				in := []byte(str(args, "json"))
				if !json.Valid(in) {
					return nil, invalidf("not valid JSON")
				}
				if flag(args, "minify") {
					return string(pretty.Ugly(in)), nil
				}
				opts := *pretty.DefaultOptions
				opts.SortKeys = flag(args, "sort_keys")
				return strings.TrimRight(string(pretty.PrettyOptions(in, &opts)), "\n"), nil
			},
		},
		{
			Name:        "json_query",
			Description: "Extract a value from a JSON document with a GJSON path such as users.#.name",
			Category:    CategoryEncoding,
			Schema: props(map[string]schema.Parameter{
				"json": text("JSON document"),
				"path": text("GJSON path expression"),
			}, "json", "path"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				doc := str(args, "json")
				if !gjson.Valid(doc) {
					return nil, invalidf("not valid JSON")
				}
				res := gjson.Get(doc, str(args, "path"))
				if !res.Exists() {
					return map[string]any{"found": false}, nil
				}
				return map[string]any{"found": true, "value": res.Value()}, nil
			},
		},
	}
}

func base64Encoding(urlSafe bool) *base64.Encoding {
	if urlSafe {
		return base64.URLEncoding
	}
	return base64.StdEncoding
}

func jwtDecode(ctx context.Context, args map[string]any) (any, error) {
	claims := jwt.MapClaims{}
	token, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(str(args, "token")), claims)
	if err != nil {
		return nil, invalidf("%v", err)
	}

	out := map[string]any{
		"header":   token.Header,
		"claims":   claims,
		"verified": false,
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out["expires_at"] = exp.UTC().Format(time.RFC3339)
	}
	return out, nil
}
