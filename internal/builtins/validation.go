package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"net/netip"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/golovatskygroup/mcp-toolkit/internal/schema"
	"github.com/golovatskygroup/mcp-toolkit/internal/tool"
)

// validate is goroutine-safe and caches its tag parsing.
var validate = validator.New()

func validationTools() []*tool.Builtin {
	return []*tool.Builtin{
		tagValidator("validate_email", "Check whether text is a syntactically valid email address", "email", "email"),
		tagValidator("validate_url", "Check whether text is an absolute URL", "url", "url"),
		{
			Name:        "validate_ip",
			Description: "Check whether text is an IPv4 or IPv6 address",
			Category:    CategoryValidation,
			Schema: props(map[string]schema.Parameter{
				"ip":      text("Address to check"),
				"version": oneOf("Require a specific version", "any", "any", "v4", "v6"),
			}, "ip"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				addr, err := netip.ParseAddr(strings.TrimSpace(str(args, "ip")))
				if err != nil {
					return map[string]any{"valid": false, "reason": err.Error()}, nil
				}
				version := "v6"
				if addr.Unmap().Is4() {
					version = "v4"
				}
				want := str(args, "version")
				return map[string]any{
					"valid":    want == "any" || want == version,
					"version":  version,
					"private":  addr.IsPrivate(),
					"loopback": addr.IsLoopback(),
				}, nil
			},
		},
		{
			Name:        "validate_uuid",
			Description: "Check whether text is a UUID and report its version",
			Category:    CategoryValidation,
			Schema:      props(map[string]schema.Parameter{"uuid": text("UUID to check")}, "uuid"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				id, err := uuid.Parse(strings.TrimSpace(str(args, "uuid")))
				if err != nil {
					return map[string]any{"valid": false, "reason": err.Error()}, nil
				}
				return map[string]any{
					"valid":   true,
					"version": int(id.Version()),
					"variant": id.Variant().String(),
				}, nil
			},
		},
		{
			Name:        "validate_json",
			Description: "Check whether text is well-formed JSON and locate the first syntax error",
			Category:    CategoryValidation,
			Schema:      props(map[string]schema.Parameter{"json": text("Document to check")}, "json"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				var v any
				err := json.Unmarshal([]byte(str(args, "json")), &v)
				if err == nil {
					return map[string]any{"valid": true}, nil
				}
				out := map[string]any{"valid": false, "reason": err.Error()}
				var syn *json.SyntaxError
				if errors.As(err, &syn) {
					out["offset"] = syn.Offset
				}
				return out, nil
			},
		},
		{
			Name:        "semver_compare",
			Description: "Compare two semantic versions, or check a version against a constraint such as >=1.2, <2",
			Category:    CategoryValidation,
			Schema: props(map[string]schema.Parameter{
				"version":    text("Version to test"),
				"other":      text("Version to compare against"),
				"constraint": text("Constraint expression"),
			}, "version"),
			Handler: semverCompare,
		},
		{
			Name:        "cron_next",
			Description: "Validate a standard five-field cron expression and list its next run times",
			Category:    CategoryValidation,
			Schema: props(map[string]schema.Parameter{
				"expression": text("Cron expression, e.g. */15 * * * * or @daily"),
				"count":      integer("Number of run times to return", 5, 1, 50),
				"from":       text("RFC 3339 start time; defaults to now"),
			}, "expression"),
			Handler: cronNext,
		},
	}
}

func tagValidator(name, desc, param, tag string) *tool.Builtin {
	return &tool.Builtin{
		Name:        name,
		Description: desc,
		Category:    CategoryValidation,
		Schema:      props(map[string]schema.Parameter{param: text("Value to check")}, param),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			if err := validate.Var(strings.TrimSpace(str(args, param)), "required,"+tag); err != nil {
				return map[string]any{"valid": false}, nil
			}
			return map[string]any{"valid": true}, nil
		},
	}
}

func semverCompare(ctx context.Context, args map[string]any) (any, error) {
	v, err := semver.NewVersion(str(args, "version"))
	if err != nil {
		return nil, invalidf("version: %v", err)
	}

	out := map[string]any{"version": v.String()}
	if other := str(args, "other"); other != "" {
		o, err := semver.NewVersion(other)
		if err != nil {
			return nil, invalidf("other: %v", err)
		}
		out["comparison"] = v.Compare(o)
	}
	if expr := str(args, "constraint"); expr != "" {
		c, err := semver.NewConstraint(expr)
		if err != nil {
			return nil, invalidf("constraint: %v", err)
		}
		out["satisfies"] = c.Check(v)
	}
	if len(out) == 1 {
		return nil, invalidf("one of other or constraint is required")
	}
	return out, nil
}

func cronNext(ctx context.Context, args map[string]any) (any, error) {
	sched, err := cron.ParseStandard(str(args, "expression"))
	if err != nil {
		return nil, invalidf("%v", err)
	}

	from := time.Now().UTC()
	if raw := str(args, "from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			return nil, invalidf("from: %v", err)
		}
	}

	count := int(intArg(args, "count"))
	runs := make([]string, 0, count)
	t := from
	for i := 0; i < count; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		runs = append(runs, t.Format(time.RFC3339))
	}
	return map[string]any{"next": runs}, nil
}
