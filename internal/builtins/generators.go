package builtins

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/oklog/ulid/v2"

	"github.com/golovatskygroup/mcp-toolkit/internal/schema"
	"github.com/golovatskygroup/mcp-toolkit/internal/tool"
)

const (
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars  = "0123456789"
	symbolChars = "!@#$%^&*()-_=+[]{}<>?"
)

func generatorTools() []*tool.Builtin {
	return []*tool.Builtin{
		{
			Name:        "generate_uuid",
			Description: "Generate a random (v4) or time-ordered (v7) UUID",
			Category:    CategoryGenerators,
			Schema: props(map[string]schema.Parameter{
				"version": oneOf("UUID version", "v4", "v4", "v7"),
			}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				if str(args, "version") == "v7" {
					id, err := uuid.NewV7()
					if err != nil {
						return nil, err
					}
					return id.String(), nil
				}
				return uuid.NewString(), nil
			},
		},
		{
			Name:        "generate_ulid",
			Description: "Generate a lexicographically sortable ULID",
			Category:    CategoryGenerators,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return ulid.Make().String(), nil
			},
		},
		{
			Name:        "generate_nanoid",
			Description: "Generate a URL-friendly NanoID",
			Category:    CategoryGenerators,
			Schema: props(map[string]schema.Parameter{
				"size":     integer("Length of the id", 21, 2, 128),
				"alphabet": text("Custom alphabet"),
			}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				size := int(intArg(args, "size"))
				if alphabet := str(args, "alphabet"); alphabet != "" {
					id, err := gonanoid.Generate(alphabet, size)
					if err != nil {
						return nil, invalidf("%v", err)
					}
					return id, nil
				}
				return gonanoid.New(size)
			},
		},
		{
			Name:        "generate_password",
			Description: "Generate a random password from a cryptographic source",
			Category:    CategoryGenerators,
			Schema: props(map[string]schema.Parameter{
				"length":  integer("Password length", 20, 4, 256),
				"symbols": boolean("Include symbols", true),
				"digits":  boolean("Include digits", true),
				"upper":   boolean("Include uppercase letters", true),
			}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				sets := []string{lowerChars}
				if flag(args, "upper") {
					sets = append(sets, upperChars)
				}
				if flag(args, "digits") {
					sets = append(sets, digitChars)
				}
				if flag(args, "symbols") {
					sets = append(sets, symbolChars)
				}
				return password(int(intArg(args, "length")), sets)
			},
		},
		{
			Name:        "random_number",
			Description: "Pick a uniformly random integer between min and max inclusive",
			Category:    CategoryGenerators,
			Schema: props(map[string]schema.Parameter{
				"min": {Type: schema.KindInteger, Description: "Lower bound", Default: 0.0},
				"max": {Type: schema.KindInteger, Description: "Upper bound", Default: 100.0},
			}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				lo, hi := intArg(args, "min"), intArg(args, "max")
				if lo > hi {
					return nil, invalidf("min %d is greater than max %d", lo, hi)
				}
				span := new(big.Int).Sub(big.NewInt(hi), big.NewInt(lo))
				n, err := rand.Int(rand.Reader, span.Add(span, big.NewInt(1)))
				if err != nil {
					return nil, err
				}
				return n.Add(n, big.NewInt(lo)).Int64(), nil
			},
		},
		{
			Name:        "current_time",
			Description: "Report the current time in a timezone and format",
			Category:    CategoryGenerators,
			Schema: props(map[string]schema.Parameter{
				"timezone": {Type: schema.KindString, Description: "IANA timezone name", Default: "UTC"},
				"format":   oneOf("Output format", "rfc3339", "rfc3339", "rfc1123", "unix", "unix_ms", "date", "time"),
			}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				loc, err := time.LoadLocation(str(args, "timezone"))
				if err != nil {
					return nil, invalidf("unknown timezone %q", str(args, "timezone"))
				}
				return formatTime(time.Now().In(loc), str(args, "format")), nil
			},
		},
	}
}

// password draws at least one character from every set, then fills the rest
// from their union and shuffles.
func password(length int, sets []string) (string, error) {
	if length < len(sets) {
		return "", invalidf("length %d is too short for %d character classes", length, len(sets))
	}
	all := strings.Join(sets, "")
	out := make([]byte, 0, length)
	for _, set := range sets {
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < length {
		c, err := pick(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func pick(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[n.Int64()], nil
}

func formatTime(t time.Time, format string) any {
	switch format {
	case "rfc1123":
		return t.Format(time.RFC1123)
	case "unix":
		return t.Unix()
	case "unix_ms":
		return t.UnixMilli()
	case "date":
		return t.Format(time.DateOnly)
	case "time":
		return t.Format(time.TimeOnly)
	default:
		return t.Format(time.RFC3339)
	}
}
