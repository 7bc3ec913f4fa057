package builtins

import (
	"context"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/golovatskygroup/mcp-toolkit/internal/schema"
	"github.com/golovatskygroup/mcp-toolkit/internal/tool"
)

func textTools() []*tool.Builtin {
	return []*tool.Builtin{
		{
			Name:        "text_case",
			Description: "Convert text to upper, lower, title, snake, camel or kebab case",
			Category:    CategoryText,
			Schema: props(map[string]schema.Parameter{
				"text": text("Input text"),
				"case": oneOf("Target case", "", "upper", "lower", "title", "snake", "camel", "kebab"),
			}, "text", "case"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return convertCase(str(args, "text"), str(args, "case")), nil
			},
		},
		{
			Name:        "text_reverse",
			Description: "Reverse text by character",
			Category:    CategoryText,
			Schema:      props(map[string]schema.Parameter{"text": text("Input text")}, "text"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				r := []rune(str(args, "text"))
				for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
					r[i], r[j] = r[j], r[i]
				}
				return string(r), nil
			},
		},
		{
			Name:        "text_stats",
			Description: "Count characters, bytes, words and lines in text",
			Category:    CategoryText,
			Schema:      props(map[string]schema.Parameter{"text": text("Input text")}, "text"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				s := str(args, "text")
				lines := 0
				if s != "" {
					lines = strings.Count(s, "\n") + 1
					if strings.HasSuffix(s, "\n") {
						lines--
					}
				}
				return map[string]any{
					"characters": utf8.RuneCountInString(s),
					"bytes":      len(s),
					"words":      len(strings.Fields(s)),
					"lines":      lines,
				}, nil
			},
		},
		{
			Name:        "slugify",
			Description: "Turn text into a lowercase URL slug, stripping accents",
			Category:    CategoryText,
			Schema: props(map[string]schema.Parameter{
				"text":      text("Input text"),
				"separator": oneOf("Word separator", "-", "-", "_"),
			}, "text"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return slugify(str(args, "text"), str(args, "separator")), nil
			},
		},
		{
			Name:        "html_to_text",
			Description: "Extract readable text from an HTML document",
			Category:    CategoryText,
			Schema:      props(map[string]schema.Parameter{"html": text("HTML source")}, "html"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return htmlToText(str(args, "html"))
			},
		},
		{
			Name:        "humanize_bytes",
			Description: "Format a byte count for humans, e.g. 83 MB or 79 MiB",
			Category:    CategoryText,
			Schema: props(map[string]schema.Parameter{
				"bytes":  {Type: schema.KindInteger, Description: "Byte count", Minimum: ptr(0)},
				"binary": boolean("Use powers of 1024 (KiB, MiB)", false),
			}, "bytes"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				n := uint64(intArg(args, "bytes"))
				if flag(args, "binary") {
					return humanize.IBytes(n), nil
				}
				return humanize.Bytes(n), nil
			},
		},
		{
			Name:        "glob_match",
			Description: "Test a path against a glob pattern; ** matches across directories",
			Category:    CategoryText,
			Schema: props(map[string]schema.Parameter{
				"pattern": text("Glob pattern, e.g. src/**/*.go"),
				"path":    text("Slash-separated path to test"),
			}, "pattern", "path"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				pattern := str(args, "pattern")
				if !doublestar.ValidatePattern(pattern) {
					return nil, invalidf("bad glob pattern %q", pattern)
				}
				ok, err := doublestar.Match(pattern, str(args, "path"))
				if err != nil {
					return nil, invalidf("%v", err)
				}
				return map[string]any{"match": ok}, nil
			},
		},
	}
}

func ptr(f float64) *float64 { return &f }

// words splits s on non-alphanumerics and lower-to-upper case changes, so
// "fooBar baz-qux" yields foo, Bar, baz, qux.
func words(s string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}
	var prev rune
	for _, r := range s {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
		prev = r
	}
	flush()
	return out
}

func convertCase(s, target string) string {
	lower := cases.Lower(language.Und)
	switch target {
	case "upper":
		return cases.Upper(language.Und).String(s)
	case "lower":
		return lower.String(s)
	case "title":
		return cases.Title(language.Und).String(s)
	}

	ws := words(s)
	for i, w := range ws {
		ws[i] = lower.String(w)
	}
	switch target {
	case "snake":
		return strings.Join(ws, "_")
	case "kebab":
		return strings.Join(ws, "-")
	case "camel":
		title := cases.Title(language.Und)
		for i := 1; i < len(ws); i++ {
			ws[i] = title.String(ws[i])
		}
		return strings.Join(ws, "")
	}
	return s
}

func slugify(s, sep string) string {
	if sep == "" {
		sep = "-"
	}
	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if r > unicode.MaxASCII {
			r = ' '
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return strings.Join(words(b.String()), sep)
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "section": true, "article": true,
	"header": true, "footer": true, "table": true, "ul": true, "ol": true, "pre": true,
}

func htmlToText(src string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(src))
	var lines []string
	var cur strings.Builder
	skip := 0

	newline := func() {
		if line := strings.Join(strings.Fields(cur.String()), " "); line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", err
			}
			newline()
			return strings.Join(lines, "\n"), nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case tag == "script" || tag == "style":
				if tt == html.StartTagToken {
					skip++
				}
			case blockElements[tag]:
				newline()
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case (tag == "script" || tag == "style") && skip > 0:
				skip--
			case blockElements[tag]:
				newline()
			}
		case html.TextToken:
			if skip == 0 {
				cur.Write(z.Text())
				cur.WriteByte(' ')
			}
		}
	}
}
