package registry

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Summary is the searchable view of one tool.
type Summary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Category groups related tools for search.
type Category struct {
	Name     string
	Keywords []string
}

// Categories are matched against the query in addition to names and
// descriptions. Custom tools fall into "custom".
var Categories = []Category{
	{Name: "hashing", Keywords: []string{"hash", "digest", "checksum", "md5", "sha", "hmac", "bcrypt", "password"}},
	{Name: "encoding", Keywords: []string{"encode", "decode", "base64", "hex", "url", "escape", "jwt", "json"}},
	{Name: "text", Keywords: []string{"text", "case", "string", "slug", "word", "html", "glob", "size"}},
	{Name: "validation", Keywords: []string{"valid", "check", "email", "ip", "uuid", "semver", "cron"}},
	{Name: "generators", Keywords: []string{"generate", "random", "id", "uuid", "ulid", "nanoid", "time", "now"}},
	{Name: "admin", Keywords: []string{"registry", "refresh", "custom", "save", "delete", "describe", "search"}},
	{Name: "custom", Keywords: []string{"custom", "script", "api"}},
}

// Search ranks tools against query. An empty category searches all tools;
// limit defaults to 10.
func Search(tools []Summary, query, category string, limit int) []Summary {
	if limit <= 0 {
		limit = 10
	}
	query = strings.ToLower(strings.TrimSpace(query))

	type scored struct {
		summary Summary
		score   int
	}
	var results []scored

	for _, t := range tools {
		if category != "" && !strings.EqualFold(t.Category, category) {
			continue
		}

		nameLower := strings.ToLower(t.Name)
		descLower := strings.ToLower(t.Description)

		score := 0
		if query == "" {
			score = 1
		}
		if query != "" && strings.Contains(nameLower, query) {
			score += 100
		}
		// Exact names and whole trailing segments (sha256 in hash_sha256)
		// outrank description hits on other tools.
		if query != "" && (nameLower == query || strings.HasSuffix(nameLower, "_"+query)) {
			score += 200
		}
		if query != "" && fuzzy.Match(query, nameLower) {
			score += 50
		}
		if query != "" && strings.Contains(descLower, query) {
			score += 30
		}
		if query != "" {
			for _, w := range strings.Fields(query) {
				if len(w) > 2 && fuzzy.MatchFold(w, t.Description) {
					score += 5
				}
			}
		}
		for _, cat := range Categories {
			if cat.Name != t.Category {
				continue
			}
			for _, kw := range cat.Keywords {
				if query != "" && strings.Contains(query, kw) {
					score += 20
				}
			}
		}

		if score > 0 {
			results = append(results, scored{t, score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].summary.Name < results[j].summary.Name
	})

	out := make([]Summary, 0, min(limit, len(results)))
	for i := 0; i < len(results) && i < limit; i++ {
		out = append(out, results[i].summary)
	}
	return out
}

// TruncateDescription shortens desc to maxLen bytes for search listings.
func TruncateDescription(desc string, maxLen int) string {
	if len(desc) <= maxLen {
		return desc
	}
	return desc[:maxLen-3] + "..."
}
