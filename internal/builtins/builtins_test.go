package builtins

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golovatskygroup/mcp-toolkit/internal/tool"
)

func catalog(t *testing.T) *tool.BuiltinSet {
	t.Helper()
	set, err := tool.NewBuiltinSet(All()...)
	require.NoError(t, err)
	return set
}

// call validates args through the builtin's schema, as the dispatcher does,
// and runs the handler.
func call(t *testing.T, name string, args map[string]any) (any, error) {
	t.Helper()
	b, ok := catalog(t).Get(name)
	require.True(t, ok, "builtin %s not registered", name)
	typed, err := b.Validator().Apply(args)
	if err != nil {
		return nil, err
	}
	return b.Handler(context.Background(), typed)
}

func mustCall(t *testing.T, name string, args map[string]any) any {
	t.Helper()
	out, err := call(t, name, args)
	require.NoError(t, err)
	return out
}

func TestCatalog_CompilesAndIsCategorized(t *testing.T) {
	set := catalog(t)
	assert.GreaterOrEqual(t, set.Len(), 35)

	categories := map[string]bool{
		CategoryHashing: true, CategoryEncoding: true, CategoryText: true,
		CategoryValidation: true, CategoryGenerators: true,
	}
	for _, b := range set.List() {
		assert.True(t, tool.IsValidName(b.Name), b.Name)
		assert.True(t, categories[b.Category], "%s has category %q", b.Name, b.Category)
		assert.NotEmpty(t, b.Description, b.Name)
		assert.False(t, b.Refreshes, b.Name)
	}
}

func TestHashing(t *testing.T) {
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		mustCall(t, "hash_sha256", map[string]any{"text": "hello"}))
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592",
		mustCall(t, "hash_md5", map[string]any{"text": "hello"}))
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d",
		mustCall(t, "hash_sha1", map[string]any{"text": "hello"}))
	assert.Equal(t, "LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ=",
		mustCall(t, "hash_sha256", map[string]any{"text": "hello", "encoding": "base64"}))

	// RFC 4231 test case 2.
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
		mustCall(t, "hmac_sha256", map[string]any{"text": "what do ya want for nothing?", "key": "Jefe"}))

	_, err := call(t, "hash_sha256", map[string]any{"encoding": "hex"})
	assert.ErrorContains(t, err, "text")
}

func TestBcrypt(t *testing.T) {
	hash := mustCall(t, "hash_bcrypt", map[string]any{"password": "s3cret", "cost": 4}).(string)
	assert.True(t, strings.HasPrefix(hash, "$2a$04$"))

	assert.Equal(t, map[string]any{"match": true},
		mustCall(t, "bcrypt_verify", map[string]any{"password": "s3cret", "hash": hash}))
	assert.Equal(t, map[string]any{"match": false},
		mustCall(t, "bcrypt_verify", map[string]any{"password": "wrong", "hash": hash}))

	_, err := call(t, "bcrypt_verify", map[string]any{"password": "x", "hash": "not-a-hash"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = call(t, "hash_bcrypt", map[string]any{"password": "x", "cost": 40})
	assert.Error(t, err)
}

func TestEncoding(t *testing.T) {
	assert.Equal(t, "aGk/Pw==", mustCall(t, "base64_encode", map[string]any{"text": "hi??"}))
	assert.Equal(t, "aGk_Pw==", mustCall(t, "base64_encode", map[string]any{"text": "hi??", "url_safe": true}))
	assert.Equal(t, "hi??", mustCall(t, "base64_decode", map[string]any{"text": "aGk/Pw=="}))
	assert.Equal(t, "hi??", mustCall(t, "base64_decode", map[string]any{"text": "aGk_Pw", "url_safe": true}))

	_, err := call(t, "base64_decode", map[string]any{"text": "***"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, "a+b%26c", mustCall(t, "url_encode", map[string]any{"text": "a b&c"}))
	assert.Equal(t, "a%20b&c", mustCall(t, "url_encode", map[string]any{"text": "a b&c", "mode": "path"}))
	assert.Equal(t, "a b&c", mustCall(t, "url_decode", map[string]any{"text": "a+b%26c"}))

	assert.Equal(t, "6869", mustCall(t, "hex_encode", map[string]any{"text": "hi"}))
	assert.Equal(t, "hi", mustCall(t, "hex_decode", map[string]any{"text": "6869"}))
	_, err = call(t, "hex_decode", map[string]any{"text": "zz"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, "&lt;b&gt;&amp;", mustCall(t, "html_escape", map[string]any{"text": "<b>&"}))
	assert.Equal(t, "<b>&", mustCall(t, "html_unescape", map[string]any{"text": "&lt;b&gt;&amp;"}))
}

func TestJWTDecode(t *testing.T) {
	// {"alg":"HS256","typ":"JWT"}.{"sub":"1234567890","name":"John Doe","iat":1516239022}
	token := "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9." +
		"eyJzdWIiOiIxMjM0NTY3ODkwIiwibmFtZSI6IkpvaG4gRG9lIiwiaWF0IjoxNTE2MjM5MDIyfQ." +
		"SflKxwRJSMeKKF2QT4fwpMeJf36POk6yJV_adQssw5c"

	out := mustCall(t, "jwt_decode", map[string]any{"token": token}).(map[string]any)
	assert.Equal(t, "HS256", out["header"].(map[string]any)["alg"])
	claims, ok := out["claims"].(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, "John Doe", claims["name"])
	assert.Equal(t, false, out["verified"])

	_, err := call(t, "jwt_decode", map[string]any{"token": "not.a.jwt"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestJSONTools(t *testing.T) {
	assert.Equal(t, `{"a":1,"b":[1,2]}`,
		mustCall(t, "json_format", map[string]any{"json": "{ \"a\": 1,\n \"b\": [1, 2] }", "minify": true}))
	assert.Equal(t, "{\n  \"a\": 1,\n  \"b\": 2\n}",
		mustCall(t, "json_format", map[string]any{"json": `{"b":2,"a":1}`, "sort_keys": true}))

	_, err := call(t, "json_format", map[string]any{"json": "{"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	doc := `{"users":[{"name":"ada"},{"name":"linus"}]}`
	assert.Equal(t, map[string]any{"found": true, "value": []any{"ada", "linus"}},
		mustCall(t, "json_query", map[string]any{"json": doc, "path": "users.#.name"}))
	assert.Equal(t, map[string]any{"found": false},
		mustCall(t, "json_query", map[string]any{"json": doc, "path": "groups"}))
}

func TestTextCase(t *testing.T) {
	cases := map[string]string{
		"upper": "HELLO WORLD WIDE",
		"lower": "hello world wide",
		"title": "Hello World Wide",
		"snake": "hello_world_wide",
		"kebab": "hello-world-wide",
		"camel": "helloWorldWide",
	}
	for target, want := range cases {
		t.Run(target, func(t *testing.T) {
			assert.Equal(t, want, mustCall(t, "text_case", map[string]any{"text": "hello World wide", "case": target}))
		})
	}

	assert.Equal(t, "parse_http_response", convertCase("parseHttpResponse", "snake"))

	_, err := call(t, "text_case", map[string]any{"text": "x", "case": "sponge"})
	assert.Error(t, err)
}

func TestTextTools(t *testing.T) {
	assert.Equal(t, "olleh ☃", mustCall(t, "text_reverse", map[string]any{"text": "☃ hello"}))

	assert.Equal(t, map[string]any{"characters": 13, "bytes": 15, "words": 3, "lines": 2},
		mustCall(t, "text_stats", map[string]any{"text": "one two\n☃ree\n"}))

	assert.Equal(t, "creme-brulee-a-la-carte", mustCall(t, "slugify", map[string]any{"text": "Crème Brûlée: à la carte!"}))
	assert.Equal(t, "hello_world", mustCall(t, "slugify", map[string]any{"text": "Hello, World", "separator": "_"}))

	html := `<html><head><style>p{color:red}</style><script>alert(1)</script></head>
		<body><h1>Title</h1><p>First  &amp; <b>bold</b></p><ul><li>one</li><li>two</li></ul></body></html>`
	assert.Equal(t, "Title\nFirst & bold\none\ntwo", mustCall(t, "html_to_text", map[string]any{"html": html}))

	assert.Equal(t, "83 MB", mustCall(t, "humanize_bytes", map[string]any{"bytes": 82854982}))
	assert.Equal(t, "79 MiB", mustCall(t, "humanize_bytes", map[string]any{"bytes": 82854982, "binary": true}))
	_, err := call(t, "humanize_bytes", map[string]any{"bytes": -1})
	assert.Error(t, err)

	assert.Equal(t, map[string]any{"match": true},
		mustCall(t, "glob_match", map[string]any{"pattern": "src/**/*.go", "path": "src/a/b/main.go"}))
	assert.Equal(t, map[string]any{"match": false},
		mustCall(t, "glob_match", map[string]any{"pattern": "src/*.go", "path": "src/a/main.go"}))
	_, err = call(t, "glob_match", map[string]any{"pattern": "src/[", "path": "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidators(t *testing.T) {
	valid := func(name, param, value string) bool {
		out := mustCall(t, name, map[string]any{param: value}).(map[string]any)
		return out["valid"].(bool)
	}

	assert.True(t, valid("validate_email", "email", "ada@example.com"))
	assert.False(t, valid("validate_email", "email", "ada@"))
	assert.True(t, valid("validate_url", "url", "https://example.com/a?b=c"))
	assert.False(t, valid("validate_url", "url", "not a url"))
	assert.True(t, valid("validate_uuid", "uuid", "f47ac10b-58cc-4372-a567-0e02b2c3d479"))
	assert.False(t, valid("validate_uuid", "uuid", "f47ac10b"))
	assert.True(t, valid("validate_json", "json", `{"a":[1,2]}`))
	assert.False(t, valid("validate_json", "json", `{"a":`))

	ip := mustCall(t, "validate_ip", map[string]any{"ip": "10.0.0.1"}).(map[string]any)
	assert.Equal(t, true, ip["valid"])
	assert.Equal(t, "v4", ip["version"])
	assert.Equal(t, true, ip["private"])

	ip = mustCall(t, "validate_ip", map[string]any{"ip": "::1", "version": "v4"}).(map[string]any)
	assert.Equal(t, false, ip["valid"])
	assert.Equal(t, true, ip["loopback"])

	uid := mustCall(t, "validate_uuid", map[string]any{"uuid": "f47ac10b-58cc-4372-a567-0e02b2c3d479"}).(map[string]any)
	assert.Equal(t, 4, uid["version"])
}

func TestSemverCompare(t *testing.T) {
	out := mustCall(t, "semver_compare", map[string]any{"version": "1.2.3", "other": "v1.10.0"}).(map[string]any)
	assert.Equal(t, -1, out["comparison"])

	out = mustCall(t, "semver_compare", map[string]any{"version": "1.2.3", "constraint": ">=1.2, <2"}).(map[string]any)
	assert.Equal(t, true, out["satisfies"])

	_, err := call(t, "semver_compare", map[string]any{"version": "1.2.3"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = call(t, "semver_compare", map[string]any{"version": "banana", "other": "1.0.0"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCronNext(t *testing.T) {
	out := mustCall(t, "cron_next", map[string]any{
		"expression": "*/15 * * * *",
		"from":       "2024-01-01T10:05:00Z",
		"count":      3,
	}).(map[string]any)
	assert.Equal(t, []string{"2024-01-01T10:15:00Z", "2024-01-01T10:30:00Z", "2024-01-01T10:45:00Z"}, out["next"])

	_, err := call(t, "cron_next", map[string]any{"expression": "61 * * * *"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGenerators(t *testing.T) {
	v4 := mustCall(t, "generate_uuid", nil).(string)
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-`, v4)
	v7 := mustCall(t, "generate_uuid", map[string]any{"version": "v7"}).(string)
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-`, v7)

	assert.Len(t, mustCall(t, "generate_ulid", nil), 26)
	assert.Len(t, mustCall(t, "generate_nanoid", nil), 21)
	assert.Regexp(t, `^[ab]{8}$`, mustCall(t, "generate_nanoid", map[string]any{"size": 8, "alphabet": "ab"}))

	pw := mustCall(t, "generate_password", map[string]any{"length": 32}).(string)
	assert.Len(t, pw, 32)
	for _, class := range []string{lowerChars, upperChars, digitChars, symbolChars} {
		assert.True(t, strings.ContainsAny(pw, class), "missing one of %q", class)
	}
	pw = mustCall(t, "generate_password", map[string]any{"length": 12, "symbols": false, "digits": false, "upper": false}).(string)
	assert.Regexp(t, regexp.MustCompile(`^[a-z]{12}$`), pw)

	for i := 0; i < 50; i++ {
		n := mustCall(t, "random_number", map[string]any{"min": 3, "max": 5}).(int64)
		assert.True(t, n >= 3 && n <= 5, "%d out of range", n)
	}
	_, err := call(t, "random_number", map[string]any{"min": 5, "max": 3})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, mustCall(t, "current_time", map[string]any{"format": "date"}))
	assert.IsType(t, int64(0), mustCall(t, "current_time", map[string]any{"format": "unix", "timezone": "Europe/Berlin"}))
	_, err = call(t, "current_time", map[string]any{"timezone": "Mars/Olympus"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
