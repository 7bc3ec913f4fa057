package builtins

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"hash"

	"golang.org/x/crypto/bcrypt"

	"github.com/golovatskygroup/mcp-toolkit/internal/schema"
	"github.com/golovatskygroup/mcp-toolkit/internal/tool"
)

func hashingTools() []*tool.Builtin {
	return []*tool.Builtin{
		digestTool("hash_md5", "MD5", md5.New),
		digestTool("hash_sha1", "SHA-1", sha1.New),
		digestTool("hash_sha256", "SHA-256", sha256.New),
		digestTool("hash_sha512", "SHA-512", sha512.New),
		{
			Name:        "hmac_sha256",
			Description: "Compute an HMAC-SHA256 signature of text with a secret key",
			Category:    CategoryHashing,
			Schema: props(map[string]schema.Parameter{
				"text":     text("Message to sign"),
				"key":      text("Secret key"),
				"encoding": oneOf("Output encoding", "hex", "hex", "base64"),
			}, "text", "key"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				mac := hmac.New(sha256.New, []byte(str(args, "key")))
				mac.Write([]byte(str(args, "text")))
				return encodeSum(mac.Sum(nil), str(args, "encoding")), nil
			},
		},
		{
			Name:        "hash_bcrypt",
			Description: "Hash a password with bcrypt",
			Category:    CategoryHashing,
			Schema: props(map[string]schema.Parameter{
				"password": text("Password to hash"),
				"cost":     integer("bcrypt cost factor", 10, 4, 14),
			}, "password"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				out, err := bcrypt.GenerateFromPassword([]byte(str(args, "password")), int(intArg(args, "cost")))
				if err != nil {
					if errors.Is(err, bcrypt.ErrPasswordTooLong) {
						return nil, invalidf("password is longer than 72 bytes")
					}
					return nil, err
				}
				return string(out), nil
			},
		},
		{
			Name:        "bcrypt_verify",
			Description: "Check a password against a bcrypt hash",
			Category:    CategoryHashing,
			Schema: props(map[string]schema.Parameter{
				"password": text("Candidate password"),
				"hash":     text("bcrypt hash"),
			}, "password", "hash"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				err := bcrypt.CompareHashAndPassword([]byte(str(args, "hash")), []byte(str(args, "password")))
				switch {
				case err == nil:
					return map[string]any{"match": true}, nil
				case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
					return map[string]any{"match": false}, nil
				default:
					return nil, invalidf("%v", err)
				}
			},
		},
	}
}

func digestTool(name, algo string, newHash func() hash.Hash) *tool.Builtin {
	return &tool.Builtin{
		Name:        name,
		Description: "Compute the " + algo + " digest of text",
		Category:    CategoryHashing,
		Schema: props(map[string]schema.Parameter{
			"text":     text("Input text"),
			"encoding": oneOf("Output encoding", "hex", "hex", "base64"),
		}, "text"),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			h := newHash()
			h.Write([]byte(str(args, "text")))
			return encodeSum(h.Sum(nil), str(args, "encoding")), nil
		},
	}
}

func encodeSum(sum []byte, encoding string) string {
	if encoding == "base64" {
		return base64.StdEncoding.EncodeToString(sum)
	}
	return hex.EncodeToString(sum)
}
