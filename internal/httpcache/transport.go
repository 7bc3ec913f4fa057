package httpcache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golovatskygroup/mcp-toolkit/internal/config"
	"github.com/golovatskygroup/mcp-toolkit/internal/metrics"
)

// Transport serves repeated GET requests from a Cache. Only 2xx responses
// are stored; everything else passes through so failures are never replayed.
type Transport struct {
	base    http.RoundTripper
	cache   *Cache
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewTransport wraps base according to cfg. When caching is disabled base is
// returned unchanged.
func NewTransport(base http.RoundTripper, cfg config.CacheConfig, m *metrics.Metrics) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if !cfg.Enabled {
		return base
	}
	return &Transport{
		base:    base,
		cache:   New(cfg.TTL, cfg.MaxEntries),
		metrics: m,
		now:     time.Now,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("httpcache: nil request")
	}
	if req.Method != http.MethodGet {
		return t.base.RoundTrip(req)
	}

	key := requestKey(req)
	ent, ok := t.cache.get(key)
	if ok && t.now().Sub(ent.storedAt) < t.cache.ttl {
		t.metrics.ObserveCacheLookup("hit")
		return cachedResponse(req, ent), nil
	}

	out := req
	if ok && ent.etag != "" {
		out = req.Clone(req.Context())
		out.Header.Set("If-None-Match", ent.etag)
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	if ok && resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		t.cache.touch(key, t.now())
		t.metrics.ObserveCacheLookup("revalidated")
		return cachedResponse(req, ent), nil
	}
	t.metrics.ObserveCacheLookup("miss")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, nil
	}

	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpcache: read response: %w", err)
	}
	stored := t.cache.put(key, resp.StatusCode, resp.Header, b, t.now())
	return responseWithBody(req, resp, b, stored.header), nil
}

func responseWithBody(req *http.Request, resp *http.Response, body []byte, header http.Header) *http.Response {
	return &http.Response{
		StatusCode:    resp.StatusCode,
		Status:        resp.Status,
		Header:        header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
		Proto:         resp.Proto,
		ProtoMajor:    resp.ProtoMajor,
		ProtoMinor:    resp.ProtoMinor,
	}
}

func cachedResponse(req *http.Request, ent entry) *http.Response {
	return &http.Response{
		StatusCode:    ent.status,
		Status:        fmt.Sprintf("%d %s", ent.status, http.StatusText(ent.status)),
		Header:        ent.header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(ent.body)),
		ContentLength: int64(len(ent.body)),
		Request:       req,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
	}
}
