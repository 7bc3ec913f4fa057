// Package httpcache is an in-memory LRU response cache for the GET requests
// issued by api tools, with ETag revalidation once an entry's TTL lapses.
package httpcache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultMaxEntries = 512

type entry struct {
	key      string
	status   int
	header   http.Header
	body     []byte
	etag     string
	storedAt time.Time
}

// Cache holds responses keyed by request fingerprint. Front of lru is most
// recently used.
type Cache struct {
	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
}

func New(ttl time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    map[string]*list.Element{},
		lru:        list.New(),
	}
}

func (c *Cache) get(key string) (entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	c.lru.MoveToFront(el)
	return el.Value.(entry), true
}

func (c *Cache) put(key string, status int, header http.Header, body []byte, storedAt time.Time) entry {
	ent := entry{
		key:      key,
		status:   status,
		header:   header.Clone(),
		body:     append([]byte(nil), body...),
		etag:     strings.TrimSpace(header.Get("ETag")),
		storedAt: storedAt,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value = ent
		c.lru.MoveToFront(el)
		return ent
	}
	c.entries[key] = c.lru.PushFront(ent)

	for c.lru.Len() > c.maxEntries {
		back := c.lru.Back()
		delete(c.entries, back.Value.(entry).key)
		c.lru.Remove(back)
	}
	return ent
}

func (c *Cache) touch(key string, storedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		ent := el.Value.(entry)
		ent.storedAt = storedAt
		el.Value = ent
		c.lru.MoveToFront(el)
	}
}

// Len returns the number of cached responses.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// requestKey identifies a request by URL and every header value, so tools
// with different credentials never share entries.
func requestKey(req *http.Request) string {
	names := make([]string, 0, len(req.Header))
	for k := range req.Header {
		names = append(names, k)
	}
	sort.Strings(names)

	sum := sha256.New()
	for _, k := range names {
		sum.Write([]byte(k))
		sum.Write([]byte{0})
		sum.Write([]byte(strings.Join(req.Header.Values(k), ",")))
		sum.Write([]byte{0})
	}
	return req.Method + " " + req.URL.String() + " " + hex.EncodeToString(sum.Sum(nil))
}
