// Package registry keeps an in-process snapshot of the custom tool
// descriptors held by a tool.Store, refreshed lazily once it is older than a
// staleness window.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/golovatskygroup/mcp-toolkit/internal/metrics"
	"github.com/golovatskygroup/mcp-toolkit/internal/schema"
	"github.com/golovatskygroup/mcp-toolkit/internal/tool"
)

// DefaultStalenessWindow is the snapshot age after which the next
// EnsureFresh reloads from the store.
const DefaultStalenessWindow = 5 * time.Second

// Entry is one custom tool of a snapshot. Err is set when the descriptor could
// not be compiled; such entries are listed but never dispatched.
type Entry struct {
	Descriptor *tool.Descriptor
	Validator  *schema.Compiled
	Err        error
}

// Dispatchable reports whether the entry compiled.
func (e *Entry) Dispatchable() bool { return e.Err == nil }

// Snapshot is an immutable view of the store at FetchedAt.
type Snapshot struct {
	Entries   []*Entry
	FetchedAt time.Time

	byName map[string]*Entry
	seq    uint64
	epoch  uint64
}

// Lookup returns the dispatchable entry named name.
func (s *Snapshot) Lookup(name string) (*Entry, bool) {
	e, ok := s.byName[name]
	if !ok || !e.Dispatchable() {
		return nil, false
	}
	return e, true
}

// Find returns the entry named name whether or not it compiled.
func (s *Snapshot) Find(name string) (*Entry, bool) {
	e, ok := s.byName[name]
	return e, ok
}

// Dispatchable returns the names of the entries that compiled, in order.
func (s *Snapshot) Dispatchable() []string {
	var names []string
	for _, e := range s.Entries {
		if e.Dispatchable() {
			names = append(names, e.Descriptor.Name)
		}
	}
	return names
}

// Broken returns the entries that failed to compile.
func (s *Snapshot) Broken() []*Entry {
	var out []*Entry
	for _, e := range s.Entries {
		if !e.Dispatchable() {
			out = append(out, e)
		}
	}
	return out
}

// Cache mediates between a tool.Store and the dispatch path. Readers load the
// current snapshot without locking; refreshes build a new snapshot and swap it
// in under a short critical section.
type Cache struct {
	store   tool.Store
	window  time.Duration
	now     func() time.Time
	metrics *metrics.Metrics

	current atomic.Pointer[Snapshot]
	epoch   atomic.Uint64
	seq     atomic.Uint64
	swapMu  sync.Mutex
}

type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics records refresh outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates a cache over store. The first EnsureFresh loads the store; a
// window of zero refreshes on every EnsureFresh.
func New(store tool.Store, window time.Duration, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.current.Store(&Snapshot{byName: map[string]*Entry{}})
	return c
}

// Store returns the backing store.
func (c *Cache) Store() tool.Store { return c.store }

// Get returns the current snapshot, fresh or not. It never touches the store.
func (c *Cache) Get() *Snapshot {
	return c.current.Load()
}

// Fresh reports whether the current snapshot was loaded after the last
// Invalidate and is younger than the staleness window.
func (c *Cache) Fresh() bool {
	s := c.Get()
	if s.FetchedAt.IsZero() || s.epoch != c.epoch.Load() {
		return false
	}
	return c.now().Sub(s.FetchedAt) < c.window
}

// EnsureFresh returns a snapshot no older than the staleness window, loading
// the store when needed. A store failure is logged and the stale snapshot is
// returned instead.
func (c *Cache) EnsureFresh(ctx context.Context) *Snapshot {
	if c.Fresh() {
		return c.Get()
	}
	s, err := c.Refresh(ctx)
	if err != nil {
		stale := c.Get()
		log.Warn().Err(err).
			Time("fetched_at", stale.FetchedAt).
			Int("tools", len(stale.Entries)).
			Msg("registry refresh failed, serving stale snapshot")
		return stale
	}
	return s
}

// Invalidate makes the next EnsureFresh reload regardless of snapshot age.
func (c *Cache) Invalidate() {
	c.epoch.Add(1)
}

// Refresh loads the store and installs the result. Concurrent refreshes may
// all hit the store; a refresh that started earlier never replaces a snapshot
// installed by one that started later.
func (c *Cache) Refresh(ctx context.Context) (*Snapshot, error) {
	seq := c.seq.Add(1)
	epoch := c.epoch.Load()

	descs, err := c.store.List(ctx)
	if err != nil {
		c.metrics.ObserveRefresh(err, 0, 0)
		return nil, fmt.Errorf("list custom tools: %w", err)
	}

	next := build(descs, c.now(), seq, epoch)

	c.swapMu.Lock()
	if cur := c.current.Load(); cur.seq < next.seq {
		c.current.Store(next)
	} else {
		next = cur
	}
	c.swapMu.Unlock()

	broken := next.Broken()
	c.metrics.ObserveRefresh(nil, len(next.Entries)-len(broken), len(broken))
	log.Debug().
		Int("tools", len(next.Entries)).
		Int("broken", len(broken)).
		Msg("registry refreshed")
	return next, nil
}

// Upsert writes d to the store and invalidates the snapshot so the caller's
// next read observes it.
func (c *Cache) Upsert(ctx context.Context, d *tool.Descriptor) error {
	if err := c.store.Upsert(ctx, d); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

// Delete removes name from the store and invalidates the snapshot.
func (c *Cache) Delete(ctx context.Context, name string) error {
	if err := c.store.Delete(ctx, name); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

func build(descs []*tool.Descriptor, now time.Time, seq, epoch uint64) *Snapshot {
	s := &Snapshot{
		Entries:   make([]*Entry, 0, len(descs)),
		FetchedAt: now,
		byName:    make(map[string]*Entry, len(descs)),
		seq:       seq,
		epoch:     epoch,
	}

	for _, d := range descs {
		if d == nil {
			continue
		}
		e := &Entry{Descriptor: d}
		if _, dup := s.byName[d.Name]; dup {
			e.Err = fmt.Errorf("duplicate tool name %q", d.Name)
			s.Entries = append(s.Entries, e)
			continue
		}
		e.Validator, e.Err = compile(d)
		if e.Err != nil {
			log.Debug().Err(e.Err).Str("tool", d.Name).Msg("custom tool excluded from dispatch")
		}
		s.byName[d.Name] = e
		s.Entries = append(s.Entries, e)
	}

	sort.SliceStable(s.Entries, func(i, j int) bool {
		return s.Entries[i].Descriptor.Name < s.Entries[j].Descriptor.Name
	})
	return s
}

func compile(d *tool.Descriptor) (*schema.Compiled, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	compiled, err := schema.CompileSchema(d.InputSchema())
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}
