package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golovatskygroup/mcp-toolkit/internal/schema"
	"github.com/golovatskygroup/mcp-toolkit/internal/tool"
)

// countingStore is an in-memory tool.Store that counts List calls.
type countingStore struct {
	mu      sync.Mutex
	tools   map[string]*tool.Descriptor
	lists   int
	listErr error
	listFn  func(call int) ([]*tool.Descriptor, error)
}

func newCountingStore(descs ...*tool.Descriptor) *countingStore {
	s := &countingStore{tools: map[string]*tool.Descriptor{}}
	for _, d := range descs {
		s.tools[d.Name] = d
	}
	return s
}

func (s *countingStore) List(ctx context.Context) ([]*tool.Descriptor, error) {
	s.mu.Lock()
	s.lists++
	call := s.lists
	fn := s.listFn
	if s.listErr != nil {
		err := s.listErr
		s.mu.Unlock()
		return nil, err
	}
	out := make([]*tool.Descriptor, 0, len(s.tools))
	for _, d := range s.tools {
		out = append(out, d)
	}
	s.mu.Unlock()

	if fn != nil {
		return fn(call)
	}
	return out, nil
}

func (s *countingStore) Upsert(ctx context.Context, d *tool.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[d.Name] = d
	return nil
}

func (s *countingStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tools[name]; !ok {
		return tool.ErrNotFound
	}
	delete(s.tools, name)
	return nil
}

func (s *countingStore) listCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

func (s *countingStore) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func scriptTool(name string) *tool.Descriptor {
	return &tool.Descriptor{
		Name:        name,
		Description: "test tool " + name,
		Kind:        tool.KindScript,
		Script:      "return args",
		BodySchema: &schema.Schema{
			Properties: map[string]schema.Parameter{"name": {Type: schema.KindString}},
			Required:   []string{"name"},
		},
	}
}

func TestCache_GetNeverTouchesStore(t *testing.T) {
	store := newCountingStore(scriptTool("a"))
	c := New(store, time.Second)

	s := c.Get()
	assert.Empty(t, s.Entries)
	assert.Equal(t, 0, store.listCount())
	assert.False(t, c.Fresh())
}

func TestCache_EnsureFreshIsIdempotentWithinWindow(t *testing.T) {
	store := newCountingStore(scriptTool("a"))
	clock := newFakeClock()
	c := New(store, 5*time.Second, WithClock(clock.Now))
	ctx := context.Background()

	first := c.EnsureFresh(ctx)
	clock.Advance(4 * time.Second)
	second := c.EnsureFresh(ctx)

	assert.Equal(t, 1, store.listCount())
	assert.Same(t, first, second)
	assert.Equal(t, []string{"a"}, second.Dispatchable())
}

func TestCache_RefreshesWhenStale(t *testing.T) {
	store := newCountingStore(scriptTool("a"))
	clock := newFakeClock()
	c := New(store, 5*time.Second, WithClock(clock.Now))
	ctx := context.Background()

	c.EnsureFresh(ctx)
	require.NoError(t, store.Upsert(ctx, scriptTool("b")))

	clock.Advance(5 * time.Second)
	assert.False(t, c.Fresh())
	// Time passing alone does no I/O.
	assert.Equal(t, 1, store.listCount())

	s := c.EnsureFresh(ctx)
	assert.Equal(t, 2, store.listCount())
	assert.Equal(t, []string{"a", "b"}, s.Dispatchable())
	assert.Equal(t, clock.Now(), s.FetchedAt)
}

func TestCache_StoreFailureKeepsStaleSnapshot(t *testing.T) {
	store := newCountingStore(scriptTool("a"))
	clock := newFakeClock()
	c := New(store, time.Second, WithClock(clock.Now))
	ctx := context.Background()

	good := c.EnsureFresh(ctx)
	store.setErr(errors.New("database is locked"))
	clock.Advance(2 * time.Second)

	s := c.EnsureFresh(ctx)
	assert.Same(t, good, s)
	_, ok := s.Lookup("a")
	assert.True(t, ok)

	_, err := c.Refresh(ctx)
	assert.ErrorContains(t, err, "database is locked")
}

func TestCache_InvalidateForcesRefresh(t *testing.T) {
	store := newCountingStore()
	clock := newFakeClock()
	c := New(store, time.Hour, WithClock(clock.Now))
	ctx := context.Background()

	c.EnsureFresh(ctx)
	require.NoError(t, c.Upsert(ctx, scriptTool("fresh")))

	s := c.EnsureFresh(ctx)
	assert.Equal(t, 2, store.listCount())
	_, ok := s.Lookup("fresh")
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "fresh"))
	s = c.EnsureFresh(ctx)
	_, ok = s.Lookup("fresh")
	assert.False(t, ok)

	assert.ErrorIs(t, c.Delete(ctx, "fresh"), tool.ErrNotFound)
}

func TestCache_UpsertRoundTrip(t *testing.T) {
	store := newCountingStore()
	c := New(store, time.Hour)
	ctx := context.Background()

	want := scriptTool("echo")
	require.NoError(t, c.Upsert(ctx, want))

	e, ok := c.EnsureFresh(ctx).Lookup("echo")
	require.True(t, ok)
	assert.Equal(t, want, e.Descriptor)
}

func TestCache_CompileFailureExcludedFromDispatch(t *testing.T) {
	bad := scriptTool("bad")
	bad.BodySchema = &schema.Schema{
		Properties: map[string]schema.Parameter{"n": {Type: schema.KindNumber, Enum: []string{"1"}}},
	}
	undeclared := scriptTool("undeclared")
	undeclared.BodySchema = &schema.Schema{Required: []string{"ghost"}}

	store := newCountingStore(scriptTool("good"), bad, undeclared)
	c := New(store, time.Hour)

	s := c.EnsureFresh(context.Background())
	assert.Len(t, s.Entries, 3)
	assert.Equal(t, []string{"good"}, s.Dispatchable())

	_, ok := s.Lookup("bad")
	assert.False(t, ok)
	e, ok := s.Find("bad")
	require.True(t, ok)
	assert.Error(t, e.Err)
	assert.Len(t, s.Broken(), 2)
}

func TestCache_InvalidateDuringRefreshDoesNotSatisfyWriter(t *testing.T) {
	store := newCountingStore(scriptTool("a"))
	release := make(chan struct{})
	started := make(chan struct{})
	store.listFn = func(call int) ([]*tool.Descriptor, error) {
		if call == 1 {
			close(started)
			<-release
		}
		return []*tool.Descriptor{scriptTool("a")}, nil
	}
	c := New(store, time.Hour)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.EnsureFresh(ctx)
	}()
	<-started
	c.Invalidate()
	close(release)
	<-done

	assert.False(t, c.Fresh())
	c.EnsureFresh(ctx)
	assert.Equal(t, 2, store.listCount())
	assert.True(t, c.Fresh())
}

func TestCache_OlderRefreshNeverOverwritesNewer(t *testing.T) {
	store := newCountingStore()
	release := make(chan struct{})
	started := make(chan struct{})
	store.listFn = func(call int) ([]*tool.Descriptor, error) {
		if call == 1 {
			close(started)
			<-release
			return []*tool.Descriptor{scriptTool("old")}, nil
		}
		return []*tool.Descriptor{scriptTool("new")}, nil
	}
	c := New(store, time.Hour)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Refresh(ctx)
	}()
	<-started

	s, err := c.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, s.Dispatchable())

	close(release)
	<-done
	assert.Equal(t, []string{"new"}, c.Get().Dispatchable())
}

func TestCache_ConcurrentReaders(t *testing.T) {
	store := newCountingStore(scriptTool("a"), scriptTool("b"))
	c := New(store, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				s := c.EnsureFresh(ctx)
				assert.Len(t, s.Entries, 2)
			}
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, store.listCount(), 1)
}
