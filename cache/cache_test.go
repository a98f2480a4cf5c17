package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyondata/askdb/errors"
)

// fakeSharedStore is an in-memory SharedStore for exercising the two-tier
// read path without a real Redis.
type fakeSharedStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	gets   int
	sets   int
	failed bool
}

func newFakeSharedStore() *fakeSharedStore {
	return &fakeSharedStore{data: make(map[string][]byte)}
}

func (f *fakeSharedStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.failed {
		return nil, errors.New("shared store down")
	}
	value, ok := f.data[key]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return value, nil
}

func (f *fakeSharedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.failed {
		return errors.New("shared store down")
	}
	f.data[key] = value
	return nil
}

func (f *fakeSharedStore) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeSharedStore) DeleteByPattern(ctx context.Context, pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.data {
		if matchPattern(pattern, key) {
			delete(f.data, key)
		}
	}
	return nil
}

func (f *fakeSharedStore) Close() error { return nil }

func TestServiceLocalTier(t *testing.T) {
	ctx := context.Background()
	svc := NewService(10, time.Minute)

	_, ok := svc.Get(ctx, "sql:abc")
	assert.False(t, ok)

	svc.Set(ctx, "sql:abc", []byte("result"), 0)

	value, ok := svc.Get(ctx, "sql:abc")
	require.True(t, ok)
	assert.Equal(t, []byte("result"), value)

	stats := svc.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
}

func TestServiceExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := now
	svc := NewService(10, time.Minute, WithClock(func() time.Time { return clock }))

	svc.Set(ctx, "k", []byte("v"), 10*time.Second)

	_, ok := svc.Get(ctx, "k")
	assert.True(t, ok)

	// Advance past the TTL; the entry must read as absent.
	clock = now.Add(11 * time.Second)
	_, ok = svc.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, svc.Stats().LocalEntries)
}

func TestServiceEvictsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := now
	svc := NewService(2, time.Minute, WithClock(func() time.Time { return clock }))

	svc.Set(ctx, "first", []byte("1"), 0)
	clock = now.Add(time.Second)
	svc.Set(ctx, "second", []byte("2"), 0)
	clock = now.Add(2 * time.Second)
	svc.Set(ctx, "third", []byte("3"), 0)

	_, ok := svc.Get(ctx, "first")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = svc.Get(ctx, "second")
	assert.True(t, ok)
	_, ok = svc.Get(ctx, "third")
	assert.True(t, ok)
}

func TestServiceSharedTierPromotion(t *testing.T) {
	ctx := context.Background()
	shared := newFakeSharedStore()
	shared.data["sql:warm"] = []byte("from-shared")

	svc := NewService(10, time.Minute, WithSharedStore(shared))

	value, ok := svc.Get(ctx, "sql:warm")
	require.True(t, ok)
	assert.Equal(t, []byte("from-shared"), value)
	assert.Equal(t, 1, shared.gets)

	// Second read must be served from the local tier.
	_, ok = svc.Get(ctx, "sql:warm")
	assert.True(t, ok)
	assert.Equal(t, 1, shared.gets)
}

func TestServiceWritesBothTiers(t *testing.T) {
	ctx := context.Background()
	shared := newFakeSharedStore()
	svc := NewService(10, time.Minute, WithSharedStore(shared))

	svc.Set(ctx, "k", []byte("v"), time.Minute)
	assert.Equal(t, 1, shared.sets)
	assert.Equal(t, []byte("v"), shared.data["k"])
}

func TestServiceDegradesWhenSharedFails(t *testing.T) {
	ctx := context.Background()
	shared := newFakeSharedStore()
	shared.failed = true
	svc := NewService(10, time.Minute, WithSharedStore(shared))

	svc.Set(ctx, "k", []byte("v"), time.Minute)

	value, ok := svc.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), value)
}

func TestServiceGetOrLoad(t *testing.T) {
	ctx := context.Background()
	svc := NewService(10, time.Minute)

	calls := 0
	loader := func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte("loaded"), nil
	}

	value, cached, err := svc.GetOrLoad(ctx, "k", time.Minute, loader)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []byte("loaded"), value)

	value, cached, err = svc.GetOrLoad(ctx, "k", time.Minute, loader)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, []byte("loaded"), value)
	assert.Equal(t, 1, calls)

	_, _, err = svc.GetOrLoad(ctx, "err", time.Minute, func(ctx context.Context) ([]byte, error) {
		return nil, errors.New("loader failed")
	})
	assert.Error(t, err)
	_, ok := svc.Get(ctx, "err")
	assert.False(t, ok, "loader errors must not be cached")
}

func TestServiceDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	shared := newFakeSharedStore()
	svc := NewService(10, time.Minute, WithSharedStore(shared))

	svc.Set(ctx, "sql:1", []byte("a"), 0)
	svc.Set(ctx, "sql:2", []byte("b"), 0)
	svc.Set(ctx, "roles:alice", []byte("c"), 0)

	svc.DeleteByPattern(ctx, "sql:*")

	_, ok := svc.Get(ctx, "sql:1")
	assert.False(t, ok)
	_, ok = svc.Get(ctx, "sql:2")
	assert.False(t, ok)
	_, ok = svc.Get(ctx, "roles:alice")
	assert.True(t, ok)

	_, sharedHas := shared.data["sql:1"]
	assert.False(t, sharedHas)
}

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"*", "anything", true},
		{"sql:*", "sql:abc", true},
		{"sql:*", "roles:abc", false},
		{"roles:*:admin", "roles:alice:admin", true},
		{"roles:*:admin", "roles:alice:viewer", false},
		{"exact", "exact", true},
		{"exact", "exactly", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchPattern(tc.pattern, tc.key), "pattern=%s key=%s", tc.pattern, tc.key)
	}
}
