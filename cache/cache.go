package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/halcyondata/askdb/errors"
)

// SharedStore is the distributed cache tier behind the in-process tier.
// Implementations must return errors.ErrNotFound for missing keys.
type SharedStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Close() error
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits         uint64  `json:"hits"`
	Misses       uint64  `json:"misses"`
	LocalEntries int     `json:"local_entries"`
	HitRate      float64 `json:"hit_rate"`
}

type localEntry struct {
	value     []byte
	createdAt time.Time
	expiresAt time.Time
}

// Service is a two-tier cache: a bounded in-process map in front of an
// optional shared store. Reads check the local tier first, then the shared
// tier, promoting shared hits into the local tier. Writes go to both tiers.
// A nil or failing shared store degrades to local-only operation.
type Service struct {
	mu         sync.Mutex
	local      map[string]localEntry
	maxEntries int
	defaultTTL time.Duration
	shared     SharedStore
	now        func() time.Time
	logger     *zap.SugaredLogger

	hits   uint64
	misses uint64
}

// Option configures a Service.
type Option func(*Service)

// WithSharedStore attaches a distributed tier.
func WithSharedStore(store SharedStore) Option {
	return func(s *Service) { s.shared = store }
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source. Test use only.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a cache service. maxEntries bounds the local tier;
// defaultTTL applies when Set is called with ttl <= 0.
func NewService(maxEntries int, defaultTTL time.Duration, opts ...Option) *Service {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	s := &Service{
		local:      make(map[string]localEntry),
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		now:        time.Now,
		logger:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached value for key, or false if absent or expired.
// An expired local entry is treated as absent and removed.
func (s *Service) Get(ctx context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	entry, ok := s.local[key]
	if ok && s.now().Before(entry.expiresAt) {
		s.hits++
		value := entry.value
		s.mu.Unlock()
		return value, true
	}
	if ok {
		delete(s.local, key)
	}
	s.mu.Unlock()

	if s.shared != nil {
		value, err := s.shared.Get(ctx, key)
		if err == nil {
			s.mu.Lock()
			s.hits++
			s.storeLocal(key, value, s.defaultTTL)
			s.mu.Unlock()
			return value, true
		}
		if !errors.Is(err, errors.ErrNotFound) {
			s.logger.Warnw("Shared cache read failed", "key", key, "error", err)
		}
	}

	s.mu.Lock()
	s.misses++
	s.mu.Unlock()
	return nil, false
}

// Set stores value under key in both tiers. ttl <= 0 uses the default TTL.
func (s *Service) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	s.storeLocal(key, value, ttl)
	s.mu.Unlock()

	if s.shared != nil {
		if err := s.shared.Set(ctx, key, value, ttl); err != nil {
			s.logger.Warnw("Shared cache write failed", "key", key, "error", err)
		}
	}
}

// GetOrLoad returns the cached value for key, invoking loader on a miss and
// caching its result. Loader errors are returned without caching.
func (s *Service) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) ([]byte, error)) ([]byte, bool, error) {
	if value, ok := s.Get(ctx, key); ok {
		return value, true, nil
	}

	value, err := loader(ctx)
	if err != nil {
		return nil, false, err
	}

	s.Set(ctx, key, value, ttl)
	return value, false, nil
}

// Delete removes keys from both tiers.
func (s *Service) Delete(ctx context.Context, keys ...string) {
	s.mu.Lock()
	for _, key := range keys {
		delete(s.local, key)
	}
	s.mu.Unlock()

	if s.shared != nil && len(keys) > 0 {
		if err := s.shared.Delete(ctx, keys...); err != nil {
			s.logger.Warnw("Shared cache delete failed", "keys", keys, "error", err)
		}
	}
}

// DeleteByPattern removes all keys matching a glob pattern ("sql:*") from
// both tiers.
func (s *Service) DeleteByPattern(ctx context.Context, pattern string) {
	s.mu.Lock()
	for key := range s.local {
		if matchPattern(pattern, key) {
			delete(s.local, key)
		}
	}
	s.mu.Unlock()

	if s.shared != nil {
		if err := s.shared.DeleteByPattern(ctx, pattern); err != nil {
			s.logger.Warnw("Shared cache pattern delete failed", "pattern", pattern, "error", err)
		}
	}
}

// Stats returns a snapshot of the hit/miss counters.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Hits:         s.hits,
		Misses:       s.misses,
		LocalEntries: len(s.local),
	}
	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Close releases the shared tier, if any.
func (s *Service) Close() error {
	if s.shared != nil {
		return s.shared.Close()
	}
	return nil
}

// storeLocal inserts into the local tier, evicting the oldest-created entry
// when the tier is full. Callers must hold s.mu.
func (s *Service) storeLocal(key string, value []byte, ttl time.Duration) {
	if _, exists := s.local[key]; !exists && len(s.local) >= s.maxEntries {
		var oldestKey string
		var oldestAt time.Time
		for k, e := range s.local {
			if oldestKey == "" || e.createdAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.createdAt
			}
		}
		if oldestKey != "" {
			delete(s.local, oldestKey)
		}
	}

	now := s.now()
	s.local[key] = localEntry{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
}

// matchPattern implements the glob subset used for invalidation: literal
// text with '*' wildcards.
func matchPattern(pattern, key string) bool {
	if pattern == "*" {
		return true
	}
	return globMatch(pattern, key)
}

func globMatch(pattern, s string) bool {
	for len(pattern) > 0 {
		if pattern[0] == '*' {
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if pattern == "" {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if globMatch(pattern, s[i:]) {
					return true
				}
			}
			return false
		}
		if len(s) == 0 || pattern[0] != s[0] {
			return false
		}
		pattern = pattern[1:]
		s = s[1:]
	}
	return len(s) == 0
}
