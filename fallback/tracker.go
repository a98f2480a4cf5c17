package fallback

import (
	"sync"
	"time"
)

type recurrenceKey struct {
	kind      Kind
	component string
}

type recurrenceEntry struct {
	count     int
	firstSeen time.Time
}

// recurrenceTracker counts failures per (kind, component) pair so repeated
// failures can be escalated instead of endlessly retried. The key space is
// bounded; when full, the oldest tracked pair is dropped.
type recurrenceTracker struct {
	mu      sync.Mutex
	entries map[recurrenceKey]recurrenceEntry
	maxKeys int
	now     func() time.Time
}

func newRecurrenceTracker(maxKeys int) *recurrenceTracker {
	if maxKeys <= 0 {
		maxKeys = 1024
	}
	return &recurrenceTracker{
		entries: make(map[recurrenceKey]recurrenceEntry),
		maxKeys: maxKeys,
		now:     time.Now,
	}
}

// Record increments the counter for the pair and returns the new count.
func (t *recurrenceTracker) Record(kind Kind, component string) int {
	key := recurrenceKey{kind: kind, component: component}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.entries[key]
	if !exists {
		if len(t.entries) >= t.maxKeys {
			t.evictOldest()
		}
		entry = recurrenceEntry{firstSeen: t.now()}
	}
	entry.count++
	t.entries[key] = entry
	return entry.count
}

// Count returns the current counter without incrementing.
func (t *recurrenceTracker) Count(kind Kind, component string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[recurrenceKey{kind: kind, component: component}].count
}

// Reset clears all counters. Exposed through Handler.Reset for operators
// clearing state after a fix ships.
func (t *recurrenceTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[recurrenceKey]recurrenceEntry)
}

// evictOldest removes the pair first seen longest ago. Callers hold t.mu.
func (t *recurrenceTracker) evictOldest() {
	var oldestKey recurrenceKey
	var oldestAt time.Time
	first := true
	for key, entry := range t.entries {
		if first || entry.firstSeen.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.firstSeen
			first = false
		}
	}
	if !first {
		delete(t.entries, oldestKey)
	}
}
