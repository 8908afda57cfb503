package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is the default in-process Store. Read-mostly, write-rarely:
// writes happen only on a miss. Concurrent misses on the same key may
// both recompute and both Set; each overwrites the key with an
// independently-correct value, so no lock is held across recomputation.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	clock   Clock
}

// NewMemory builds a memory store on the given clock. A nil clock means
// the system clock.
func NewMemory(clock Clock) *Memory {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Memory{
		entries: make(map[string]entry),
		clock:   clock,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if m.clock.Now().After(e.expiresAt) {
		// Expired entries are dropped lazily; there is no sweeper
		// because the key space is bounded to a handful of aggregates.
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	m.entries[key] = entry{
		value:     value,
		expiresAt: m.clock.Now().Add(ttl),
	}
	m.mu.Unlock()
}
