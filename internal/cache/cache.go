// Package cache is the time-boxed response memo in front of the four
// bounded aggregate queries. It is an injected capability, not a
// singleton: handlers receive a Store so tests can substitute a fake
// clock and a fake backend.
//
// There is no active invalidation. A cached value may be up to one TTL
// period stale; that bound is the whole consistency contract.
package cache

import (
	"context"
	"time"
)

// Cache keys and TTLs for the aggregate query classes. Per-title and
// per-episode detail reads are never cached: they must reflect admin
// edits immediately and their cardinality is unbounded.
const (
	KeyHome     = "home_data"
	KeyGenres   = "genres_list"
	KeySchedule = "schedule"

	TTLHome     = 60 * time.Second
	TTLGenres   = 24 * time.Hour
	TTLSchedule = 10 * time.Minute
)

// Store is the key-value memo contract. Values are opaque bytes (the
// serialized response) and are returned verbatim on a hit; the only
// freshness check is TTL expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Clock abstracts time for TTL decisions so tests are deterministic.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock used in production.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
