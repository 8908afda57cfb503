package cache

import (
	"bytes"
	"context"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func TestMemoryMissOnUnknownKey(t *testing.T) {
	m := NewMemory(&fakeClock{now: time.Unix(1000, 0)})

	if _, ok := m.Get(context.Background(), "nope"); ok {
		t.Fatal("expected miss on unknown key")
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	m := NewMemory(clk)
	ctx := context.Background()

	want := []byte(`{"ongoing_series":[]}`)
	m.Set(ctx, KeyHome, want, TTLHome)

	got, ok := m.Get(ctx, KeyHome)
	if !ok {
		t.Fatal("expected hit after set")
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMemoryExpiry(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	m := NewMemory(clk)
	ctx := context.Background()

	m.Set(ctx, KeyHome, []byte("v"), TTLHome)

	// still valid exactly at the deadline
	clk.advance(TTLHome)
	if _, ok := m.Get(ctx, KeyHome); !ok {
		t.Fatal("entry at its deadline should still be served")
	}

	clk.advance(time.Nanosecond)
	if _, ok := m.Get(ctx, KeyHome); ok {
		t.Fatal("entry past its deadline should be a miss")
	}
	// and it stays gone
	if _, ok := m.Get(ctx, KeyHome); ok {
		t.Fatal("expired entry should have been dropped")
	}
}

func TestMemoryOverwriteResetsTTL(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	m := NewMemory(clk)
	ctx := context.Background()

	m.Set(ctx, KeySchedule, []byte("old"), TTLSchedule)
	clk.advance(TTLSchedule - time.Second)
	m.Set(ctx, KeySchedule, []byte("new"), TTLSchedule)

	clk.advance(2 * time.Second)
	got, ok := m.Get(ctx, KeySchedule)
	if !ok {
		t.Fatal("rewritten entry should still be live")
	}
	if string(got) != "new" {
		t.Fatalf("got %q, want %q", got, "new")
	}
}

func TestMemoryKeysAreIndependent(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	m := NewMemory(clk)
	ctx := context.Background()

	m.Set(ctx, KeyHome, []byte("h"), TTLHome)
	m.Set(ctx, KeyGenres, []byte("g"), TTLGenres)

	clk.advance(TTLHome + time.Minute)

	if _, ok := m.Get(ctx, KeyHome); ok {
		t.Fatal("home entry should be expired")
	}
	if _, ok := m.Get(ctx, KeyGenres); !ok {
		t.Fatal("genres entry should outlive the home entry")
	}
}
