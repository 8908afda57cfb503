package library

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"nekostream/internal/anime"
	"nekostream/pkg/apperr"
	"nekostream/pkg/database"
	"nekostream/pkg/models"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestToggleRoundTrip(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	ctx := context.Background()

	added, err := repo.Toggle(ctx, "u1", "frieren")
	if err != nil {
		t.Fatalf("toggle add: %v", err)
	}
	if !added {
		t.Fatal("first toggle should add")
	}

	ok, err := repo.Exists(ctx, "u1", "frieren")
	if err != nil || !ok {
		t.Fatalf("bookmark should exist after add: ok=%v err=%v", ok, err)
	}

	added, err = repo.Toggle(ctx, "u1", "frieren")
	if err != nil {
		t.Fatalf("toggle remove: %v", err)
	}
	if added {
		t.Fatal("second toggle should remove")
	}

	if ok, _ := repo.Exists(ctx, "u1", "frieren"); ok {
		t.Fatal("bookmark should be gone after remove")
	}
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, "u1", "frieren"); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := repo.Create(ctx, "u1", "frieren")
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("want Conflict, got %v", err)
	}
}

// Concurrent toggles on one fresh pair race the Exists check against
// the insert. The unique pair constraint lets exactly one create win;
// a toggle losing that race must observe Conflict and report "added",
// never an error, and at most one row may persist.
func TestToggleConcurrentAddsConflictAsSuccess(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	const workers = 16

	var (
		start sync.WaitGroup
		done  sync.WaitGroup
		mu    sync.Mutex
		adds  int
		errs  []error
	)
	start.Add(1)
	done.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer done.Done()
			start.Wait()
			added, err := repo.Toggle(ctx, "u1", "frieren")
			mu.Lock()
			if err != nil {
				errs = append(errs, err)
			}
			if added {
				adds++
			}
			mu.Unlock()
		}()
	}
	start.Done()
	done.Wait()

	if len(errs) != 0 {
		t.Fatalf("racing toggles must not error, got %v", errs)
	}
	if adds == 0 {
		t.Fatal("the first toggle on an absent pair must report added")
	}

	var rows int
	if err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookmarks WHERE user_id = ? AND anime_slug = ?
	`, "u1", "frieren").Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows > 1 {
		t.Fatalf("%d rows persisted for one pair, want at most 1", rows)
	}

	// membership agrees with the surviving row count
	exists, err := repo.Exists(ctx, "u1", "frieren")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists != (rows == 1) {
		t.Fatalf("exists=%v disagrees with %d rows", exists, rows)
	}
}

func TestBookmarksArePerUser(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	ctx := context.Background()

	if _, err := repo.Toggle(ctx, "u1", "frieren"); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	if ok, _ := repo.Exists(ctx, "u2", "frieren"); ok {
		t.Fatal("u2 should not see u1's bookmark")
	}
}

func TestListAnimesJoinsCanonicalTitles(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepo(db)
	animes := anime.NewRepo(db)
	ctx := context.Background()

	for _, a := range []models.Anime{
		{Slug: "frieren", Title: "Frieren", Info: models.AnimeInfo{Status: "Ongoing", Rating: "9.1"}},
		{Slug: "spy-family", Title: "SPY x FAMILY", Info: models.AnimeInfo{Status: "Completed"}},
	} {
		a := a
		if err := animes.Create(ctx, &a); err != nil {
			t.Fatalf("seed anime: %v", err)
		}
	}

	for _, slug := range []string{"frieren", "spy-family", "vanished-title"} {
		if err := repo.Create(ctx, "u1", slug); err != nil {
			t.Fatalf("bookmark %s: %v", slug, err)
		}
	}

	got, err := repo.ListAnimes(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// the bookmark pointing at a deleted title is silently dropped by
	// the join
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}

	bySlug := map[string]models.AnimeSummary{}
	for _, s := range got {
		bySlug[s.Slug] = s
	}
	if s, ok := bySlug["frieren"]; !ok || s.Rating != "9.1" || s.Status != "Ongoing" {
		t.Fatalf("frieren row mismatch: %+v", bySlug)
	}
}

func TestClearAll(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	ctx := context.Background()

	for _, slug := range []string{"a", "b", "c"} {
		if err := repo.Create(ctx, "u1", slug); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := repo.Create(ctx, "u2", "a"); err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := repo.ClearAll(ctx, "u1")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 3 {
		t.Fatalf("cleared %d, want 3", n)
	}

	// other users untouched
	if ok, _ := repo.Exists(ctx, "u2", "a"); !ok {
		t.Fatal("u2's bookmark should survive u1's clear")
	}
}
