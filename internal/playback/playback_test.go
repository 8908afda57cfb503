package playback

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"

	"nekostream/internal/episode"
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
	// one connection, or each pool conn gets its own empty :memory: db
	db.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedEpisode(t *testing.T, repo *episode.Repo, streams []models.StreamSource) *models.Episode {
	t.Helper()

	ep := &models.Episode{
		ID:          uuid.NewString(),
		AnimeSlug:   "frieren",
		AnimeTitle:  "Frieren",
		EpisodeSlug: "/frieren/" + uuid.NewString(),
		Title:       "Episode 1",
		Duration:    models.DefaultDuration,
		Streams:     streams,
	}
	if err := repo.Create(context.Background(), ep); err != nil {
		t.Fatalf("seed episode: %v", err)
	}
	return ep
}

func TestURLStableAcrossStreamEdits(t *testing.T) {
	repo := episode.NewRepo(newTestDB(t))
	svc := NewService(repo, "/embed")

	ep := seedEpisode(t, repo, []models.StreamSource{
		{Name: "alpha", URL: "https://cdn-a.example/v1.m3u8", Quality: "1080p"},
	})

	before := svc.URL(ep.ID)
	if before != "/embed/"+ep.ID {
		t.Fatalf("unexpected playback url %q", before)
	}

	// admin swaps the hosting source
	err := repo.Update(context.Background(), ep.EpisodeSlug, ep.Title,
		[]models.StreamSource{{Name: "beta", URL: "https://cdn-b.example/v2.mp4", Quality: "720p"}}, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if after := svc.URL(ep.ID); after != before {
		t.Fatalf("playback url changed across stream edit: %q != %q", after, before)
	}
}

func TestResolveStreamPicksFirstEntry(t *testing.T) {
	repo := episode.NewRepo(newTestDB(t))
	svc := NewService(repo, "/embed")

	ep := seedEpisode(t, repo, []models.StreamSource{
		{Name: "main", URL: "https://cdn.example/ep1.m3u8", Quality: "1080p"},
		{Name: "mirror", URL: "https://mirror.example/ep1.mp4", Quality: "720p"},
	})

	got, err := svc.ResolveStream(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.URL != "https://cdn.example/ep1.m3u8" {
		t.Fatalf("resolved %q, want first entry", got.URL)
	}
	if got.MimeType != "application/x-mpegurl" {
		t.Fatalf("mime %q, want hls playlist", got.MimeType)
	}
}

func TestResolveStreamUnavailable(t *testing.T) {
	repo := episode.NewRepo(newTestDB(t))
	svc := NewService(repo, "/embed")

	// unknown id
	if _, err := svc.ResolveStream(context.Background(), "no-such-id"); !apperr.IsKind(err, apperr.Unavailable) {
		t.Fatalf("want Unavailable for missing episode, got %v", err)
	}

	// known id, empty stream list
	ep := seedEpisode(t, repo, nil)
	if _, err := svc.ResolveStream(context.Background(), ep.ID); !apperr.IsKind(err, apperr.Unavailable) {
		t.Fatalf("want Unavailable for empty stream list, got %v", err)
	}
}

func TestRewriteStreamsHidesRawURLs(t *testing.T) {
	svc := NewService(nil, "/embed/")

	ep := &models.Episode{
		ID: "ep-1",
		Streams: []models.StreamSource{
			{Name: "main", URL: "https://cdn.example/secret.m3u8", Quality: "1080p"},
			{Name: "mirror", URL: "https://mirror.example/secret.mp4"},
		},
	}

	out := svc.RewriteStreams(ep)
	if len(out) != 2 {
		t.Fatalf("got %d entries, want 2", len(out))
	}
	for _, src := range out {
		if src.URL != "/embed/ep-1" {
			t.Fatalf("raw url leaked: %q", src.URL)
		}
	}
	if out[0].Quality != "1080p" {
		t.Fatalf("quality lost: %q", out[0].Quality)
	}
	if out[1].Quality != "720p" {
		t.Fatalf("missing quality should default to 720p, got %q", out[1].Quality)
	}
}

func TestMimeForStreamURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://cdn.example/a.m3u8", "application/x-mpegurl"},
		{"https://cdn.example/a.m3u8?token=abc", "application/x-mpegurl"},
		{"https://cdn.example/seg.ts", "video/MP2T"},
		{"https://cdn.example/a.webm", "video/webm"},
		{"https://cdn.example/a.mkv#t=10", "video/x-matroska"},
		{"https://cdn.example/a.mp4", "video/mp4"},
		{"https://cdn.example/no-extension", "video/mp4"},
	}
	for _, tc := range cases {
		if got := mimeForStreamURL(tc.url); got != tc.want {
			t.Errorf("mimeForStreamURL(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}
