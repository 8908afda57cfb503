package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"nekostream/internal/anime"
	"nekostream/internal/cache"
	"nekostream/internal/episode"
	"nekostream/internal/library"
	"nekostream/internal/mediator"
	"nekostream/internal/playback"
	"nekostream/pkg/database"
	"nekostream/pkg/models"
)

type fixture struct {
	router   *gin.Engine
	animes   *anime.Repo
	mediator *mediator.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	animes := anime.NewRepo(db)
	episodes := episode.NewRepo(db)
	med := mediator.NewService(animes, episodes)

	h := NewHandler(animes, episodes, med,
		library.NewRepo(db),
		playback.NewService(episodes, "/embed"),
		cache.NewMemory(nil),
		5*time.Second)

	router := gin.New()
	h.RegisterRoutes(router.Group("/"))

	return &fixture{router: router, animes: animes, mediator: med}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) seedAnime(t *testing.T, slug, title, status string) {
	t.Helper()
	err := f.animes.Create(context.Background(), &models.Anime{
		Slug: slug, Title: title,
		Info:   models.AnimeInfo{Status: status},
		Genres: []string{"Fantasy"},
	})
	if err != nil {
		t.Fatalf("seed anime: %v", err)
	}
}

func TestHomeServesCachedBytesVerbatim(t *testing.T) {
	f := newFixture(t)
	f.seedAnime(t, "frieren", "Frieren", "Ongoing")
	if _, _, err := f.mediator.CreateEpisode(context.Background(), "frieren", "ep-1", "Episode 1"); err != nil {
		t.Fatalf("seed episode: %v", err)
	}

	first := f.get(t, "/home")
	if first.Code != http.StatusOK {
		t.Fatalf("first /home: %d %s", first.Code, first.Body.String())
	}

	var payload struct {
		OngoingSeries []models.AnimeSummary `json:"ongoing_series"`
		EndedSeries   []models.AnimeSummary `json:"ended_series"`
		Episodes      []json.RawMessage     `json:"episodes"`
	}
	if err := json.Unmarshal(first.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.OngoingSeries) != 1 || payload.OngoingSeries[0].Slug != "frieren" {
		t.Fatalf("ongoing bucket = %+v", payload.OngoingSeries)
	}
	if len(payload.EndedSeries) != 0 {
		t.Fatalf("ended bucket should be empty, got %+v", payload.EndedSeries)
	}
	if len(payload.Episodes) != 1 {
		t.Fatalf("episodes bucket = %d entries, want 1", len(payload.Episodes))
	}

	// a second read within the TTL is byte-identical to the first
	second := f.get(t, "/home")
	if second.Code != http.StatusOK {
		t.Fatalf("second /home: %d", second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatal("cached response differs from the original bytes")
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	f := newFixture(t)
	f.seedAnime(t, "frieren", "Frieren", "Ongoing")

	w := f.get(t, "/search?q=")
	if w.Code != http.StatusOK {
		t.Fatalf("search: %d", w.Code)
	}
	if w.Body.String() != "[]" {
		t.Fatalf("empty query should return an empty list, got %s", w.Body.String())
	}
}

func TestAnimeDetailMissing(t *testing.T) {
	f := newFixture(t)

	if w := f.get(t, "/anime/ghost"); w.Code != http.StatusNotFound {
		t.Fatalf("missing title: %d, want 404", w.Code)
	}
}

func TestAnimeDetailListsCanonicalEpisodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAnime(t, "frieren", "Frieren", "Ongoing")
	for _, tok := range []string{"ep-1", "ep-2"} {
		if _, _, err := f.mediator.CreateEpisode(ctx, "frieren", tok, "Episode "+tok); err != nil {
			t.Fatalf("seed episode: %v", err)
		}
	}

	w := f.get(t, "/anime/frieren")
	if w.Code != http.StatusOK {
		t.Fatalf("detail: %d %s", w.Code, w.Body.String())
	}

	var payload struct {
		Episodes []struct {
			EpisodeSlug string `json:"episode_slug"`
		} `json:"episodes"`
		IsBookmarked bool `json:"is_bookmarked"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Episodes) != 2 {
		t.Fatalf("got %d episodes, want 2", len(payload.Episodes))
	}
	// newest first
	if payload.Episodes[0].EpisodeSlug != "/frieren/ep-2" {
		t.Fatalf("first listed = %q, want the newest", payload.Episodes[0].EpisodeSlug)
	}
	if payload.IsBookmarked {
		t.Fatal("anonymous request cannot have a bookmark")
	}
}

func TestEpisodeDetailRewritesStreamURLs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAnime(t, "frieren", "Frieren", "Ongoing")

	ep, _, err := f.mediator.CreateEpisode(ctx, "frieren", "ep-1", "Episode 1")
	if err != nil {
		t.Fatalf("seed episode: %v", err)
	}
	err = f.mediator.Episodes.Update(ctx, ep.EpisodeSlug, ep.Title,
		[]models.StreamSource{{Name: "main", URL: "https://cdn.example/raw.m3u8", Quality: "1080p"}}, nil)
	if err != nil {
		t.Fatalf("attach stream: %v", err)
	}

	w := f.get(t, "/episode/frieren/ep-1")
	if w.Code != http.StatusOK {
		t.Fatalf("episode detail: %d %s", w.Code, w.Body.String())
	}

	var payload struct {
		Streams []models.StreamSource `json:"streams"`
		Nav     models.EpisodeNav     `json:"nav"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Streams) != 1 {
		t.Fatalf("streams = %+v", payload.Streams)
	}
	if payload.Streams[0].URL != "/embed/"+ep.ID {
		t.Fatalf("raw stream url leaked: %q", payload.Streams[0].URL)
	}
	if payload.Nav.Prev != nil || payload.Nav.Next != nil {
		t.Fatalf("single episode should have empty nav: %+v", payload.Nav)
	}
}

func TestVersionEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/version")
	if w.Code != http.StatusOK {
		t.Fatalf("version: %d", w.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := payload["version"]; !ok {
		t.Fatal("version field missing")
	}
}
