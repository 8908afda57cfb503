package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"nekostream/internal/anime"
	"nekostream/internal/auth"
	"nekostream/internal/cache"
	"nekostream/internal/episode"
	"nekostream/internal/library"
	"nekostream/internal/mediator"
	"nekostream/internal/playback"
	"nekostream/pkg/models"
)

// Statuses that count as "ended" for the home feed buckets.
var endedStatuses = []string{"Completed", "Ended", "Finished"}

type Handler struct {
	Animes   *anime.Repo
	Episodes *episode.Repo
	Mediator *mediator.Service
	Library  *library.Repo
	Playback *playback.Service
	Cache    cache.Store

	// Timeout bounds the expensive aggregate reads. On expiry the
	// request fails with 504 and the cache entry stays unset.
	Timeout time.Duration
}

func NewHandler(animes *anime.Repo, episodes *episode.Repo, med *mediator.Service,
	lib *library.Repo, pb *playback.Service, store cache.Store, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Handler{
		Animes:   animes,
		Episodes: episodes,
		Mediator: med,
		Library:  lib,
		Playback: pb,
		Cache:    store,
		Timeout:  timeout,
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/home", h.home)
	rg.GET("/search", h.search)
	rg.GET("/anime/:slug", h.animeDetail)
	rg.GET("/episode/:animeSlug/:token", h.episodeDetail)
	rg.GET("/genres", h.genres)
	rg.GET("/genres/:name", h.byGenre)
	rg.GET("/schedule", h.schedule)
	rg.GET("/version", h.version)
}

// episodeCard is the home-feed projection of an episode.
type episodeCard struct {
	Title       string `json:"title"`
	EpisodeSlug string `json:"episode_slug"`
	WatchURL    string `json:"watch_url"`
	ImageURL    string `json:"image_url"`
	Duration    string `json:"duration"`
	AnimeTitle  string `json:"anime_title"`
}

type homePayload struct {
	OngoingSeries []models.AnimeSummary `json:"ongoing_series"`
	EndedSeries   []models.AnimeSummary `json:"ended_series"`
	LatestSeries  []models.AnimeSummary `json:"latest_series"`
	Episodes      []episodeCard         `json:"episodes"`
}

// home assembles three bounded title queries plus the latest episodes,
// executed concurrently, cached as one unit for a minute. A cache hit
// returns the stored bytes verbatim.
func (h *Handler) home(c *gin.Context) {
	if raw, ok := h.Cache.Get(c.Request.Context(), cache.KeyHome); ok {
		c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
	defer cancel()

	var (
		wg                                     sync.WaitGroup
		ongoing, ended, latest                 []models.Anime
		latestEps                              []models.Episode
		ongoingErr, endedErr, latestErr, epErr error
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		ongoing, ongoingErr = h.Animes.List(ctx, anime.ListQuery{
			Statuses: []string{"Ongoing"}, Sort: anime.SortUpdated, Limit: 10,
		})
	}()
	go func() {
		defer wg.Done()
		ended, endedErr = h.Animes.List(ctx, anime.ListQuery{
			Statuses: endedStatuses, Sort: anime.SortUpdated, Limit: 10,
		})
	}()
	go func() {
		defer wg.Done()
		latest, latestErr = h.Animes.List(ctx, anime.ListQuery{
			Sort: anime.SortCreated, Limit: 9,
		})
	}()
	go func() {
		defer wg.Done()
		latestEps, epErr = h.Episodes.Latest(ctx, 12)
	}()
	wg.Wait()

	if err := firstErr(ongoingErr, endedErr, latestErr, epErr); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "home feed timed out"})
			return
		}
		log.Error().Err(err).Msg("home feed aggregation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load home"})
		return
	}

	payload := homePayload{
		OngoingSeries: models.NormalizeSummaries(summaries(ongoing)),
		EndedSeries:   models.NormalizeSummaries(summaries(ended)),
		LatestSeries:  models.NormalizeSummaries(summaries(latest)),
		Episodes:      episodeCards(latestEps),
	}

	h.respondCached(c, cache.KeyHome, cache.TTLHome, payload)
}

// search is a case-insensitive substring match over titles, capped at
// 20 results. Never cached: user-query cardinality is unbounded.
func (h *Handler) search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusOK, []models.AnimeSummary{})
		return
	}

	results, err := h.Animes.List(c.Request.Context(), anime.ListQuery{
		Search: q, Sort: anime.SortUpdated, Limit: 20,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	c.JSON(http.StatusOK, models.NormalizeSummaries(summaries(results)))
}

type episodeEntry struct {
	Title       string    `json:"title"`
	EpisodeSlug string    `json:"episode_slug"`
	CreatedAt   time.Time `json:"created_at"`
}

// animeDetail returns the canonical title joined at read time with the
// canonical episode listing, never the denormalized summary, which may
// lag. Uncached so admin edits show up immediately.
func (h *Handler) animeDetail(c *gin.Context) {
	slug := c.Param("slug")

	a, err := h.Animes.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if a == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "anime not found"})
		return
	}

	eps, err := h.Episodes.ListByAnime(c.Request.Context(), slug)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list episodes failed"})
		return
	}

	// newest first for display
	entries := make([]episodeEntry, 0, len(eps))
	for i := len(eps) - 1; i >= 0; i-- {
		entries = append(entries, episodeEntry{
			Title:       eps[i].Title,
			EpisodeSlug: eps[i].EpisodeSlug,
			CreatedAt:   eps[i].CreatedAt,
		})
	}

	isBookmarked := false
	if claims := auth.MustGetClaims(c); claims != nil {
		ok, err := h.Library.Exists(c.Request.Context(), claims.UserID, slug)
		if err == nil {
			isBookmarked = ok
		}
	}

	models.NormalizeAnime(a)
	a.Episodes = nil // denormalized summary is not part of the detail payload

	c.JSON(http.StatusOK, gin.H{
		"slug":          a.Slug,
		"title":         a.Title,
		"image_url":     a.ImageURL,
		"synopsis":      a.Synopsis,
		"info":          a.Info,
		"genres":        a.Genres,
		"episodes":      entries,
		"is_bookmarked": isBookmarked,
	})
}

// episodeDetail returns the canonical episode with derived navigation
// and the stream list rewritten through the playback indirection.
func (h *Handler) episodeDetail(c *gin.Context) {
	animeSlug := c.Param("animeSlug")
	episodeSlug := "/" + animeSlug + "/" + c.Param("token")

	ep, err := h.Episodes.GetBySlug(c.Request.Context(), episodeSlug)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if ep == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "episode not found"})
		return
	}

	nav, err := h.Mediator.ResolveNavigation(c.Request.Context(), animeSlug, episodeSlug)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "navigation failed"})
		return
	}

	downloads := ep.Downloads
	if downloads == nil {
		downloads = []models.DownloadGroup{}
	}

	c.JSON(http.StatusOK, gin.H{
		"id":          ep.ID,
		"title":       ep.Title,
		"anime_title": ep.AnimeTitle,
		"image_url":   models.NormalizeEpisodeThumb(ep.Thumbnail),
		"duration":    ep.Duration,
		"streams":     h.Playback.RewriteStreams(ep),
		"downloads":   downloads,
		"nav":         nav,
	})
}

// genres serves the distinct genre list from a 24h cache; the tag set
// changes only on admin edits.
func (h *Handler) genres(c *gin.Context) {
	if raw, ok := h.Cache.Get(c.Request.Context(), cache.KeyGenres); ok {
		c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
		return
	}

	genres, err := h.Animes.DistinctGenres(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load genres"})
		return
	}

	h.respondCached(c, cache.KeyGenres, cache.TTLGenres, genres)
}

func (h *Handler) byGenre(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "genre required"})
		return
	}

	results, err := h.Animes.List(c.Request.Context(), anime.ListQuery{
		Genre: name, Sort: anime.SortUpdated, Limit: 50,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load genre"})
		return
	}

	c.JSON(http.StatusOK, models.NormalizeSummaries(summaries(results)))
}

type schedulePayload struct {
	Data []models.AnimeSummary `json:"data"`
}

func (h *Handler) schedule(c *gin.Context) {
	if raw, ok := h.Cache.Get(c.Request.Context(), cache.KeySchedule); ok {
		c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
		return
	}

	ongoing, err := h.Animes.List(c.Request.Context(), anime.ListQuery{
		Statuses: []string{"Ongoing"}, Sort: anime.SortUpdated, Limit: 20,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load schedule"})
		return
	}

	payload := schedulePayload{Data: models.NormalizeSummaries(summaries(ongoing))}
	h.respondCached(c, cache.KeySchedule, cache.TTLSchedule, payload)
}

func (h *Handler) version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":      "1.0.0",
		"force_update": false,
		"message":      "",
	})
}

// respondCached serializes once, stores the bytes under key, and serves
// the same bytes, so a later hit is byte-identical to this response.
func (h *Handler) respondCached(c *gin.Context, key string, ttl time.Duration, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encode failed"})
		return
	}
	h.Cache.Set(c.Request.Context(), key, raw, ttl)
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

func summaries(list []models.Anime) []models.AnimeSummary {
	out := make([]models.AnimeSummary, 0, len(list))
	for i := range list {
		out = append(out, list[i].Summary())
	}
	return out
}

func episodeCards(eps []models.Episode) []episodeCard {
	out := make([]episodeCard, 0, len(eps))
	for _, ep := range eps {
		duration := ep.Duration
		if duration == "" {
			duration = models.DefaultDuration
		}
		out = append(out, episodeCard{
			Title:       ep.Title,
			EpisodeSlug: ep.EpisodeSlug,
			WatchURL:    "/anime" + ep.EpisodeSlug,
			ImageURL:    models.NormalizeEpisodeThumb(ep.Thumbnail),
			Duration:    duration,
			AnimeTitle:  ep.AnimeTitle,
		})
	}
	return out
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
