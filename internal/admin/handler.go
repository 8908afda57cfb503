// Package admin exposes the curation API: title CRUD, episode
// management, poster uploads, backup export/import and dashboard
// counts. Every route here runs behind the auth and admin middlewares.
package admin

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"nekostream/internal/anime"
	"nekostream/internal/auth"
	"nekostream/internal/backup"
	"nekostream/internal/episode"
	"nekostream/internal/events"
	"nekostream/internal/mediator"
	"nekostream/internal/storage"
	"nekostream/pkg/apperr"
	"nekostream/pkg/models"
)

const (
	pageSize      = 20
	maxUploadSize = 5 << 20 // 5 MB
)

type Handler struct {
	Animes   *anime.Repo
	Episodes *episode.Repo
	Users    *auth.Repo
	Mediator *mediator.Service
	Backup   *backup.Service
	Objects  storage.ObjectStore // nil disables uploads
	Hub      *events.Hub
}

func NewHandler(animes *anime.Repo, episodes *episode.Repo, users *auth.Repo,
	med *mediator.Service, bak *backup.Service, objects storage.ObjectStore, hub *events.Hub) *Handler {
	return &Handler{
		Animes:   animes,
		Episodes: episodes,
		Users:    users,
		Mediator: med,
		Backup:   bak,
		Objects:  objects,
		Hub:      hub,
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.stats)

	rg.GET("/animes", h.listAnimes)
	rg.POST("/animes", h.createAnime)
	rg.GET("/animes/:slug", h.getAnime)
	rg.PUT("/animes/:slug", h.updateAnime)
	rg.DELETE("/animes/:slug", h.deleteAnime)

	rg.POST("/animes/:slug/episodes", h.createEpisode)
	rg.GET("/episodes", h.listEpisodes)
	rg.PUT("/episodes/:id", h.updateEpisode)
	rg.DELETE("/episodes/:id", h.deleteEpisode)

	rg.POST("/upload", h.uploadPoster)

	rg.GET("/backup/export", h.exportBackup)
	rg.POST("/backup/import", h.importBackup)
}

func respondErr(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.Message(err)})
}

func (h *Handler) stats(c *gin.Context) {
	ctx := c.Request.Context()

	animes, err := h.Animes.CountAll(ctx)
	if err != nil {
		respondErr(c, err)
		return
	}
	episodes, err := h.Episodes.CountAll(ctx)
	if err != nil {
		respondErr(c, err)
		return
	}
	users, err := h.Users.CountAll(ctx)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"animes":   animes,
		"episodes": episodes,
		"users":    users,
	})
}

// listAnimes pages the full catalog for the dashboard, newest update
// first, with an optional title search.
func (h *Handler) listAnimes(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}

	q := anime.ListQuery{
		Search: strings.TrimSpace(c.Query("q")),
		Sort:   anime.SortUpdated,
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}

	items, err := h.Animes.List(c.Request.Context(), q)
	if err != nil {
		respondErr(c, err)
		return
	}
	total, err := h.Animes.Count(c.Request.Context(), q)
	if err != nil {
		respondErr(c, err)
		return
	}

	pages := (total + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}

	summaries := make([]models.AnimeSummary, 0, len(items))
	for i := range items {
		summaries = append(summaries, items[i].Summary())
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  models.NormalizeSummaries(summaries),
		"total": total,
		"page":  page,
		"pages": pages,
	})
}

type animeReq struct {
	Slug     string           `json:"slug"`
	Title    string           `json:"title"`
	ImageURL string           `json:"image_url"`
	Synopsis string           `json:"synopsis"`
	Info     models.AnimeInfo `json:"info"`
	Genres   []string         `json:"genres"`
}

func (h *Handler) createAnime(c *gin.Context) {
	var req animeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	req.Slug = strings.TrimSpace(req.Slug)
	req.Title = strings.TrimSpace(req.Title)
	if req.Slug == "" || req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slug and title are required"})
		return
	}
	if strings.ContainsAny(req.Slug, "/ ") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slug must not contain slashes or spaces"})
		return
	}

	a := &models.Anime{
		Slug:     req.Slug,
		Title:    req.Title,
		ImageURL: req.ImageURL,
		Synopsis: req.Synopsis,
		Info:     req.Info,
		Genres:   req.Genres,
	}
	if err := h.Animes.Create(c.Request.Context(), a); err != nil {
		respondErr(c, err)
		return
	}

	log.Info().Str("slug", a.Slug).Msg("anime created")
	c.JSON(http.StatusCreated, gin.H{"slug": a.Slug})
}

func (h *Handler) getAnime(c *gin.Context) {
	a, err := h.Animes.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if a == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "anime not found"})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) updateAnime(c *gin.Context) {
	var req animeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	a := &models.Anime{
		Slug:     c.Param("slug"), // slug comes from the path, never the body
		Title:    req.Title,
		ImageURL: req.ImageURL,
		Synopsis: req.Synopsis,
		Info:     req.Info,
		Genres:   req.Genres,
	}
	if err := h.Animes.Update(c.Request.Context(), a); err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"slug": a.Slug, "updated": true})
}

func (h *Handler) deleteAnime(c *gin.Context) {
	res, err := h.Mediator.RemoveTitleCascade(c.Request.Context(), c.Param("slug"))
	if err != nil {
		// partial cascade still reports what was deleted
		c.JSON(apperr.HTTPStatus(err), gin.H{
			"error":            apperr.Message(err),
			"title_deleted":    res.TitleDeleted,
			"episodes_deleted": res.EpisodesDeleted,
		})
		return
	}

	log.Info().Str("slug", c.Param("slug")).
		Int64("episodes_deleted", res.EpisodesDeleted).
		Msg("anime deleted")
	c.JSON(http.StatusOK, res)
}

type episodeCreateReq struct {
	Token     string                 `json:"token"`
	Title     string                 `json:"title"`
	Streams   []models.StreamSource  `json:"streams"`
	Downloads []models.DownloadGroup `json:"downloads"`
}

func (h *Handler) createEpisode(c *gin.Context) {
	var req episodeCreateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	req.Token = strings.TrimSpace(req.Token)
	req.Title = strings.TrimSpace(req.Title)
	if req.Token == "" || req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token and title are required"})
		return
	}
	if strings.Contains(req.Token, "/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token must not contain slashes"})
		return
	}

	animeSlug := c.Param("slug")
	ep, summaryUpdated, err := h.Mediator.CreateEpisode(c.Request.Context(), animeSlug, req.Token, req.Title)
	if err != nil {
		respondErr(c, err)
		return
	}

	if len(req.Streams) > 0 || len(req.Downloads) > 0 {
		if err := h.Episodes.Update(c.Request.Context(), ep.EpisodeSlug, ep.Title, req.Streams, req.Downloads); err != nil {
			respondErr(c, err)
			return
		}
		ep.Streams = req.Streams
		ep.Downloads = req.Downloads
	}

	if h.Hub != nil {
		ev := events.EpisodeEvent{
			Type:        "episode.created",
			AnimeSlug:   ep.AnimeSlug,
			AnimeTitle:  ep.AnimeTitle,
			EpisodeSlug: ep.EpisodeSlug,
			Title:       ep.Title,
			At:          time.Now().UTC(),
		}
		go h.Hub.BroadcastJSON(ev)
	}

	c.JSON(http.StatusCreated, gin.H{
		"episode":         ep,
		"summary_updated": summaryUpdated,
	})
}

func (h *Handler) listEpisodes(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}

	items, err := h.Episodes.List(c.Request.Context(), pageSize, (page-1)*pageSize)
	if err != nil {
		respondErr(c, err)
		return
	}
	total, err := h.Episodes.CountAll(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	if items == nil {
		items = []models.Episode{}
	}

	pages := (total + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  items,
		"total": total,
		"page":  page,
		"pages": pages,
	})
}

type episodeUpdateReq struct {
	Title     string                 `json:"title"`
	Streams   []models.StreamSource  `json:"streams"`
	Downloads []models.DownloadGroup `json:"downloads"`
}

// updateEpisode edits the mutable fields by episode id. The slug stays
// fixed so existing playback URLs and watch order are untouched.
func (h *Handler) updateEpisode(c *gin.Context) {
	var req episodeUpdateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ep, err := h.Episodes.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if ep == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "episode not found"})
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = ep.Title
	}

	if err := h.Episodes.Update(c.Request.Context(), ep.EpisodeSlug, title, req.Streams, req.Downloads); err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"episode_slug": ep.EpisodeSlug, "updated": true})
}

func (h *Handler) deleteEpisode(c *gin.Context) {
	ep, err := h.Episodes.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if ep == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "episode not found"})
		return
	}

	ok, err := h.Episodes.Delete(c.Request.Context(), ep.EpisodeSlug)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": ok})
}

var posterExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// uploadPoster accepts one multipart image and stores it under
// posters/. Returns the public URL to paste into the title form.
func (h *Handler) uploadPoster(c *gin.Context) {
	if h.Objects == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "object storage is not configured"})
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	if file.Size > maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image exceeds 5MB limit"})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !posterExts[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image type"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}
	if len(data) > maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image exceeds 5MB limit"})
		return
	}

	contentType := file.Header.Get("Content-Type")
	key := "posters/" + uuid.NewString() + ext

	url, err := h.Objects.Store(c.Request.Context(), key, data, contentType)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("poster upload failed")
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"url": url, "key": key})
}

func (h *Handler) exportBackup(c *gin.Context) {
	snap, err := h.Backup.ExportAll(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}

	c.Header("Content-Disposition",
		`attachment; filename="nekostream-backup-`+snap.ExportedAt.Format("20060102-150405")+`.json"`)
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) importBackup(c *gin.Context) {
	var snap backup.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot json"})
		return
	}

	if err := h.Backup.ImportAll(c.Request.Context(), &snap); err != nil {
		respondErr(c, err)
		return
	}

	log.Warn().
		Int("users", len(snap.Collections.Users)).
		Int("animes", len(snap.Collections.Animes)).
		Int("episodes", len(snap.Collections.Episodes)).
		Int("bookmarks", len(snap.Collections.Bookmarks)).
		Msg("backup restored, non-empty collections replaced wholesale")
	c.JSON(http.StatusOK, gin.H{"restored": true})
}
