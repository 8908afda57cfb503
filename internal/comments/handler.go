package comments

import (
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"nekostream/internal/auth"
	"nekostream/internal/events"
	"nekostream/pkg/models"
)

type Handler struct {
	Repo *Repo
	Hub  *events.Hub
}

func NewHandler(repo *Repo, hub *events.Hub) *Handler {
	return &Handler{Repo: repo, Hub: hub}
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/comments/:episodeId", h.listByEpisode)
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("/comments", h.create)
}

type createReq struct {
	EpisodeID string `json:"episode_id"`
	Content   string `json:"content"`
}

func (h *Handler) create(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	episodeID := strings.TrimSpace(req.EpisodeID)
	if episodeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "episode_id required"})
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment must not be empty"})
		return
	}
	// cap counts characters, not bytes, so multibyte scripts get the
	// full allowance
	if utf8.RuneCountInString(content) > models.MaxCommentLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment too long (max 500 chars)"})
		return
	}

	comment, err := h.Repo.Create(c.Request.Context(), episodeID, claims.UserID, content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}

	if h.Hub != nil {
		ev := events.CommentEvent{
			Type:      "comment.created",
			EpisodeID: episodeID,
			Username:  claims.Username,
			At:        time.Now().UTC(),
		}
		go h.Hub.BroadcastJSON(ev)
	}

	c.JSON(http.StatusCreated, comment)
}

func (h *Handler) listByEpisode(c *gin.Context) {
	episodeID := strings.TrimSpace(c.Param("episodeId"))
	if episodeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "episode id required"})
		return
	}

	items, err := h.Repo.ListByEpisode(c.Request.Context(), episodeID, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, items)
}
