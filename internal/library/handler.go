package library

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nekostream/internal/auth"
	"nekostream/pkg/apperr"
	"nekostream/pkg/models"
)

type Handler struct {
	Repo *Repo
}

func NewHandler(repo *Repo) *Handler {
	return &Handler{Repo: repo}
}

// RegisterRoutes registers onto a token-protected group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/bookmark", h.toggle)
	rg.GET("/library", h.list)
	rg.DELETE("/library", h.clear)
}

type toggleReq struct {
	AnimeSlug string `json:"anime_slug"`
}

func (h *Handler) toggle(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req toggleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	slug := strings.TrimSpace(req.AnimeSlug)
	if slug == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "anime_slug required"})
		return
	}

	added, err := h.Repo.Toggle(c.Request.Context(), claims.UserID, slug)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.Message(err)})
		return
	}

	if added {
		c.JSON(http.StatusOK, gin.H{"message": "added to library", "status": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed from library", "status": false})
}

func (h *Handler) list(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	items, err := h.Repo.ListAnimes(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, models.NormalizeSummaries(items))
}

func (h *Handler) clear(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	n, err := h.Repo.ClearAll(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "clear failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "library cleared", "status": true, "removed": n})
}
