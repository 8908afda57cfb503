package playback

import (
	"fmt"
	"html"
	"net/http"

	"github.com/gin-gonic/gin"

	"nekostream/pkg/apperr"
)

type Handler struct {
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Service: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/embed/:id", h.embed)
}

// embed resolves the opaque playback link into the first usable raw
// stream and serves a bare HTML5 player around it. The raw URL only
// ever appears inside this page, never in a JSON payload.
func (h *Handler) embed(c *gin.Context) {
	id := c.Param("id")

	resolved, err := h.Service.ResolveStream(c.Request.Context(), id)
	if err != nil {
		if apperr.IsKind(err, apperr.Unavailable) {
			c.String(http.StatusNotFound, "no video source available")
			return
		}
		c.String(http.StatusInternalServerError, "playback resolution failed")
		return
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8"/>
<meta name="viewport" content="width=device-width, initial-scale=1.0"/>
<style>html,body{margin:0;height:100%%;background:#000}video{width:100%%;height:100%%}</style>
</head>
<body>
<video controls autoplay preload="auto">
<source src="%s" type="%s"/>
</video>
</body>
</html>`, html.EscapeString(resolved.URL), html.EscapeString(resolved.MimeType))

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}
