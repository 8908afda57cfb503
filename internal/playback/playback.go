// Package playback indirects raw stream URLs behind an opaque,
// stable link. Distributed links are a pure function of the canonical
// episode id, so admins can swap the underlying source without breaking
// anything already handed to clients, and third-party hosting URLs are
// never exposed in API payloads.
package playback

import (
	"context"
	"path"
	"strings"

	"nekostream/internal/episode"
	"nekostream/pkg/apperr"
	"nekostream/pkg/models"
)

type Service struct {
	Episodes *episode.Repo
	BasePath string // e.g. "/api/v1/embed"
}

func NewService(episodes *episode.Repo, basePath string) *Service {
	return &Service{Episodes: episodes, BasePath: strings.TrimRight(basePath, "/")}
}

// URL maps a canonical episode id to its external playback link. Pure
// and deterministic: it must not look at the stream list, which changes
// under admin edits while distributed links must not.
func (s *Service) URL(episodeID string) string {
	return s.BasePath + "/" + episodeID
}

// ResolvedStream is the outcome of resolving a playback link at request
// time.
type ResolvedStream struct {
	URL      string
	MimeType string
}

// ResolveStream looks up the episode and picks the first entry of its
// quality-ordered stream list. No quality negotiation. Fails with
// Unavailable when the episode is missing or its list is empty.
func (s *Service) ResolveStream(ctx context.Context, episodeID string) (*ResolvedStream, error) {
	ep, err := s.Episodes.GetByID(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	if ep == nil || len(ep.Streams) == 0 {
		return nil, apperr.E(apperr.Unavailable, "no stream source available", nil)
	}

	first := ep.Streams[0]
	return &ResolvedStream{
		URL:      first.URL,
		MimeType: mimeForStreamURL(first.URL),
	}, nil
}

// RewriteStreams replaces every raw source URL with the episode's
// playback link, keeping name and quality for the client's picker.
func (s *Service) RewriteStreams(ep *models.Episode) []models.StreamSource {
	out := make([]models.StreamSource, 0, len(ep.Streams))
	for _, src := range ep.Streams {
		quality := src.Quality
		if quality == "" {
			quality = "720p"
		}
		out = append(out, models.StreamSource{
			Name:    src.Name,
			URL:     s.URL(ep.ID),
			Quality: quality,
		})
	}
	return out
}

func mimeForStreamURL(rawURL string) string {
	u := rawURL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	switch strings.ToLower(path.Ext(u)) {
	case ".m3u8":
		return "application/x-mpegurl"
	case ".ts":
		return "video/MP2T"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	default:
		return "video/mp4"
	}
}
