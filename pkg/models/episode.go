package models

import "time"

// StreamSource is one streaming mirror for an episode. The list is kept
// in quality order; playback resolution always takes the first entry.
type StreamSource struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Quality string `json:"quality"`
}

// DownloadLink is a single host/url pair inside a quality group.
type DownloadLink struct {
	Host string `json:"host"`
	URL  string `json:"url"`
}

// DownloadGroup groups download links by quality ("720p", "480p", ...).
type DownloadGroup struct {
	Quality string         `json:"quality"`
	Links   []DownloadLink `json:"links"`
}

// Episode is a canonical episode record. EpisodeSlug is the stable
// external identity, a two-segment path "/<animeSlug>/<token>".
//
// There is no explicit episode number; creation time is the only
// ordering key for deriving watch order.
type Episode struct {
	ID          string          `json:"id"`
	AnimeSlug   string          `json:"anime_slug"`
	AnimeTitle  string          `json:"anime_title"`
	EpisodeSlug string          `json:"episode_slug"`
	Title       string          `json:"title"`
	Thumbnail   string          `json:"thumbnail_url"`
	Duration    string          `json:"duration"`
	Streams     []StreamSource  `json:"streams"`
	Downloads   []DownloadGroup `json:"downloads"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// EpisodeNav holds the neighbors of an episode in canonical watch order.
// Nil pointers mark the boundaries.
type EpisodeNav struct {
	Prev *string `json:"prev"`
	Next *string `json:"next"`
}
