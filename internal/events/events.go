package events

import "time"

// EpisodeEvent announces a newly published episode.
type EpisodeEvent struct {
	Type        string    `json:"type"` // "episode.created"
	AnimeSlug   string    `json:"anime_slug"`
	AnimeTitle  string    `json:"anime_title"`
	EpisodeSlug string    `json:"episode_slug"`
	Title       string    `json:"title"`
	At          time.Time `json:"at"`
}

// CommentEvent announces a new comment on an episode.
type CommentEvent struct {
	Type      string    `json:"type"` // "comment.created"
	EpisodeID string    `json:"episode_id"`
	Username  string    `json:"username"`
	At        time.Time `json:"at"`
}
