package models

import "time"

// Bookmark is a pure join record between a user and a title. The
// (UserID, AnimeSlug) pair is unique; rows are toggled, never updated.
type Bookmark struct {
	UserID    string    `json:"user_id"`
	AnimeSlug string    `json:"anime_slug"`
	CreatedAt time.Time `json:"created_at"`
}
