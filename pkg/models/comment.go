package models

import "time"

// MaxCommentLength caps comment content after trimming.
const MaxCommentLength = 500

// Comment belongs to an episode by opaque id (not enforced as a foreign
// key) and is immutable once posted.
type Comment struct {
	ID        int64     `json:"id"`
	EpisodeID string    `json:"episode_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
