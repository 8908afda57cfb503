package comments

import (
	"context"
	"database/sql"
	"fmt"

	"nekostream/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

func (r *Repo) Create(ctx context.Context, episodeID, userID, content string) (*models.Comment, error) {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO comments (episode_id, user_id, content)
		VALUES (?, ?, ?)
	`, episodeID, userID, content)
	if err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return r.GetByID(ctx, id)
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*models.Comment, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT c.id, c.episode_id, c.user_id, u.username, u.avatar_url, c.content, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.id = ?
	`, id)

	var cm models.Comment
	if err := row.Scan(&cm.ID, &cm.EpisodeID, &cm.UserID, &cm.Username, &cm.AvatarURL, &cm.Content, &cm.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan comment: %w", err)
	}
	return &cm, nil
}

// ListByEpisode returns the newest comments for an episode with the
// author's display fields joined in.
func (r *Repo) ListByEpisode(ctx context.Context, episodeID string, limit int) ([]models.Comment, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT c.id, c.episode_id, c.user_id, u.username, u.avatar_url, c.content, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.episode_id = ?
		ORDER BY c.created_at DESC, c.id DESC
		LIMIT ?
	`, episodeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	out := make([]models.Comment, 0, limit)
	for rows.Next() {
		var cm models.Comment
		if err := rows.Scan(&cm.ID, &cm.EpisodeID, &cm.UserID, &cm.Username, &cm.AvatarURL, &cm.Content, &cm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment row: %w", err)
		}
		out = append(out, cm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}
