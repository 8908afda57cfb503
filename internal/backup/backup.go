// Package backup implements the out-of-band export/import collaborator.
// Import is wholesale replace-all: per collection, delete every row and
// insert the snapshot's rows, in the fixed order users, animes,
// episodes, bookmarks so references resolve in creation order. There
// are no online invariants beyond that.
package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"nekostream/pkg/apperr"
	"nekostream/pkg/models"
)

// UserRecord carries the full stored user row, password hash included,
// so a restore reproduces credentials exactly.
type UserRecord struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	AvatarURL    string    `json:"avatar_url"`
	CreatedAt    time.Time `json:"created_at"`
}

type Collections struct {
	Users     []UserRecord      `json:"users"`
	Animes    []models.Anime    `json:"animes"`
	Episodes  []models.Episode  `json:"episodes"`
	Bookmarks []models.Bookmark `json:"bookmarks"`
}

type Snapshot struct {
	ExportedAt  time.Time   `json:"exported_at"`
	Collections Collections `json:"collections"`
}

type Service struct {
	DB *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{DB: db}
}

// ExportAll reads every collection into one snapshot.
func (s *Service) ExportAll(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{ExportedAt: time.Now().UTC()}

	var err error
	if snap.Collections.Users, err = s.exportUsers(ctx); err != nil {
		return nil, apperr.E(apperr.Upstream, "export users failed", err)
	}
	if snap.Collections.Animes, err = s.exportAnimes(ctx); err != nil {
		return nil, apperr.E(apperr.Upstream, "export animes failed", err)
	}
	if snap.Collections.Episodes, err = s.exportEpisodes(ctx); err != nil {
		return nil, apperr.E(apperr.Upstream, "export episodes failed", err)
	}
	if snap.Collections.Bookmarks, err = s.exportBookmarks(ctx); err != nil {
		return nil, apperr.E(apperr.Upstream, "export bookmarks failed", err)
	}

	return snap, nil
}

// ImportAll restores a snapshot. Each non-empty collection is replaced
// wholesale inside its own transaction; an empty collection in the
// snapshot leaves the live one untouched, matching the semantics the
// export format has always had.
func (s *Service) ImportAll(ctx context.Context, snap *Snapshot) error {
	c := snap.Collections
	if len(c.Users) == 0 && len(c.Animes) == 0 && len(c.Episodes) == 0 && len(c.Bookmarks) == 0 {
		return apperr.E(apperr.Upstream, "snapshot has no collections to restore", nil)
	}

	if len(c.Users) > 0 {
		if err := s.replaceUsers(ctx, c.Users); err != nil {
			return apperr.E(apperr.Upstream, "restore users failed", err)
		}
	}
	if len(c.Animes) > 0 {
		if err := s.replaceAnimes(ctx, c.Animes); err != nil {
			return apperr.E(apperr.Upstream, "restore animes failed", err)
		}
	}
	if len(c.Episodes) > 0 {
		if err := s.replaceEpisodes(ctx, c.Episodes); err != nil {
			return apperr.E(apperr.Upstream, "restore episodes failed", err)
		}
	}
	if len(c.Bookmarks) > 0 {
		if err := s.replaceBookmarks(ctx, c.Bookmarks); err != nil {
			return apperr.E(apperr.Upstream, "restore bookmarks failed", err)
		}
	}

	return nil
}

func (s *Service) exportUsers(ctx context.Context) ([]UserRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, username, password_hash, role, avatar_url, created_at
		FROM users ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []UserRecord{}
	for rows.Next() {
		var u UserRecord
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.AvatarURL, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Service) exportAnimes(ctx context.Context) ([]models.Anime, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT slug, title, image_url, synopsis,
			status, kind, rating, released, studio, producer, alt_title,
			genres, episode_summaries, created_at, updated_at
		FROM animes ORDER BY created_at ASC, slug ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Anime{}
	for rows.Next() {
		var a models.Anime
		var genresJSON, summariesJSON string
		if err := rows.Scan(
			&a.Slug, &a.Title, &a.ImageURL, &a.Synopsis,
			&a.Info.Status, &a.Info.Kind, &a.Info.Rating, &a.Info.Released,
			&a.Info.Studio, &a.Info.Producer, &a.Info.AltTitle,
			&genresJSON, &summariesJSON, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(genresJSON), &a.Genres)
		_ = json.Unmarshal([]byte(summariesJSON), &a.Episodes)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Service) exportEpisodes(ctx context.Context) ([]models.Episode, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, anime_slug, anime_title, episode_slug, title,
			thumbnail_url, duration, streams, downloads, created_at, updated_at
		FROM episodes ORDER BY created_at ASC, rowid ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Episode{}
	for rows.Next() {
		var e models.Episode
		var streamsJSON, downloadsJSON string
		if err := rows.Scan(
			&e.ID, &e.AnimeSlug, &e.AnimeTitle, &e.EpisodeSlug, &e.Title,
			&e.Thumbnail, &e.Duration, &streamsJSON, &downloadsJSON,
			&e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(streamsJSON), &e.Streams)
		_ = json.Unmarshal([]byte(downloadsJSON), &e.Downloads)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Service) exportBookmarks(ctx context.Context) ([]models.Bookmark, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT user_id, anime_slug, created_at
		FROM bookmarks ORDER BY created_at ASC, user_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Bookmark{}
	for rows.Next() {
		var b models.Bookmark
		if err := rows.Scan(&b.UserID, &b.AnimeSlug, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Service) replaceUsers(ctx context.Context, users []UserRecord) error {
	return s.replace(ctx, `DELETE FROM users`, func(tx *sql.Tx) error {
		for _, u := range users {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO users (id, username, password_hash, role, avatar_url, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, u.ID, u.Username, u.PasswordHash, u.Role, u.AvatarURL, u.CreatedAt); err != nil {
				return fmt.Errorf("insert user %s: %w", u.Username, err)
			}
		}
		return nil
	})
}

func (s *Service) replaceAnimes(ctx context.Context, animes []models.Anime) error {
	return s.replace(ctx, `DELETE FROM animes`, func(tx *sql.Tx) error {
		for _, a := range animes {
			genres, _ := json.Marshal(a.Genres)
			summaries, _ := json.Marshal(a.Episodes)
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO animes (slug, title, image_url, synopsis,
					status, kind, rating, released, studio, producer, alt_title,
					genres, episode_summaries, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, a.Slug, a.Title, a.ImageURL, a.Synopsis,
				a.Info.Status, a.Info.Kind, a.Info.Rating, a.Info.Released,
				a.Info.Studio, a.Info.Producer, a.Info.AltTitle,
				string(genres), string(summaries), a.CreatedAt, a.UpdatedAt); err != nil {
				return fmt.Errorf("insert anime %s: %w", a.Slug, err)
			}
		}
		return nil
	})
}

func (s *Service) replaceEpisodes(ctx context.Context, episodes []models.Episode) error {
	return s.replace(ctx, `DELETE FROM episodes`, func(tx *sql.Tx) error {
		for _, e := range episodes {
			streams, _ := json.Marshal(e.Streams)
			downloads, _ := json.Marshal(e.Downloads)
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO episodes (id, anime_slug, anime_title, episode_slug,
					title, thumbnail_url, duration, streams, downloads, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, e.ID, e.AnimeSlug, e.AnimeTitle, e.EpisodeSlug,
				e.Title, e.Thumbnail, e.Duration, string(streams), string(downloads),
				e.CreatedAt, e.UpdatedAt); err != nil {
				return fmt.Errorf("insert episode %s: %w", e.EpisodeSlug, err)
			}
		}
		return nil
	})
}

func (s *Service) replaceBookmarks(ctx context.Context, bookmarks []models.Bookmark) error {
	return s.replace(ctx, `DELETE FROM bookmarks`, func(tx *sql.Tx) error {
		for _, b := range bookmarks {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO bookmarks (user_id, anime_slug, created_at)
				VALUES (?, ?, ?)
			`, b.UserID, b.AnimeSlug, b.CreatedAt); err != nil {
				return fmt.Errorf("insert bookmark %s/%s: %w", b.UserID, b.AnimeSlug, err)
			}
		}
		return nil
	})
}

// replace runs delete-all then insert-all for one collection in a
// single transaction, so a failed restore of that collection rolls back
// to its previous contents.
func (s *Service) replace(ctx context.Context, deleteStmt string, insert func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, deleteStmt); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	if err = insert(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit restore: %w", err)
	}
	return nil
}
