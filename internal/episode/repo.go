package episode

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"nekostream/pkg/apperr"
	"nekostream/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

const episodeColumns = `id, anime_slug, anime_title, episode_slug, title,
	thumbnail_url, duration, streams, downloads, created_at, updated_at`

func scanEpisode(row interface{ Scan(...any) error }) (*models.Episode, error) {
	var (
		e             models.Episode
		streamsJSON   string
		downloadsJSON string
	)
	if err := row.Scan(
		&e.ID, &e.AnimeSlug, &e.AnimeTitle, &e.EpisodeSlug, &e.Title,
		&e.Thumbnail, &e.Duration, &streamsJSON, &downloadsJSON,
		&e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(streamsJSON), &e.Streams)
	_ = json.Unmarshal([]byte(downloadsJSON), &e.Downloads)
	return &e, nil
}

func (r *Repo) GetBySlug(ctx context.Context, episodeSlug string) (*models.Episode, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+episodeColumns+`
		FROM episodes
		WHERE episode_slug = ?
	`, episodeSlug)

	e, err := scanEpisode(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan getBySlug: %w", err)
	}
	return e, nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (*models.Episode, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+episodeColumns+`
		FROM episodes
		WHERE id = ?
	`, id)

	e, err := scanEpisode(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan getByID: %w", err)
	}
	return e, nil
}

// ListByAnime returns every canonical episode of a title in creation
// order, oldest first. The implicit rowid breaks ties so insertion order
// survives same-second creations.
func (r *Repo) ListByAnime(ctx context.Context, animeSlug string) ([]models.Episode, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+episodeColumns+`
		FROM episodes
		WHERE anime_slug = ?
		ORDER BY created_at ASC, rowid ASC
	`, animeSlug)
	if err != nil {
		return nil, fmt.Errorf("list by anime: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

// Latest returns the most recently created episodes across all titles.
func (r *Repo) Latest(ctx context.Context, limit int) ([]models.Episode, error) {
	if limit <= 0 || limit > 100 {
		limit = 12
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+episodeColumns+`
		FROM episodes
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("latest episodes: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

// List pages through all episodes by update time, newest first.
func (r *Repo) List(ctx context.Context, limit, offset int) ([]models.Episode, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+episodeColumns+`
		FROM episodes
		ORDER BY updated_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

func (r *Repo) Create(ctx context.Context, e *models.Episode) error {
	streams, _ := json.Marshal(emptyStreamsIfNil(e.Streams))
	downloads, _ := json.Marshal(emptyDownloadsIfNil(e.Downloads))

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO episodes (id, anime_slug, anime_title, episode_slug,
			title, thumbnail_url, duration, streams, downloads)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.AnimeSlug, e.AnimeTitle, e.EpisodeSlug,
		e.Title, e.Thumbnail, e.Duration, string(streams), string(downloads))
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.E(apperr.Conflict, "episode slug already exists", err)
		}
		return fmt.Errorf("create episode: %w", err)
	}
	return nil
}

// Update edits the mutable fields of an episode: title, stream list and
// download groups. The slug and creation time never change, so the
// playback URL and watch order stay stable across edits.
func (r *Repo) Update(ctx context.Context, episodeSlug, title string, streams []models.StreamSource, downloads []models.DownloadGroup) error {
	sj, _ := json.Marshal(emptyStreamsIfNil(streams))
	dj, _ := json.Marshal(emptyDownloadsIfNil(downloads))

	res, err := r.DB.ExecContext(ctx, `
		UPDATE episodes
		SET title = ?, streams = ?, downloads = ?, updated_at = CURRENT_TIMESTAMP
		WHERE episode_slug = ?
	`, title, string(sj), string(dj), episodeSlug)
	if err != nil {
		return fmt.Errorf("update episode: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.E(apperr.NotFound, "episode not found", nil)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, episodeSlug string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM episodes WHERE episode_slug = ?`, episodeSlug)
	if err != nil {
		return false, fmt.Errorf("delete episode: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteByAnime removes all episodes of a title. Used by the cascade
// delete; reports how many rows went away.
func (r *Repo) DeleteByAnime(ctx context.Context, animeSlug string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM episodes WHERE anime_slug = ?`, animeSlug)
	if err != nil {
		return 0, fmt.Errorf("delete episodes by anime: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *Repo) CountAll(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM episodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count episodes: %w", err)
	}
	return n, nil
}

func collect(rows *sql.Rows) ([]models.Episode, error) {
	var out []models.Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode row: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func emptyStreamsIfNil(s []models.StreamSource) []models.StreamSource {
	if s == nil {
		return []models.StreamSource{}
	}
	return s
}

func emptyDownloadsIfNil(d []models.DownloadGroup) []models.DownloadGroup {
	if d == nil {
		return []models.DownloadGroup{}
	}
	return d
}
