package library

import (
	"context"
	"database/sql"
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

func (r *Repo) Exists(ctx context.Context, userID, animeSlug string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `
		SELECT 1 FROM bookmarks WHERE user_id = ? AND anime_slug = ?
	`, userID, animeSlug).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("bookmark exists: %w", err)
	}
	return true, nil
}

func (r *Repo) Create(ctx context.Context, userID, animeSlug string) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO bookmarks (user_id, anime_slug) VALUES (?, ?)
	`, userID, animeSlug)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.E(apperr.Conflict, "already bookmarked", err)
		}
		return fmt.Errorf("create bookmark: %w", err)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, userID, animeSlug string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM bookmarks WHERE user_id = ? AND anime_slug = ?
	`, userID, animeSlug)
	if err != nil {
		return false, fmt.Errorf("delete bookmark: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Toggle flips bookmark membership and reports the new state. A
// concurrent duplicate create loses the race on the unique pair and is
// treated as "already added", not an error: toggling is idempotent per
// observed state, and two racing adds both observe "added".
func (r *Repo) Toggle(ctx context.Context, userID, animeSlug string) (added bool, err error) {
	exists, err := r.Exists(ctx, userID, animeSlug)
	if err != nil {
		return false, err
	}

	if exists {
		if _, err := r.Delete(ctx, userID, animeSlug); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := r.Create(ctx, userID, animeSlug); err != nil {
		if apperr.IsKind(err, apperr.Conflict) {
			return true, nil
		}
		return false, err
	}
	return true, nil
}

// ListAnimes returns the user's bookmarked titles, newest bookmark
// first, joined against the canonical title rows.
func (r *Repo) ListAnimes(ctx context.Context, userID string) ([]models.AnimeSummary, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT a.slug, a.title, a.image_url, a.status, a.rating, a.kind
		FROM bookmarks b
		JOIN animes a ON a.slug = b.anime_slug
		WHERE b.user_id = ?
		ORDER BY b.created_at DESC, a.slug ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list library: %w", err)
	}
	defer rows.Close()

	var out []models.AnimeSummary
	for rows.Next() {
		var s models.AnimeSummary
		if err := rows.Scan(&s.Slug, &s.Title, &s.ImageURL, &s.Status, &s.Rating, &s.Kind); err != nil {
			return nil, fmt.Errorf("scan library row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// ClearAll empties the user's library.
func (r *Repo) ClearAll(ctx context.Context, userID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM bookmarks WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear library: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
