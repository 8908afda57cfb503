package anime

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

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

// Sort keys for List. Both are deterministic and descending so that
// skip/limit pagination stays stable while rows are inserted
// concurrently ("consistent as of read start").
const (
	SortUpdated = "updated_at"
	SortCreated = "created_at"
)

type ListQuery struct {
	Search   string   // case-insensitive substring match on title
	Statuses []string // any-match on info status
	Genre    string   // exact tag match, case-insensitive
	Sort     string   // SortUpdated (default) or SortCreated
	Limit    int
	Offset   int
}

const animeColumns = `slug, title, image_url, synopsis,
	status, kind, rating, released, studio, producer, alt_title,
	genres, episode_summaries, created_at, updated_at`

func scanAnime(row interface{ Scan(...any) error }) (*models.Anime, error) {
	var (
		a             models.Anime
		genresJSON    string
		summariesJSON string
	)
	if err := row.Scan(
		&a.Slug, &a.Title, &a.ImageURL, &a.Synopsis,
		&a.Info.Status, &a.Info.Kind, &a.Info.Rating, &a.Info.Released,
		&a.Info.Studio, &a.Info.Producer, &a.Info.AltTitle,
		&genresJSON, &summariesJSON, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(genresJSON), &a.Genres)
	_ = json.Unmarshal([]byte(summariesJSON), &a.Episodes)
	return &a, nil
}

func (r *Repo) GetBySlug(ctx context.Context, slug string) (*models.Anime, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+animeColumns+`
		FROM animes
		WHERE slug = ?
	`, slug)

	a, err := scanAnime(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan getBySlug: %w", err)
	}
	return a, nil
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.Anime, error) {
	sqlStr, args := buildListSQL(q, false)

	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list query: %w", err)
	}
	defer rows.Close()

	out := make([]models.Anime, 0, q.Limit)
	for rows.Next() {
		a, err := scanAnime(rows)
		if err != nil {
			return nil, fmt.Errorf("list scan: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	sqlStr, args := buildListSQL(q, true)
	var total int
	if err := r.DB.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count scan: %w", err)
	}
	return total, nil
}

// buildListSQL builds either COUNT(*) or the SELECT list. The genre
// filter matches the quoted tag inside the stored JSON text, so "drama"
// does not match "melodrama".
func buildListSQL(q ListQuery, countOnly bool) (string, []any) {
	baseSelect := `SELECT ` + animeColumns + ` FROM animes`
	if countOnly {
		baseSelect = `SELECT COUNT(*) FROM animes`
	}

	var where []string
	var args []any

	if strings.TrimSpace(q.Search) != "" {
		where = append(where, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(q.Search))+"%")
	}

	if len(q.Statuses) > 0 {
		marks := make([]string, 0, len(q.Statuses))
		for _, s := range q.Statuses {
			marks = append(marks, "?")
			args = append(args, strings.ToLower(strings.TrimSpace(s)))
		}
		where = append(where, "LOWER(status) IN ("+strings.Join(marks, ", ")+")")
	}

	if g := strings.TrimSpace(q.Genre); g != "" {
		where = append(where, "LOWER(genres) LIKE ?")
		args = append(args, `%"`+strings.ToLower(g)+`"%`)
	}

	sqlStr := baseSelect
	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}

	if !countOnly {
		sortKey := SortUpdated
		if q.Sort == SortCreated {
			sortKey = SortCreated
		}
		sqlStr += " ORDER BY " + sortKey + " DESC, slug ASC"
		sqlStr += " LIMIT ? OFFSET ?"
		limit := q.Limit
		if limit <= 0 || limit > 100 {
			limit = 20
		}
		offset := q.Offset
		if offset < 0 {
			offset = 0
		}
		args = append(args, limit, offset)
	}

	return sqlStr, args
}

// DistinctGenres returns every genre tag in use, blank-free and
// lexicographically sorted. Tags live inside JSON text columns, so the
// union is computed here rather than with SELECT DISTINCT.
func (r *Repo) DistinctGenres(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT genres FROM animes`)
	if err != nil {
		return nil, fmt.Errorf("distinct genres query: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var genresJSON string
		if err := rows.Scan(&genresJSON); err != nil {
			return nil, fmt.Errorf("distinct genres scan: %w", err)
		}
		var genres []string
		_ = json.Unmarshal([]byte(genresJSON), &genres)
		for _, g := range genres {
			g = strings.TrimSpace(g)
			if g == "" {
				continue
			}
			seen[g] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}

	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Repo) Create(ctx context.Context, a *models.Anime) error {
	genres, _ := json.Marshal(emptyIfNil(a.Genres))
	summaries, _ := json.Marshal(emptySummariesIfNil(a.Episodes))

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO animes (slug, title, image_url, synopsis,
			status, kind, rating, released, studio, producer, alt_title,
			genres, episode_summaries)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.Slug, a.Title, a.ImageURL, a.Synopsis,
		a.Info.Status, a.Info.Kind, a.Info.Rating, a.Info.Released,
		a.Info.Studio, a.Info.Producer, a.Info.AltTitle,
		string(genres), string(summaries))
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.E(apperr.Conflict, "slug already exists", err)
		}
		return fmt.Errorf("create anime: %w", err)
	}
	return nil
}

// Update edits everything except the slug, which is immutable, and the
// denormalized summary list, which only AppendEpisodeSummary and the
// backup restore touch.
func (r *Repo) Update(ctx context.Context, a *models.Anime) error {
	genres, _ := json.Marshal(emptyIfNil(a.Genres))

	res, err := r.DB.ExecContext(ctx, `
		UPDATE animes
		SET title = ?, image_url = ?, synopsis = ?,
			status = ?, kind = ?, rating = ?, released = ?,
			studio = ?, producer = ?, alt_title = ?,
			genres = ?, updated_at = CURRENT_TIMESTAMP
		WHERE slug = ?
	`, a.Title, a.ImageURL, a.Synopsis,
		a.Info.Status, a.Info.Kind, a.Info.Rating, a.Info.Released,
		a.Info.Studio, a.Info.Producer, a.Info.AltTitle,
		string(genres), a.Slug)
	if err != nil {
		return fmt.Errorf("update anime: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.E(apperr.NotFound, "anime not found", nil)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, slug string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM animes WHERE slug = ?`, slug)
	if err != nil {
		return false, fmt.Errorf("delete anime: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AppendEpisodeSummary pushes one entry onto the denormalized summary
// list. Runs in a transaction because it is a read-modify-write of a
// JSON column.
func (r *Repo) AppendEpisodeSummary(ctx context.Context, slug string, s models.EpisodeSummary) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append summary: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var summariesJSON string
	if err = tx.QueryRowContext(ctx, `
		SELECT episode_summaries FROM animes WHERE slug = ?
	`, slug).Scan(&summariesJSON); err != nil {
		if err == sql.ErrNoRows {
			return apperr.E(apperr.NotFound, "anime not found", nil)
		}
		return fmt.Errorf("read summaries: %w", err)
	}

	var summaries []models.EpisodeSummary
	_ = json.Unmarshal([]byte(summariesJSON), &summaries)
	summaries = append(summaries, s)

	b, _ := json.Marshal(summaries)
	if _, err = tx.ExecContext(ctx, `
		UPDATE animes
		SET episode_summaries = ?, updated_at = CURRENT_TIMESTAMP
		WHERE slug = ?
	`, string(b), slug); err != nil {
		return fmt.Errorf("write summaries: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit append summary: %w", err)
	}
	return nil
}

func (r *Repo) CountAll(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM animes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count animes: %w", err)
	}
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

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptySummariesIfNil(s []models.EpisodeSummary) []models.EpisodeSummary {
	if s == nil {
		return []models.EpisodeSummary{}
	}
	return s
}
