package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"nekostream/pkg/apperr"
)

type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string // "user" or "admin"
	AvatarURL    string
	CreatedAt    time.Time
}

func (u *User) IsAdmin() bool { return u.Role == "admin" }

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

func (r *Repo) CreateUser(ctx context.Context, u User) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, avatar_url)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.Username, u.PasswordHash, u.Role, u.AvatarURL)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.E(apperr.Conflict, "username already taken", err)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Repo) GetByUsername(ctx context.Context, username string) (*User, error) {
	username = strings.TrimSpace(username)
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, avatar_url, created_at
		FROM users
		WHERE username = ?
	`, username)

	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.AvatarURL, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get by username: %w", err)
	}
	return &u, nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (*User, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, avatar_url, created_at
		FROM users
		WHERE id = ?
	`, id)

	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.AvatarURL, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get by id: %w", err)
	}
	return &u, nil
}

// UpdateProfile rewrites username, avatar and password hash in place.
func (r *Repo) UpdateProfile(ctx context.Context, u *User) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE users
		SET username = ?, avatar_url = ?, password_hash = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, u.Username, u.AvatarURL, u.PasswordHash, u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.E(apperr.Conflict, "username already taken", err)
		}
		return fmt.Errorf("update profile: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.E(apperr.NotFound, "user not found", nil)
	}
	return nil
}

func (r *Repo) CountAll(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
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
