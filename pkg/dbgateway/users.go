package dbgateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UserQueries covers auth.users and auth.refresh_tokens: the "auth" and
// "verification"/"password_reset" method groups named in spec §9 share the
// same user row, so they live on one accessor.
type UserQueries struct {
	db *sql.DB
}

func (q *UserQueries) Create(ctx context.Context, u User) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO auth_users (id, email, password_hash, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, u.ID, u.Email, u.PasswordHash, u.Role)
	return err
}

func (q *UserQueries) ByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, created_at, updated_at
		FROM auth_users WHERE email = ?
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user by email: %w", err)
	}
	return u, nil
}

func (q *UserQueries) ByID(ctx context.Context, id string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, created_at, updated_at
		FROM auth_users WHERE id = ?
	`, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user by id: %w", err)
	}
	return u, nil
}

func (q *UserQueries) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE auth_users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, passwordHash, userID)
	return err
}

func (q *UserQueries) SaveRefreshToken(ctx context.Context, rt RefreshToken) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO auth_refresh_tokens (token, user_id, expires_at, created_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, rt.Token, rt.UserID, rt.ExpiresAt)
	return err
}

func (q *UserQueries) RefreshToken(ctx context.Context, token string) (RefreshToken, error) {
	var rt RefreshToken
	err := q.db.QueryRowContext(ctx, `
		SELECT token, user_id, expires_at, created_at FROM auth_refresh_tokens WHERE token = ?
	`, token).Scan(&rt.Token, &rt.UserID, &rt.ExpiresAt, &rt.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RefreshToken{}, ErrNotFound
	}
	if err != nil {
		return RefreshToken{}, fmt.Errorf("query refresh token: %w", err)
	}
	if rt.ExpiresAt.Before(time.Now()) {
		return RefreshToken{}, ErrNotFound
	}
	return rt, nil
}

func (q *UserQueries) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM auth_refresh_tokens WHERE token = ?`, token)
	return err
}
