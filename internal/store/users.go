package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// User is one row of the user directory.
type User struct {
	ID        string
	Email     string
	Active    bool
	CreatedAt time.Time
}

// UserDirectory answers authorization and contact lookups from the users
// table. It implements auth.Directory and auth.Granter.
type UserDirectory struct {
	db *DB
}

// NewUserDirectory creates a directory over db.
func NewUserDirectory(db *DB) *UserDirectory {
	return &UserDirectory{db: db}
}

// IsAuthorized reports whether id is a known, active user.
func (d *UserDirectory) IsAuthorized(ctx context.Context, id string) (bool, error) {
	var active bool
	err := d.db.sql.QueryRowContext(ctx, "SELECT active FROM users WHERE id = ?", id).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("user %s: %w", id, err)
	}
	return active, nil
}

// ResolveContactEmail returns the stored email of an active user.
func (d *UserDirectory) ResolveContactEmail(ctx context.Context, id string) (string, bool, error) {
	var email string
	err := d.db.sql.QueryRowContext(ctx,
		"SELECT email FROM users WHERE id = ? AND active = 1", id,
	).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("user %s email: %w", id, err)
	}
	return email, email != "", nil
}

// Grant activates id, creating the user when needed. The email is kept.
func (d *UserDirectory) Grant(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("grant: empty user id")
	}
	_, err := d.db.sql.ExecContext(ctx, `
		INSERT INTO users (id, active, created_at) VALUES (?, 1, ?)
		ON CONFLICT(id) DO UPDATE SET active = 1`,
		id, time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("grant %s: %w", id, err)
	}
	d.db.log.Info().Str("user", id).Msg("user granted")
	return nil
}

// Revoke deactivates id. Unknown ids are ignored.
func (d *UserDirectory) Revoke(ctx context.Context, id string) error {
	if _, err := d.db.sql.ExecContext(ctx, "UPDATE users SET active = 0 WHERE id = ?", id); err != nil {
		return fmt.Errorf("revoke %s: %w", id, err)
	}
	d.db.log.Info().Str("user", id).Msg("user revoked")
	return nil
}

// SetEmail stores the contact email of id, creating an inactive user when
// it is unknown.
func (d *UserDirectory) SetEmail(ctx context.Context, id, email string) error {
	_, err := d.db.sql.ExecContext(ctx, `
		INSERT INTO users (id, email, active, created_at) VALUES (?, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET email = excluded.email`,
		id, email, time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("set email of %s: %w", id, err)
	}
	return nil
}

// List returns every user ordered by id.
func (d *UserDirectory) List(ctx context.Context) ([]User, error) {
	rows, err := d.db.sql.QueryContext(ctx, "SELECT id, email, active, created_at FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Email, &u.Active, &createdAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}
