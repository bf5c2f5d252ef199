// Package store is the persistence gateway for user accounts and
// calculation history. Each call is individually atomic; no transaction
// spans the debit/evaluate/persist sequence (the registry's per-user lock
// provides the serialization that matters while a user is live).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/notepid/calcserv/internal/user"
)

// ErrNotFound is returned when no user row matches the requested login or id.
var ErrNotFound = errors.New("user not found")

// Store handles database operations for users and calculation history.
type Store struct {
	db *sql.DB
}

// New creates a store over an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// FetchUserByLogin retrieves a user by login name.
func (s *Store) FetchUserByLogin(ctx context.Context, login string) (*user.User, error) {
	return s.fetchUser(ctx, "login = ?", login)
}

// FetchUserByID retrieves a user by id.
func (s *Store) FetchUserByID(ctx context.Context, id int64) (*user.User, error) {
	return s.fetchUser(ctx, "id = ?", id)
}

func (s *Store) fetchUser(ctx context.Context, where string, arg any) (*user.User, error) {
	u := &user.User{}
	var role string
	var created, updated sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, login, password_hash, balance, role, created_at, updated_at
		FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Login, &u.PasswordHash, &u.Balance, &role, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}

	u.Role = user.ParseRole(role)
	if created.Valid {
		u.CreatedAt = created.Time
	}
	if updated.Valid {
		u.UpdatedAt = updated.Time
	}

	return u, nil
}

// InsertNewUser creates an account with an already-hashed credential and
// returns the stored record.
func (s *Store) InsertNewUser(ctx context.Context, login, passwordHash string, role user.Role, balance int64) (*user.User, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (login, password_hash, balance, role)
		VALUES (?, ?, ?, ?)
	`, login, passwordHash, balance, string(role))
	if err != nil {
		return nil, fmt.Errorf("insert user %s: %w", login, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get user id: %w", err)
	}

	return s.FetchUserByID(ctx, id)
}

// UpdateUserBalance persists a new balance for the given user id.
func (s *Store) UpdateUserBalance(ctx context.Context, userID, balance int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET balance = ?, updated_at = ? WHERE id = ?
	`, balance, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("update balance for user %d: %w", userID, err)
	}
	return nil
}

// UpdateUserRole changes an account's role.
func (s *Store) UpdateUserRole(ctx context.Context, userID int64, role user.Role) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET role = ?, updated_at = ? WHERE id = ?
	`, string(role), time.Now(), userID)
	if err != nil {
		return fmt.Errorf("update role for user %d: %w", userID, err)
	}
	return nil
}

// UpdateUserPassword replaces an account's credential hash.
func (s *Store) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?
	`, passwordHash, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("update password for user %d: %w", userID, err)
	}
	return nil
}

// Exists reports whether a login is already taken.
func (s *Store) Exists(ctx context.Context, login string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE login = ?", login).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check login %s: %w", login, err)
	}
	return count > 0, nil
}

// ListUsers returns all users ordered by login.
func (s *Store) ListUsers(ctx context.Context) ([]*user.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, login, password_hash, balance, role, created_at, updated_at
		FROM users ORDER BY login
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		u := &user.User{}
		var role string
		var created, updated sql.NullTime
		if err := rows.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.Balance, &role, &created, &updated); err != nil {
			return nil, err
		}
		u.Role = user.ParseRole(role)
		if created.Valid {
			u.CreatedAt = created.Time
		}
		if updated.Valid {
			u.UpdatedAt = updated.Time
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
