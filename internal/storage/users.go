package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/meur/anythink/internal/models"
)

const (
	userSelect = `SELECT id, username, email, password_hash, bio, image, created_at, updated_at FROM users`
	followStmt = "INSERT OR IGNORE INTO follows (follower_id, followed_id) VALUES (?, ?)"
)

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u          models.User
		bio, image sql.NullString
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &bio, &image, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Bio = stringPtr(bio)
	u.Image = stringPtr(image)
	return &u, nil
}

// CreateUser inserts u and sets its ID. Duplicate usernames or emails yield
// a *ConflictError.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return insertUser(ctx, s.db, u)
}

func insertUser(ctx context.Context, q execer, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.UpdatedAt = u.CreatedAt

	res, err := q.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, bio, image, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.Username, u.Email, u.PasswordHash, nullString(u.Bio), nullString(u.Image), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if conflict := uniqueViolation(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	return err
}

// GetUserByID returns ErrNotFound when no user has the id.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, userSelect+" WHERE id = ?", id))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, userSelect+" WHERE username = ?", username))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, userSelect+" WHERE email = ?", email))
}

// UpdateUser writes every mutable column of u.
func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET username = ?, email = ?, password_hash = ?, bio = ?, image = ?, updated_at = ?
		WHERE id = ?
	`, u.Username, u.Email, u.PasswordHash, nullString(u.Bio), nullString(u.Image), u.UpdatedAt, u.ID)
	if err != nil {
		if conflict := uniqueViolation(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Follow records that followerID follows followedID. Repeating it is a no-op.
func (s *Store) Follow(ctx context.Context, followerID, followedID int64) error {
	_, err := s.db.ExecContext(ctx, followStmt, followerID, followedID)
	if err != nil {
		return fmt.Errorf("follow: %w", err)
	}
	return nil
}

func (s *Store) Unfollow(ctx context.Context, followerID, followedID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM follows WHERE follower_id = ? AND followed_id = ?", followerID, followedID)
	if err != nil {
		return fmt.Errorf("unfollow: %w", err)
	}
	return nil
}

// FollowedUserIDs reports which of userIDs are followed by followerID.
func (s *Store) FollowedUserIDs(ctx context.Context, followerID int64, userIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool)
	if len(userIDs) == 0 {
		return out, nil
	}
	args := append([]interface{}{followerID}, int64Args(userIDs)...)
	rows, err := s.db.QueryContext(ctx,
		"SELECT followed_id FROM follows WHERE follower_id = ? AND followed_id IN ("+placeholders(len(userIDs))+")",
		args...)
	if err != nil {
		return nil, fmt.Errorf("load follows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}
