package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"testdrive/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

const userColumns = `id, role, COALESCE(telegram_chat_id, 0), created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Role, &u.TelegramChatID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser returns the local record of a user.
func (db *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	return u, err
}

// SetRole creates the user when needed and assigns role.
func (db *DB) SetRole(ctx context.Context, id string, role models.Role) error {
	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, role, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at`,
		id, role, now, now)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	db.logger.Info().Str("user_id", id).Str("role", string(role)).Msg("User role updated")
	return nil
}

// IsAdmin reports whether id holds the ADMIN role. Unknown users are not admins.
func (db *DB) IsAdmin(ctx context.Context, id string) (bool, error) {
	var role string
	err := db.QueryRowContext(ctx, `SELECT role FROM users WHERE id = ?`, id).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup role: %w", err)
	}
	return models.Role(role) == models.RoleAdmin, nil
}

// ListAdmins returns every user with the ADMIN role.
func (db *DB) ListAdmins(ctx context.Context) ([]models.User, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE role = ? ORDER BY id`, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// LinkTelegram stores the chat used for notifications to the user.
func (db *DB) LinkTelegram(ctx context.Context, id string, chatID int64) error {
	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, role, telegram_chat_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET telegram_chat_id = excluded.telegram_chat_id, updated_at = excluded.updated_at`,
		id, models.RoleUser, chatID, now, now)
	return err
}

// TelegramChatID returns the linked chat of a user; ok is false when none is linked.
func (db *DB) TelegramChatID(ctx context.Context, id string) (chatID int64, ok bool, err error) {
	var v sql.NullInt64
	err = db.QueryRowContext(ctx, `SELECT telegram_chat_id FROM users WHERE id = ?`, id).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v.Int64, v.Valid && v.Int64 != 0, nil
}
