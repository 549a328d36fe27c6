package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"testdrive/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, role, COALESCE(telegram_chat_id, 0), created_at, updated_at
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &role, &u.TelegramChatID, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return &u, nil
}

func (s *Store) SetRole(ctx context.Context, id string, role models.Role) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, role) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, updated_at = now()`,
		id, string(role))
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	s.logger.Info().Str("user_id", id).Str("role", string(role)).Msg("User role updated")
	return nil
}

// IsAdmin reports whether id holds the ADMIN role. Unknown users are not admins.
func (s *Store) IsAdmin(ctx context.Context, id string) (bool, error) {
	var role string
	err := s.pool.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, id).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup role: %w", err)
	}
	return models.Role(role) == models.RoleAdmin, nil
}

func (s *Store) ListAdmins(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, role, COALESCE(telegram_chat_id, 0), created_at, updated_at
		FROM users WHERE role = $1 ORDER BY id`, string(models.RoleAdmin))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var (
			u    models.User
			role string
		)
		if err := rows.Scan(&u.ID, &role, &u.TelegramChatID, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.Role = models.Role(role)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) LinkTelegram(ctx context.Context, id string, chatID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, role, telegram_chat_id) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET telegram_chat_id = EXCLUDED.telegram_chat_id, updated_at = now()`,
		id, string(models.RoleUser), chatID)
	return err
}

func (s *Store) TelegramChatID(ctx context.Context, id string) (int64, bool, error) {
	var chatID *int64
	err := s.pool.QueryRow(ctx, `SELECT telegram_chat_id FROM users WHERE id = $1`, id).Scan(&chatID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if chatID == nil || *chatID == 0 {
		return 0, false, nil
	}
	return *chatID, true, nil
}
