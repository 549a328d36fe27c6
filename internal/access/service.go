// Package access manages administrator roles.
package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"testdrive/internal/booking"
	"testdrive/internal/models"
)

// RoleStore persists user roles.
type RoleStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
	SetRole(ctx context.Context, userID string, role models.Role) error
	ListAdmins(ctx context.Context) ([]models.User, error)
}

type Service struct {
	roles  RoleStore
	logger zerolog.Logger
}

func NewService(roles RoleStore, logger zerolog.Logger) *Service {
	return &Service{
		roles:  roles,
		logger: logger.With().Str("component", "access").Logger(),
	}
}

// Grant makes userID an administrator. grantedBy must be an admin.
func (s *Service) Grant(ctx context.Context, userID, grantedBy string) error {
	return s.setRole(ctx, userID, grantedBy, false, models.RoleAdmin)
}

// GrantAsOperator makes userID an administrator on behalf of operator tooling
// with direct access to the store.
func (s *Service) GrantAsOperator(ctx context.Context, userID string) error {
	return s.setRole(ctx, userID, "", true, models.RoleAdmin)
}

// Revoke demotes userID to a regular user. The last administrator cannot be revoked.
func (s *Service) Revoke(ctx context.Context, userID, revokedBy string) error {
	return s.revoke(ctx, userID, revokedBy, false)
}

// RevokeAsOperator is Revoke on behalf of operator tooling.
func (s *Service) RevokeAsOperator(ctx context.Context, userID string) error {
	return s.revoke(ctx, userID, "", true)
}

func (s *Service) revoke(ctx context.Context, userID, by string, operator bool) error {
	userID = strings.TrimSpace(userID)
	admins, err := s.roles.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	if len(admins) == 1 && admins[0].ID == userID {
		return fmt.Errorf("%w: %s is the last administrator", booking.ErrInvalidRequest, userID)
	}
	return s.setRole(ctx, userID, by, operator, models.RoleUser)
}

func (s *Service) setRole(ctx context.Context, userID, by string, operator bool, role models.Role) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", booking.ErrInvalidRequest)
	}
	actor := "operator"
	if !operator {
		actor = strings.TrimSpace(by)
		if actor == "" {
			return fmt.Errorf("%w: acting user id is required", booking.ErrForbidden)
		}
		isAdmin, err := s.roles.IsAdmin(ctx, actor)
		if err != nil {
			return fmt.Errorf("checking admin status: %w", err)
		}
		if !isAdmin {
			return fmt.Errorf("%w: %s is not an administrator", booking.ErrForbidden, actor)
		}
	}

	if err := s.roles.SetRole(ctx, userID, role); err != nil {
		return err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("role", string(role)).
		Str("by", actor).
		Msg("role changed")
	return nil
}

func (s *Service) ListAdmins(ctx context.Context) ([]models.User, error) {
	return s.roles.ListAdmins(ctx)
}
