package access

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"testdrive/internal/booking"
	"testdrive/internal/models"
)

type mockRoles struct {
	mock.Mock
}

func (m *mockRoles) IsAdmin(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockRoles) SetRole(ctx context.Context, userID string, role models.Role) error {
	return m.Called(ctx, userID, role).Error(0)
}

func (m *mockRoles) ListAdmins(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func TestService(t *testing.T) {
	roles := new(mockRoles)
	svc := NewService(roles, zerolog.New(io.Discard))
	ctx := context.Background()

	t.Run("OperatorGrant", func(t *testing.T) {
		roles.On("SetRole", ctx, "boss", models.RoleAdmin).Return(nil).Once()

		assert.NoError(t, svc.GrantAsOperator(ctx, " boss "))
		roles.AssertExpectations(t)
	})

	t.Run("AdminGrant", func(t *testing.T) {
		roles.On("IsAdmin", ctx, "boss").Return(true, nil).Once()
		roles.On("SetRole", ctx, "deputy", models.RoleAdmin).Return(nil).Once()

		assert.NoError(t, svc.Grant(ctx, "deputy", "boss"))
		roles.AssertExpectations(t)
	})

	t.Run("NonAdminForbidden", func(t *testing.T) {
		roles.On("IsAdmin", ctx, "alice").Return(false, nil).Once()

		err := svc.Grant(ctx, "alice", "alice")
		assert.ErrorIs(t, err, booking.ErrForbidden)
		roles.AssertNotCalled(t, "SetRole", ctx, "alice", models.RoleAdmin)
	})

	t.Run("EmptyActorForbidden", func(t *testing.T) {
		// A missing caller id is not the operator.
		assert.ErrorIs(t, svc.Grant(ctx, "mallory", ""), booking.ErrForbidden)
		assert.ErrorIs(t, svc.Grant(ctx, "mallory", "  "), booking.ErrForbidden)
		roles.AssertNotCalled(t, "IsAdmin", ctx, "")
		roles.AssertNotCalled(t, "SetRole", ctx, "mallory", models.RoleAdmin)
	})

	t.Run("EmptyUser", func(t *testing.T) {
		assert.ErrorIs(t, svc.GrantAsOperator(ctx, "  "), booking.ErrInvalidRequest)
	})

	t.Run("Revoke", func(t *testing.T) {
		roles.On("ListAdmins", ctx).Return([]models.User{{ID: "boss"}, {ID: "deputy"}}, nil).Once()
		roles.On("IsAdmin", ctx, "boss").Return(true, nil).Once()
		roles.On("SetRole", ctx, "deputy", models.RoleUser).Return(nil).Once()

		assert.NoError(t, svc.Revoke(ctx, "deputy", "boss"))
		roles.AssertExpectations(t)
	})

	t.Run("RevokeLastAdmin", func(t *testing.T) {
		roles.On("ListAdmins", ctx).Return([]models.User{{ID: "boss"}}, nil).Once()

		assert.ErrorIs(t, svc.RevokeAsOperator(ctx, "boss"), booking.ErrInvalidRequest)
	})

	t.Run("RevokeLastAdminPadded", func(t *testing.T) {
		roles.On("ListAdmins", ctx).Return([]models.User{{ID: "boss"}}, nil).Once()

		assert.ErrorIs(t, svc.RevokeAsOperator(ctx, " boss "), booking.ErrInvalidRequest)
		roles.AssertNotCalled(t, "SetRole", ctx, "boss", models.RoleUser)
	})

	t.Run("StoreError", func(t *testing.T) {
		roles.On("ListAdmins", ctx).Return(nil, errors.New("db closed")).Once()

		assert.Error(t, svc.RevokeAsOperator(ctx, "deputy"))
	})
}
