package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/assetops/stocktake/internal/inventory/domain"
)

func TestCreateUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.createUser(t, "root", "pw", domain.RoleAdmin)

	created, err := env.users.Create(ctx, admin, CreateUserParams{
		Username: "Alice ",
		Password: "her-password",
		Role:     domain.RoleStandard,
	})
	require.NoError(t, err)
	require.Equal(t, "alice", created.User.Username, "usernames are normalised")
	require.Empty(t, created.GeneratedPassword)

	result, err := env.auth.Authenticate(ctx, "alice", "her-password")
	require.NoError(t, err)
	require.NotEmpty(t, result.SessionToken)

	entries, err := env.audit.List(ctx, domain.AuditFilter{Action: domain.ActionUserCreated})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "root", entries[0].Actor)
	require.Equal(t, "alice", entries[0].EntityID)
}

func TestCreateUserGeneratesPasswordWhenUnset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.createUser(t, "root", "pw", domain.RoleAdmin)

	created, err := env.users.Create(ctx, admin, CreateUserParams{
		Username: "bob",
		Role:     domain.RoleStandard,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.GeneratedPassword)

	_, err = env.auth.Authenticate(ctx, "bob", created.GeneratedPassword)
	require.NoError(t, err)
}

func TestCreateUserValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.createUser(t, "root", "pw", domain.RoleAdmin)
	standard := env.createUser(t, "alice", "pw", domain.RoleStandard)

	t.Run("admin only", func(t *testing.T) {
		_, err := env.users.Create(ctx, standard, CreateUserParams{
			Username: "eve", Password: "pw", Role: domain.RoleStandard,
		})
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("username required", func(t *testing.T) {
		_, err := env.users.Create(ctx, admin, CreateUserParams{
			Username: "   ", Password: "pw", Role: domain.RoleStandard,
		})
		require.Error(t, err)
	})

	t.Run("role must be a member of the closed set", func(t *testing.T) {
		_, err := env.users.Create(ctx, admin, CreateUserParams{
			Username: "eve", Password: "pw", Role: domain.Role("superuser"),
		})
		require.Error(t, err)
	})

	t.Run("duplicate username", func(t *testing.T) {
		_, err := env.users.Create(ctx, admin, CreateUserParams{
			Username: "alice", Password: "pw", Role: domain.RoleStandard,
		})
		require.ErrorIs(t, err, ErrUsernameTaken)
	})
}

func TestBootstrapSeedsAdminOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	boot := &BootstrapService{
		Store:         st,
		AdminUsername: "admin",
		AdminPassword: "first-run-password",
	}

	require.NoError(t, boot.EnsureAdmin(ctx))

	admin, err := st.Users().GetUserByUsername(ctx, "admin")
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, admin.Role)

	// A second startup with users present does nothing.
	require.NoError(t, boot.EnsureAdmin(ctx))

	users, err := st.Users().ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
}
