package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/assetops/stocktake/internal/inventory/domain"
)

func TestSettingsDefaults(t *testing.T) {
	env := newTestEnv(t)

	current := env.settings.Current()
	require.False(t, current.SSOEnabled)
	require.False(t, current.RequireTOTP)
	require.False(t, current.JITProvisioning)
	require.EqualValues(t, 1, current.SessionEpoch)
}

func TestSettingsSaveIsAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.createUser(t, "alice", "pw", domain.RoleStandard)

	next := env.settings.Current()
	next.CompanyName = "Initech"

	err := env.settings.Save(ctx, user, next)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestSettingsSaveRefreshesCacheAndAudits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.createUser(t, "root", "pw", domain.RoleAdmin)

	next := env.settings.Current()
	next.CompanyName = "Initech"
	next.RequireTOTP = true
	require.NoError(t, env.settings.Save(ctx, admin, next))

	current := env.settings.Current()
	require.Equal(t, "Initech", current.CompanyName)
	require.True(t, current.RequireTOTP)

	entry := env.lastAudit(t)
	require.Equal(t, domain.ActionSettingsUpdated, entry.Action)
	require.NotNil(t, entry.Before)
	require.NotNil(t, entry.After)

	// A fresh load from the store sees the same state.
	require.NoError(t, env.settings.Load(ctx))
	require.Equal(t, "Initech", env.settings.Current().CompanyName)
}

func TestSettingsSaveDoesNotTouchSessionEpoch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.createUser(t, "root", "pw", domain.RoleAdmin)

	token, err := env.sessions.Issue(admin)
	require.NoError(t, err)

	next := env.settings.Current()
	next.CompanyName = "Initech"
	// Even a hostile epoch value in the payload is ignored.
	next.SessionEpoch = 999
	require.NoError(t, env.settings.Save(ctx, admin, next))

	_, err = env.sessions.Verify(token)
	require.NoError(t, err, "settings updates must not log everyone out")
}
