package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/store"
)

func TestAuthenticatePasswordOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.createUser(t, "alice", "correct horse battery", domain.RoleStandard)

	result, err := env.auth.Authenticate(ctx, "alice", "correct horse battery")
	require.NoError(t, err)
	require.False(t, result.TwoFARequired)
	require.NotEmpty(t, result.SessionToken)
	require.Equal(t, user.ID, result.User.ID)

	claims, err := env.sessions.Verify(result.SessionToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, domain.RoleStandard, claims.Role)

	entry := env.lastAudit(t)
	require.Equal(t, domain.ActionLoginSuccess, entry.Action)
	require.Equal(t, "alice", entry.Actor)
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createUser(t, "alice", "right-password", domain.RoleStandard)

	t.Run("wrong password", func(t *testing.T) {
		_, err := env.auth.Authenticate(ctx, "alice", "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)

		entry := env.lastAudit(t)
		require.Equal(t, domain.ActionLoginFailed, entry.Action)
	})

	t.Run("unknown username yields the same error", func(t *testing.T) {
		_, err := env.auth.Authenticate(ctx, "nobody", "whatever")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("sso-only account cannot use a password", func(t *testing.T) {
		env.createSSOUser(t, "bob", "idp-subject-bob")

		_, err := env.auth.Authenticate(ctx, "bob", "any-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestAuthenticateIssuesChallengeForEnrolledUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.createUser(t, "alice", "pw", domain.RoleStandard)
	env.enrollTOTP(t, user)

	result, err := env.auth.Authenticate(ctx, "alice", "pw")
	require.NoError(t, err)
	require.True(t, result.TwoFARequired)
	require.NotEmpty(t, result.ChallengeID)
	require.Empty(t, result.SessionToken, "no session before the second factor")

	entry := env.lastAudit(t)
	require.Equal(t, domain.ActionLoginChallenge, entry.Action)
}

func TestAuthenticateHonoursRequireTOTPPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createUser(t, "alice", "pw", domain.RoleStandard)
	env.saveSettings(t, func(s *domain.Settings) { s.RequireTOTP = true })

	// Policy demands a second factor even though alice never enrolled.
	result, err := env.auth.Authenticate(ctx, "alice", "pw")
	require.NoError(t, err)
	require.True(t, result.TwoFARequired)
	require.Empty(t, result.SessionToken)
}

func TestAuthenticateFailsFastDuringExclusiveOperation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createUser(t, "alice", "pw", domain.RoleStandard)

	release, err := env.gate.Exclusive()
	require.NoError(t, err)
	defer release()

	_, err = env.auth.Authenticate(ctx, "alice", "pw")
	require.ErrorIs(t, err, ErrDatabaseBusy)
}

func TestSessionVerifyRejectsStaleEpoch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.createUser(t, "alice", "pw", domain.RoleStandard)

	token, err := env.sessions.Issue(user)
	require.NoError(t, err)

	_, err = env.sessions.Verify(token)
	require.NoError(t, err)

	require.NoError(t, env.store.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.Settings().BumpSessionEpoch(ctx)
		return err
	}))
	require.NoError(t, env.settings.Load(ctx))

	_, err = env.sessions.Verify(token)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestSessionVerifyRejectsGarbage(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.sessions.Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidSession)

	other := &SessionSigner{
		Secret: []byte("a-different-secret"),
		Issuer: env.sessions.Issuer,
		Epoch:  env.sessions.Epoch,
	}
	token, err := other.Issue(domain.User{ID: "x", Username: "x", Role: domain.RoleStandard})
	require.NoError(t, err)

	_, err = env.sessions.Verify(token)
	require.ErrorIs(t, err, ErrInvalidSession)
}
