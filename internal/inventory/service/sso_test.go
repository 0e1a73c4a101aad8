package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/assetops/stocktake/internal/inventory/domain"
)

func signAssertion(t *testing.T, secret []byte, issuer, subject, username string, ttl time.Duration) string {
	t.Helper()

	claims := assertionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Username: username,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func enableSSO(t *testing.T, env *testEnv, jit bool) {
	t.Helper()
	env.saveSettings(t, func(s *domain.Settings) {
		s.SSOEnabled = true
		s.SSOLoginURL = "https://idp.example/login"
		s.JITProvisioning = jit
	})
}

func TestInitiateLogin(t *testing.T) {
	env := newTestEnv(t)

	t.Run("disabled by default", func(t *testing.T) {
		_, err := env.sso.InitiateLogin()
		require.ErrorIs(t, err, ErrSSODisabled)
	})

	enableSSO(t, env, false)

	url, err := env.sso.InitiateLogin()
	require.NoError(t, err)
	require.Equal(t, "https://idp.example/login", url)
}

func TestConsumeAssertionMapsKnownSubject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	enableSSO(t, env, false)
	user := env.createSSOUser(t, "alice", "idp-alice")

	assertion := signAssertion(t, env.sso.AssertionSecret, "idp-test", "idp-alice", "alice", time.Minute)

	result, err := env.sso.ConsumeAssertion(ctx, assertion)
	require.NoError(t, err)
	require.Equal(t, user.ID, result.User.ID)
	require.NotEmpty(t, result.SessionToken)

	entry := env.lastAudit(t)
	require.Equal(t, domain.ActionSSOLogin, entry.Action)
	require.Equal(t, "alice", entry.Actor)
}

func TestConsumeAssertionRejectsBadAssertions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	enableSSO(t, env, false)
	env.createSSOUser(t, "alice", "idp-alice")

	t.Run("wrong signing key", func(t *testing.T) {
		assertion := signAssertion(t, []byte("attacker-key"), "idp-test", "idp-alice", "alice", time.Minute)
		_, err := env.sso.ConsumeAssertion(ctx, assertion)
		require.ErrorIs(t, err, ErrSSOAssertionInvalid)
	})

	t.Run("untrusted issuer", func(t *testing.T) {
		assertion := signAssertion(t, env.sso.AssertionSecret, "other-idp", "idp-alice", "alice", time.Minute)
		_, err := env.sso.ConsumeAssertion(ctx, assertion)
		require.ErrorIs(t, err, ErrSSOAssertionInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		assertion := signAssertion(t, env.sso.AssertionSecret, "idp-test", "idp-alice", "alice", -time.Minute)
		_, err := env.sso.ConsumeAssertion(ctx, assertion)
		require.ErrorIs(t, err, ErrSSOAssertionInvalid)
	})

	t.Run("failure is audited", func(t *testing.T) {
		entry := env.lastAudit(t)
		require.Equal(t, domain.ActionSSOLoginFailed, entry.Action)
	})
}

func TestConsumeAssertionWhenDisabled(t *testing.T) {
	env := newTestEnv(t)

	assertion := signAssertion(t, env.sso.AssertionSecret, "idp-test", "idp-alice", "alice", time.Minute)

	_, err := env.sso.ConsumeAssertion(context.Background(), assertion)
	require.ErrorIs(t, err, ErrSSODisabled)
}

func TestConsumeAssertionUnknownSubject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	enableSSO(t, env, false)

	assertion := signAssertion(t, env.sso.AssertionSecret, "idp-test", "idp-stranger", "stranger", time.Minute)

	_, err := env.sso.ConsumeAssertion(ctx, assertion)
	require.ErrorIs(t, err, ErrUnknownSSOSubject)

	entry := env.lastAudit(t)
	require.Equal(t, domain.ActionSSOLoginFailed, entry.Action)
}

func TestConsumeAssertionProvisionsJustInTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	enableSSO(t, env, true)

	assertion := signAssertion(t, env.sso.AssertionSecret, "idp-test", "idp-new", "Newcomer", time.Minute)

	result, err := env.sso.ConsumeAssertion(ctx, assertion)
	require.NoError(t, err)
	require.NotEmpty(t, result.SessionToken)

	user, err := env.store.Users().GetUserBySSOSubject(ctx, "idp-new")
	require.NoError(t, err)
	require.Equal(t, "newcomer", user.Username)
	require.Equal(t, domain.RoleStandard, user.Role)
	require.True(t, user.SSOOnly)
	require.Empty(t, user.PasswordHash)

	// A second assertion reuses the provisioned account.
	again, err := env.sso.ConsumeAssertion(ctx, assertion)
	require.NoError(t, err)
	require.Equal(t, user.ID, again.User.ID)
}

func TestConsumeAssertionJITUsernameCollision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	enableSSO(t, env, true)
	env.createUser(t, "alice", "pw", domain.RoleStandard)

	// A first-seen subject must not attach itself to an existing password
	// account just by claiming its username.
	assertion := signAssertion(t, env.sso.AssertionSecret, "idp-test", "idp-imposter", "alice", time.Minute)

	_, err := env.sso.ConsumeAssertion(ctx, assertion)
	require.ErrorIs(t, err, ErrSSOAssertionInvalid)
}
