package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/store"
	"github.com/assetops/stocktake/pkg/cryptox"
	"github.com/assetops/stocktake/pkg/idx"
	"github.com/assetops/stocktake/pkg/slogx"
)

// DefaultChallengeTTL is how long a login challenge stays redeemable.
const DefaultChallengeTTL = 5 * time.Minute

// ErrInvalidCredentials covers unknown username, wrong password, and
// password login against an SSO-only account. One error for all three:
// the response must not reveal which accounts exist.
var ErrInvalidCredentials = errors.New("invalid credentials")

var (
	decoyOnce sync.Once
	decoyHash string
)

// decoyPasswordHash is verified against when the username does not resolve,
// so a failed lookup costs the same as a failed password check.
func decoyPasswordHash() string {
	decoyOnce.Do(func() {
		var err error
		decoyHash, err = cryptox.HashPassword("decoy-" + idx.New().String())
		if err != nil {
			panic(fmt.Sprintf("failed to prepare decoy hash: %v", err))
		}
	})
	return decoyHash
}

type AuthService struct {
	Store    store.Store
	Settings *SettingsService
	Sessions *SessionSigner
	Gate     *Gate

	ChallengeTTL time.Duration
}

func (s *AuthService) challengeTTL() time.Duration {
	if s.ChallengeTTL > 0 {
		return s.ChallengeTTL
	}
	return DefaultChallengeTTL
}

// Authenticate validates a username/password pair. On success it either
// issues a session or, when a second factor is required, returns a login
// challenge to be completed via the TOTP manager. Every attempt is audited
// with its outcome; the caller-facing error never distinguishes unknown
// username from wrong password.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (domain.LoginResult, error) {
	log := slogx.FromContext(ctx)

	user, lookupErr := s.Store.Users().GetUserByUsername(ctx, username)

	hash := user.PasswordHash
	if lookupErr != nil || user.SSOOnly || hash == "" {
		// Burn a verification anyway so response timing stays flat.
		hash = decoyPasswordHash()
	}

	verifyErr := cryptox.VerifyPassword(password, hash)

	if lookupErr != nil || user.SSOOnly || user.PasswordHash == "" || verifyErr != nil {
		if lookupErr != nil && !errors.Is(lookupErr, store.ErrNotFound) {
			return domain.LoginResult{}, lookupErr
		}

		if err := s.auditAttempt(ctx, username, domain.ActionLoginFailed); err != nil {
			return domain.LoginResult{}, err
		}
		log.Info("login failed", "username", username)
		return domain.LoginResult{}, ErrInvalidCredentials
	}

	settings := s.Settings.Current()
	needsSecondFactor := user.SecondFactorActive() ||
		(settings.RequireTOTP && !user.SSOOnly)

	if needsSecondFactor {
		challenge := domain.LoginChallenge{
			ID:        idx.New().String(),
			UserID:    user.ID,
			ExpiresAt: time.Now().Add(s.challengeTTL()),
		}

		err := s.withMutation(ctx, func(tx store.Tx) error {
			if err := tx.Challenges().CreateChallenge(ctx, challenge); err != nil {
				return err
			}
			_, err := tx.Audit().AppendAudit(ctx, domain.AuditEntry{
				Actor:  user.Username,
				Action: domain.ActionLoginChallenge,
			})
			return err
		})
		if err != nil {
			return domain.LoginResult{}, err
		}

		log.Info("login requires second factor", "user_id", user.ID)
		return domain.LoginResult{
			User:          user,
			TwoFARequired: true,
			ChallengeID:   challenge.ID,
		}, nil
	}

	token, err := s.Sessions.Issue(user)
	if err != nil {
		return domain.LoginResult{}, err
	}

	if err := s.auditAttempt(ctx, user.Username, domain.ActionLoginSuccess); err != nil {
		return domain.LoginResult{}, err
	}

	log.Info("login succeeded", "user_id", user.ID)
	return domain.LoginResult{User: user, SessionToken: token}, nil
}

func (s *AuthService) auditAttempt(ctx context.Context, username, action string) error {
	return s.withMutation(ctx, func(tx store.Tx) error {
		_, err := tx.Audit().AppendAudit(ctx, domain.AuditEntry{
			Actor:  username,
			Action: action,
		})
		return err
	})
}

func (s *AuthService) withMutation(ctx context.Context, fn func(tx store.Tx) error) error {
	release, err := s.Gate.Mutate()
	if err != nil {
		return err
	}
	defer release()

	return s.Store.WithTx(ctx, fn)
}
