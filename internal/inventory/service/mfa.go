package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/time/rate"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/store"
	"github.com/assetops/stocktake/pkg/slogx"
)

var (
	ErrTOTPAlreadyEnabled = errors.New("second factor already enabled")
	ErrNotEnrolled        = errors.New("second factor not enrolled")
	ErrInvalidTOTPCode    = errors.New("invalid verification code")
	ErrInvalidChallenge   = errors.New("invalid or expired login challenge")
	ErrTooManyAttempts    = errors.New("too many verification attempts")
)

// Enrollment is the material a user needs to register an authenticator app.
type Enrollment struct {
	Secret string
	// URL is the otpauth:// provisioning URI, suitable for QR rendering.
	URL string
}

// TOTPService owns second factor enrollment and login challenge completion.
type TOTPService struct {
	Store    store.Store
	Sessions *SessionSigner
	Gate     *Gate

	// Issuer is the name shown in authenticator apps.
	Issuer string

	// limiters throttles challenge verification per user on top of the
	// per-challenge attempt cap, so discarding a challenge and starting a
	// fresh login does not reset the budget.
	limiters sync.Map
}

func (s *TOTPService) issuer() string {
	if s.Issuer != "" {
		return s.Issuer
	}
	return "stocktake"
}

// GenerateSecret starts enrollment: mints a fresh secret, stores it
// unconfirmed, and returns the provisioning material. Calling it again before
// confirmation simply replaces the staged secret.
func (s *TOTPService) GenerateSecret(ctx context.Context, user domain.User) (Enrollment, error) {
	if user.SecondFactorActive() {
		return Enrollment{}, ErrTOTPAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer(),
		AccountName: user.Username,
	})
	if err != nil {
		return Enrollment{}, err
	}

	err = s.withMutation(ctx, func(tx store.Tx) error {
		return tx.Users().UpdateTOTPSecret(ctx, user.ID, key.Secret())
	})
	if err != nil {
		return Enrollment{}, err
	}

	return Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// ConfirmEnable completes enrollment by proving possession of the staged
// secret. Only after this does login start demanding the second factor.
func (s *TOTPService) ConfirmEnable(ctx context.Context, user domain.User, code string) error {
	if user.SecondFactorActive() {
		return ErrTOTPAlreadyEnabled
	}
	if user.TOTPSecret == nil || *user.TOTPSecret == "" {
		return ErrNotEnrolled
	}
	if !totp.Validate(code, *user.TOTPSecret) {
		return ErrInvalidTOTPCode
	}

	err := s.withMutation(ctx, func(tx store.Tx) error {
		if err := tx.Users().EnableTOTP(ctx, user.ID); err != nil {
			return err
		}
		_, err := tx.Audit().AppendAudit(ctx, domain.AuditEntry{
			Actor:  user.Username,
			Action: domain.ActionTwoFAEnabled,
		})
		return err
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("second factor enabled", "user_id", user.ID)
	return nil
}

// Disable turns the second factor off for the calling user. A valid current
// code is required so a hijacked session cannot silently weaken the account.
func (s *TOTPService) Disable(ctx context.Context, user domain.User, code string) error {
	if !user.SecondFactorActive() {
		return ErrNotEnrolled
	}
	if !totp.Validate(code, *user.TOTPSecret) {
		return ErrInvalidTOTPCode
	}

	err := s.withMutation(ctx, func(tx store.Tx) error {
		if err := tx.Users().DisableTOTP(ctx, user.ID); err != nil {
			return err
		}
		_, err := tx.Audit().AppendAudit(ctx, domain.AuditEntry{
			Actor:  user.Username,
			Action: domain.ActionTwoFADisabled,
		})
		return err
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("second factor disabled", "user_id", user.ID)
	return nil
}

// AdminDisable is the recovery path for a user who lost their authenticator.
// No code is required, but the acting administrator lands in the audit trail.
func (s *TOTPService) AdminDisable(ctx context.Context, actor domain.User, targetID string) error {
	if !actor.Role.Elevated() {
		return ErrUnauthorized
	}

	target, err := s.Store.Users().GetUserByID(ctx, targetID)
	if err != nil {
		return err
	}
	if !target.SecondFactorActive() {
		return ErrNotEnrolled
	}

	err = s.withMutation(ctx, func(tx store.Tx) error {
		if err := tx.Users().DisableTOTP(ctx, target.ID); err != nil {
			return err
		}
		_, err := tx.Audit().AppendAudit(ctx, domain.AuditEntry{
			Actor:    actor.Username,
			Action:   domain.ActionTwoFAAdminReset,
			EntityID: target.Username,
		})
		return err
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("second factor reset by admin",
		"actor_id", actor.ID, "target_id", target.ID)
	return nil
}

// VerifyLogin completes a pending login challenge with a TOTP code and, on
// success, issues the session the password step withheld.
func (s *TOTPService) VerifyLogin(ctx context.Context, challengeID, code string) (domain.LoginResult, error) {
	log := slogx.FromContext(ctx)

	challenge, err := s.Store.Challenges().GetChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResult{}, ErrInvalidChallenge
		}
		return domain.LoginResult{}, err
	}
	if challenge.Expired(time.Now()) {
		_ = s.discardChallenge(ctx, challenge.ID)
		return domain.LoginResult{}, ErrInvalidChallenge
	}

	if !s.allowAttempt(challenge.UserID) {
		return domain.LoginResult{}, ErrTooManyAttempts
	}

	user, err := s.Store.Users().GetUserByID(ctx, challenge.UserID)
	if err != nil {
		return domain.LoginResult{}, err
	}
	if !user.SecondFactorActive() {
		// A challenge exists because policy demands TOTP, but this user has
		// never enrolled. They must enrol before they can log in.
		return domain.LoginResult{}, ErrNotEnrolled
	}

	if !totp.Validate(code, *user.TOTPSecret) {
		updated, incErr := s.bumpAttempts(ctx, challenge.ID)
		if incErr != nil {
			return domain.LoginResult{}, incErr
		}
		if updated.Attempts >= domain.MaxChallengeAttempts {
			_ = s.discardChallenge(ctx, challenge.ID)
			log.Info("login challenge exhausted", "user_id", user.ID)
			return domain.LoginResult{}, ErrTooManyAttempts
		}
		return domain.LoginResult{}, ErrInvalidTOTPCode
	}

	token, err := s.Sessions.Issue(user)
	if err != nil {
		return domain.LoginResult{}, err
	}

	err = s.withMutation(ctx, func(tx store.Tx) error {
		if err := tx.Challenges().DeleteChallenge(ctx, challenge.ID); err != nil {
			return err
		}
		_, err := tx.Audit().AppendAudit(ctx, domain.AuditEntry{
			Actor:  user.Username,
			Action: domain.ActionLoginSuccess,
		})
		return err
	})
	if err != nil {
		return domain.LoginResult{}, err
	}

	log.Info("login succeeded", "user_id", user.ID)
	return domain.LoginResult{User: user, SessionToken: token}, nil
}

func (s *TOTPService) bumpAttempts(ctx context.Context, id string) (domain.LoginChallenge, error) {
	var updated domain.LoginChallenge
	err := s.withMutation(ctx, func(tx store.Tx) error {
		var err error
		updated, err = tx.Challenges().IncrementChallengeAttempts(ctx, id)
		return err
	})
	return updated, err
}

func (s *TOTPService) discardChallenge(ctx context.Context, id string) error {
	return s.withMutation(ctx, func(tx store.Tx) error {
		return tx.Challenges().DeleteChallenge(ctx, id)
	})
}

// allowAttempt enforces a per-user verification rate of one code every two
// seconds with a small burst, independent of challenge lifecycle.
func (s *TOTPService) allowAttempt(userID string) bool {
	v, _ := s.limiters.LoadOrStore(userID, rate.NewLimiter(rate.Every(2*time.Second), 5))
	return v.(*rate.Limiter).Allow()
}

func (s *TOTPService) withMutation(ctx context.Context, fn func(tx store.Tx) error) error {
	release, err := s.Gate.Mutate()
	if err != nil {
		return err
	}
	defer release()

	return s.Store.WithTx(ctx, fn)
}
