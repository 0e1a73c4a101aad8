package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/store"
	"github.com/assetops/stocktake/pkg/idx"
	"github.com/assetops/stocktake/pkg/slogx"
)

var (
	ErrSSODisabled         = errors.New("sso login is not enabled")
	ErrSSOAssertionInvalid = errors.New("sso assertion is invalid")
	ErrUnknownSSOSubject   = errors.New("sso subject has no local account")
)

// assertionClaims is what the identity provider signs. The subject is the
// stable IdP identifier; the username claim is advisory and only consulted
// at provisioning time.
type assertionClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
}

// SSOService bridges an external identity provider: it hands out the redirect
// URL and turns signed assertions into local sessions.
type SSOService struct {
	Store    store.Store
	Settings *SettingsService
	Sessions *SessionSigner
	Gate     *Gate

	// AssertionSecret is the shared HMAC key the provider signs with.
	AssertionSecret []byte
	// TrustedIssuer is the only issuer accepted on assertions.
	TrustedIssuer string
}

// InitiateLogin returns the identity provider URL to redirect the browser to.
// It fails closed when the toggle is off, before anything leaves the process.
func (s *SSOService) InitiateLogin() (string, error) {
	settings := s.Settings.Current()
	if !settings.SSOEnabled || settings.SSOLoginURL == "" {
		return "", ErrSSODisabled
	}
	return settings.SSOLoginURL, nil
}

// ConsumeAssertion validates a signed assertion from the provider and issues
// a session for the mapped local user, provisioning one just-in-time when the
// policy toggle allows.
func (s *SSOService) ConsumeAssertion(ctx context.Context, assertion string) (domain.LoginResult, error) {
	log := slogx.FromContext(ctx)

	settings := s.Settings.Current()
	if !settings.SSOEnabled {
		return domain.LoginResult{}, ErrSSODisabled
	}

	claims, err := s.parseAssertion(assertion)
	if err != nil {
		if auditErr := s.auditFailure(ctx, "sso"); auditErr != nil {
			return domain.LoginResult{}, auditErr
		}
		log.Info("sso assertion rejected", "reason", err)
		return domain.LoginResult{}, ErrSSOAssertionInvalid
	}

	user, err := s.Store.Users().GetUserBySSOSubject(ctx, claims.Subject)
	switch {
	case err == nil:
		// Known subject.
	case errors.Is(err, store.ErrNotFound):
		if !settings.JITProvisioning {
			if auditErr := s.auditFailure(ctx, claims.Subject); auditErr != nil {
				return domain.LoginResult{}, auditErr
			}
			log.Info("sso subject unknown", "subject", claims.Subject)
			return domain.LoginResult{}, ErrUnknownSSOSubject
		}
		user, err = s.provision(ctx, claims)
		if err != nil {
			return domain.LoginResult{}, err
		}
	default:
		return domain.LoginResult{}, err
	}

	token, err := s.Sessions.Issue(user)
	if err != nil {
		return domain.LoginResult{}, err
	}

	err = s.withMutation(ctx, func(tx store.Tx) error {
		_, err := tx.Audit().AppendAudit(ctx, domain.AuditEntry{
			Actor:  user.Username,
			Action: domain.ActionSSOLogin,
		})
		return err
	})
	if err != nil {
		return domain.LoginResult{}, err
	}

	log.Info("sso login succeeded", "user_id", user.ID)
	return domain.LoginResult{User: user, SessionToken: token}, nil
}

func (s *SSOService) parseAssertion(raw string) (assertionClaims, error) {
	var claims assertionClaims

	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.AssertionSecret, nil
	},
		jwt.WithIssuer(s.TrustedIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		return assertionClaims{}, err
	}
	if claims.Subject == "" {
		return assertionClaims{}, errors.New("assertion has no subject")
	}
	return claims, nil
}

// provision creates a standard SSO-only account for a first-seen subject.
func (s *SSOService) provision(ctx context.Context, claims assertionClaims) (domain.User, error) {
	username := claims.Username
	if username == "" {
		username = claims.Subject
	}
	username = strings.ToLower(strings.TrimSpace(username))

	subject := claims.Subject
	now := time.Now().UTC()
	user := domain.User{
		ID:         idx.New().String(),
		Username:   username,
		Role:       domain.RoleStandard,
		SSOOnly:    true,
		SSOSubject: &subject,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.withMutation(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, user); err != nil {
			return err
		}
		_, err := tx.Audit().AppendAudit(ctx, domain.AuditEntry{
			Actor:    user.Username,
			Action:   domain.ActionUserCreated,
			EntityID: user.Username,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// A local password account already claimed this username; do not
			// silently attach an IdP identity to it.
			return domain.User{}, ErrSSOAssertionInvalid
		}
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("sso user provisioned", "user_id", user.ID, "username", user.Username)
	return user, nil
}

func (s *SSOService) auditFailure(ctx context.Context, actor string) error {
	return s.withMutation(ctx, func(tx store.Tx) error {
		_, err := tx.Audit().AppendAudit(ctx, domain.AuditEntry{
			Actor:  actor,
			Action: domain.ActionSSOLoginFailed,
		})
		return err
	})
}

func (s *SSOService) withMutation(ctx context.Context, fn func(tx store.Tx) error) error {
	release, err := s.Gate.Mutate()
	if err != nil {
		return err
	}
	defer release()

	return s.Store.WithTx(ctx, fn)
}
