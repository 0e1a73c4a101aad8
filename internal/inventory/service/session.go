package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL is how long an issued session token stays valid.
const DefaultSessionTTL = 12 * time.Hour

var ErrInvalidSession = errors.New("invalid session token")

// SessionClaims is the verified content of a session token.
type SessionClaims struct {
	UserID   string
	Username string
	Role     domain.Role
}

type sessionJWTClaims struct {
	jwt.RegisteredClaims

	Username string `json:"username"`
	Role     string `json:"role"`
	Epoch    int64  `json:"epoch"`
}

// SessionSigner mints and verifies HS256 session tokens. Tokens carry the
// session epoch current at issue time; bumping the epoch (database restore or
// clear) invalidates every outstanding token at once.
type SessionSigner struct {
	Secret []byte
	Issuer string
	TTL    time.Duration

	// Epoch returns the current session epoch from the settings cache.
	Epoch func() int64
}

func (s *SessionSigner) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultSessionTTL
}

// Issue signs a session token for an authenticated user.
func (s *SessionSigner) Issue(user domain.User) (string, error) {
	now := time.Now()
	claims := sessionJWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl())),
		},
		Username: user.Username,
		Role:     user.Role.String(),
		Epoch:    s.Epoch(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token: signature, expiry, issuer,
// epoch, and that the role claim is still a member of the closed role set.
func (s *SessionSigner) Verify(raw string) (SessionClaims, error) {
	var claims sessionJWTClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(t *jwt.Token) (any, error) { return s.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return SessionClaims{}, ErrInvalidSession
	}

	if claims.Epoch != s.Epoch() {
		// Token predates a restore or clear; the state it referenced is gone.
		return SessionClaims{}, ErrInvalidSession
	}

	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return SessionClaims{}, ErrInvalidSession
	}

	return SessionClaims{
		UserID:   claims.Subject,
		Username: claims.Username,
		Role:     role,
	}, nil
}
