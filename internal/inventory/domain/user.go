package domain

import "time"

type User struct {
	ID           string
	Username     string
	PasswordHash string     // argon2id PHC encoded; empty only for SSO-only accounts
	Role         Role
	TOTPSecret   *string    // base32 encoded, nullable; active only once confirmed
	TOTPEnabled  *time.Time // timestamp when second factor was confirmed (nullable)
	SSOOnly      bool
	SSOSubject   *string // identity provider subject this account maps to
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SecondFactorActive reports whether login must complete a TOTP challenge.
func (u User) SecondFactorActive() bool {
	return u.TOTPEnabled != nil && u.TOTPSecret != nil && *u.TOTPSecret != ""
}
