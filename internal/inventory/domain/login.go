package domain

import "time"

// MaxChallengeAttempts caps failed TOTP attempts per login challenge.
const MaxChallengeAttempts = 5

// LoginChallenge is a pending second-factor step between a successful
// credential (or SSO) check and an issued session.
type LoginChallenge struct {
	ID        string // opaque challenge token handed to the client
	UserID    string
	Attempts  int
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (c LoginChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// LoginResult is the outcome of a credential or SSO check: either a session
// was issued, or a second-factor challenge must be completed first.
type LoginResult struct {
	User         User
	SessionToken string

	TwoFARequired bool
	ChallengeID   string
}
