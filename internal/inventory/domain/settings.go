package domain

import "time"

// Settings is the process-wide configuration row. It is loaded once at
// startup, read through the settings service accessors, and mutated only
// through the settings-save path.
type Settings struct {
	CompanyName     string
	SSOEnabled      bool
	SSOLoginURL     string // identity provider login endpoint
	RequireTOTP     bool   // force a second factor for all non-SSO accounts
	JITProvisioning bool   // auto-create users for unknown SSO subjects
	SessionEpoch    int64  // bumped to invalidate every outstanding session
	UpdatedAt       time.Time
}
