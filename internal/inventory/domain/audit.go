package domain

import (
	"encoding/json"
	"time"
)

// Audit action labels. These are user-facing strings rendered in the audit
// screen, so they read as sentences rather than dotted codes.
const (
	ActionLoginSuccess    = "login success"
	ActionLoginFailed     = "login failed"
	ActionLoginChallenge  = "login 2fa required"
	ActionSSOLogin        = "sso login"
	ActionSSOLoginFailed  = "sso login failed"
	ActionTwoFAEnabled    = "2fa enabled"
	ActionTwoFADisabled   = "2fa disabled"
	ActionTwoFAAdminReset = "2fa disabled by admin"
	ActionDirectChange    = "direct change"
	ActionChangeSubmitted = "change submitted"
	ActionChangeApproved  = "change approved"
	ActionChangeRejected  = "change rejected"
	ActionUserCreated     = "user created"
	ActionSettingsUpdated = "settings updated"
	ActionDatabaseBackup  = "database backup"
	ActionDatabaseRestore = "database restore"
	ActionDatabaseClear   = "database clear"
)

// AuditEntry is one immutable row of the append-only ledger. Seq is assigned
// by the store and strictly increases in commit order.
type AuditEntry struct {
	Seq        int64
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	Before     json.RawMessage
	After      json.RawMessage
	CreatedAt  time.Time
}

// AuditFilter narrows List results. Zero values mean "no constraint".
type AuditFilter struct {
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	AfterSeq   int64
	Limit      int
}
