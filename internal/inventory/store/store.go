package store

import (
	"context"
	"errors"

	"github.com/assetops/stocktake/internal/inventory/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable.
type Store interface {
	Users() Users
	Entities() Entities
	Changes() Changes
	Audit() Audit
	Challenges() Challenges
	Settings() Settings
	Backups() Backups

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction: rollback when fn errors,
	// commit otherwise. This is the recommended way to handle transactions.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// DumpState serializes every data table into an opaque blob for the
	// backup slot.
	DumpState(ctx context.Context) ([]byte, error)

	// LoadState replaces all live data wholesale from a DumpState blob,
	// in a single transaction. The backup slot itself is untouched.
	LoadState(ctx context.Context, blob []byte) error

	// Reset wipes every data table, including the audit ledger and the
	// backup slot. Used by the database clear operation, which reseeds the
	// bootstrap administrator afterwards.
	Reset(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// GetUserBySSOSubject maps an identity provider subject to a local user.
	GetUserBySSOSubject(ctx context.Context, subject string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by the app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	ListUsers(ctx context.Context) ([]domain.User, error)

	// UpdateTOTPSecret stores an unconfirmed secret (enrollment start).
	UpdateTOTPSecret(ctx context.Context, userID string, secret string) error

	// EnableTOTP marks the second factor confirmed (sets the enabled timestamp).
	EnableTOTP(ctx context.Context, userID string) error

	// DisableTOTP clears both the secret and the enabled timestamp.
	DisableTOTP(ctx context.Context, userID string) error

	// IsEmpty reports whether there are no users (first-run bootstrap check).
	IsEmpty(ctx context.Context) (bool, error)
}

type Entities interface {
	GetEntity(ctx context.Context, typ domain.EntityType, id string) (domain.Entity, error)
	UpsertEntity(ctx context.Context, e domain.Entity) error
	DeleteEntity(ctx context.Context, typ domain.EntityType, id string) error
	ListEntities(ctx context.Context, typ domain.EntityType) ([]domain.Entity, error)
}

type Changes interface {
	// CreateChange inserts a pending change. Returns store.ErrAlreadyExists
	// when the target entity already has an outstanding pending change.
	CreateChange(ctx context.Context, c domain.PendingChange) error

	GetChange(ctx context.Context, id string) (domain.PendingChange, error)

	// FinalizeChange transitions a pending change to a terminal status,
	// guarded on the current status still being pending. Returns
	// store.ErrNotFound when the row is missing or already terminal, so a
	// losing racer can be told apart from a bad id by re-reading the row.
	FinalizeChange(ctx context.Context, id string, status domain.ChangeStatus, reason *string) error

	ListChanges(ctx context.Context, pendingOnly bool) ([]domain.PendingChange, error)
}

type Audit interface {
	// AppendAudit writes one ledger row and returns its sequence number.
	// There are deliberately no update or delete operations.
	AppendAudit(ctx context.Context, e domain.AuditEntry) (int64, error)

	ListAudit(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error)
}

type Challenges interface {
	CreateChallenge(ctx context.Context, c domain.LoginChallenge) error
	GetChallenge(ctx context.Context, id string) (domain.LoginChallenge, error)

	// IncrementChallengeAttempts bumps the failed attempt counter and
	// returns the updated row.
	IncrementChallengeAttempts(ctx context.Context, id string) (domain.LoginChallenge, error)

	DeleteChallenge(ctx context.Context, id string) error
	DeleteExpiredChallenges(ctx context.Context) error
}

type Settings interface {
	GetSettings(ctx context.Context) (domain.Settings, error)
	SaveSettings(ctx context.Context, s domain.Settings) error

	// BumpSessionEpoch invalidates all outstanding sessions and returns the
	// new epoch.
	BumpSessionEpoch(ctx context.Context) (int64, error)
}

type Backups interface {
	// SaveBackup overwrites the single retained slot.
	SaveBackup(ctx context.Context, b domain.BackupRecord) error

	// GetBackup returns the slot, or store.ErrNotFound when none was taken.
	GetBackup(ctx context.Context) (domain.BackupRecord, error)

	BackupStatus(ctx context.Context) (domain.BackupStatus, error)
}
