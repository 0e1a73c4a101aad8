package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/store"
	"github.com/assetops/stocktake/pkg/cryptox"
	"github.com/assetops/stocktake/pkg/slogx"
)

// ClearTokenTTL is how long a clear confirmation token stays redeemable.
const ClearTokenTTL = 2 * time.Minute

var (
	ErrNoBackupAvailable = errors.New("no backup available")
	ErrInvalidClearToken = errors.New("invalid or expired clear confirmation token")
)

// SnapshotService owns the single-slot backup, restore, and the database
// clear operation. All three run under the exclusive gate and none is
// cancellable once started.
type SnapshotService struct {
	Store     store.Store
	Gate      *Gate
	Settings  *SettingsService
	Bootstrap *BootstrapService

	// clear tokens are single-use and short-lived; only the fingerprint is
	// kept in memory.
	tokenMu          sync.Mutex
	tokenFingerprint string
	tokenExpiresAt   time.Time
}

// Backup serializes every data table into the single retained slot,
// replacing whatever was there.
func (s *SnapshotService) Backup(ctx context.Context, actor domain.User) error {
	if !actor.Role.Elevated() {
		return ErrUnauthorized
	}

	release, err := s.Gate.Exclusive()
	if err != nil {
		return err
	}
	defer release()

	takenAt := time.Now().UTC()
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		// Ledger first so the dump carries its own backup entry: restoring
		// later reinstates the record of the backup it came from.
		if _, err := tx.Audit().AppendAudit(ctx, domain.AuditEntry{
			Actor:  actor.Username,
			Action: domain.ActionDatabaseBackup,
		}); err != nil {
			return err
		}

		blob, err := tx.DumpState(ctx)
		if err != nil {
			return err
		}
		return tx.Backups().SaveBackup(ctx, domain.BackupRecord{
			TakenAt: takenAt,
			State:   blob,
		})
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("database backup taken", "actor_id", actor.ID)
	return nil
}

// Restore replaces all live data with the retained slot's content. Every
// outstanding session token dies with the state it referenced: the session
// epoch is bumped past whatever the restored state carried.
func (s *SnapshotService) Restore(ctx context.Context, actor domain.User) error {
	if !actor.Role.Elevated() {
		return ErrUnauthorized
	}

	release, err := s.Gate.Exclusive()
	if err != nil {
		return err
	}
	defer release()

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		backup, err := tx.Backups().GetBackup(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNoBackupAvailable
			}
			return err
		}

		if err := tx.LoadState(ctx, backup.State); err != nil {
			return err
		}

		if _, err := tx.Settings().BumpSessionEpoch(ctx); err != nil {
			return err
		}

		_, err = tx.Audit().AppendAudit(ctx, domain.AuditEntry{
			Actor:  actor.Username,
			Action: domain.ActionDatabaseRestore,
		})
		return err
	})
	if err != nil {
		return err
	}

	if err := s.Settings.Load(ctx); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("database restored from backup", "actor_id", actor.ID)
	return nil
}

// IssueClearToken mints the single-use confirmation token Clear demands.
// Issuing a new token invalidates any previous one.
func (s *SnapshotService) IssueClearToken(ctx context.Context, actor domain.User) (string, error) {
	if !actor.Role.Elevated() {
		return "", ErrUnauthorized
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", err
	}

	s.tokenMu.Lock()
	s.tokenFingerprint = cryptox.FingerprintToken(token)
	s.tokenExpiresAt = time.Now().Add(ClearTokenTTL)
	s.tokenMu.Unlock()

	slogx.FromContext(ctx).Info("clear confirmation token issued", "actor_id", actor.ID)
	return token, nil
}

// Clear wipes every data table, the audit ledger, and the backup slot, then
// reseeds the bootstrap administrator. The confirmation token is consumed
// whether or not the clear succeeds.
func (s *SnapshotService) Clear(ctx context.Context, actor domain.User, confirmToken string) error {
	if !actor.Role.Elevated() {
		return ErrUnauthorized
	}
	if err := s.consumeClearToken(confirmToken); err != nil {
		return err
	}

	release, err := s.Gate.Exclusive()
	if err != nil {
		return err
	}
	defer release()

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Reset(ctx); err != nil {
			return err
		}

		if err := s.Bootstrap.SeedAdmin(ctx, tx); err != nil {
			return err
		}

		if _, err := tx.Settings().BumpSessionEpoch(ctx); err != nil {
			return err
		}

		_, err := tx.Audit().AppendAudit(ctx, domain.AuditEntry{
			Actor:  actor.Username,
			Action: domain.ActionDatabaseClear,
		})
		return err
	})
	if err != nil {
		return err
	}

	if err := s.Settings.Load(ctx); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("database cleared", "actor_id", actor.ID)
	return nil
}

// Status reports whether the slot holds a backup and when it was taken.
// It never exposes content and runs outside the gate.
func (s *SnapshotService) Status(ctx context.Context) (domain.BackupStatus, error) {
	return s.Store.Backups().BackupStatus(ctx)
}

func (s *SnapshotService) consumeClearToken(token string) error {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	fingerprint := s.tokenFingerprint
	expiresAt := s.tokenExpiresAt

	// Single use: gone after this attempt, valid or not.
	s.tokenFingerprint = ""
	s.tokenExpiresAt = time.Time{}

	if fingerprint == "" || time.Now().After(expiresAt) {
		return ErrInvalidClearToken
	}
	got := cryptox.FingerprintToken(token)
	if subtle.ConstantTimeCompare([]byte(got), []byte(fingerprint)) != 1 {
		return ErrInvalidClearToken
	}
	return nil
}
