package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/store"
)

// stateDump is the serialized form of every data table, stored opaquely in
// the backup slot. The slot itself is never part of a dump.
type stateDump struct {
	Version  int                    `json:"version"`
	Users    []domain.User          `json:"users"`
	Entities []domain.Entity        `json:"entities"`
	Changes  []domain.PendingChange `json:"changes"`
	Audit    []domain.AuditEntry    `json:"audit"`
	Settings domain.Settings        `json:"settings"`
}

const stateDumpVersion = 1

func (s *Store) DumpState(ctx context.Context) ([]byte, error) {
	return dumpState(ctx, s.db)
}

func (s *Store) LoadState(ctx context.Context, blob []byte) error {
	return s.WithTx(ctx, func(tx store.Tx) error {
		return tx.LoadState(ctx, blob)
	})
}

func (s *Store) Reset(ctx context.Context) error {
	return s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Reset(ctx)
	})
}

func dumpState(ctx context.Context, q dbtx) ([]byte, error) {
	dump := stateDump{Version: stateDumpVersion}

	var err error
	users := &usersRepo{q: q}
	if dump.Users, err = users.ListUsers(ctx); err != nil {
		return nil, fmt.Errorf("dump users: %w", err)
	}

	entities := &entitiesRepo{q: q}
	for _, typ := range []domain.EntityType{domain.EntityEquipment, domain.EntityLicense} {
		rows, err := entities.ListEntities(ctx, typ)
		if err != nil {
			return nil, fmt.Errorf("dump entities: %w", err)
		}
		dump.Entities = append(dump.Entities, rows...)
	}

	changes := &changesRepo{q: q}
	if dump.Changes, err = changes.ListChanges(ctx, false); err != nil {
		return nil, fmt.Errorf("dump changes: %w", err)
	}

	audit := &auditRepo{q: q}
	if dump.Audit, err = audit.ListAudit(ctx, domain.AuditFilter{}); err != nil {
		return nil, fmt.Errorf("dump audit: %w", err)
	}

	settings := &settingsRepo{q: q}
	if dump.Settings, err = settings.GetSettings(ctx); err != nil {
		return nil, fmt.Errorf("dump settings: %w", err)
	}

	return json.Marshal(dump)
}

// loadState replaces every data table with the dump's content. Timestamps and
// audit sequence numbers are written back verbatim so a backup/restore
// round-trip reproduces the prior state exactly. Login challenges are not
// restored: in-flight challenges reference sessions that died with the old
// state.
func loadState(ctx context.Context, q dbtx, blob []byte) error {
	var dump stateDump
	if err := json.Unmarshal(blob, &dump); err != nil {
		return fmt.Errorf("decode state dump: %w", err)
	}
	if dump.Version != stateDumpVersion {
		return fmt.Errorf("unsupported state dump version %d", dump.Version)
	}

	if err := wipeData(ctx, q); err != nil {
		return err
	}

	for _, u := range dump.Users {
		_, err := q.ExecContext(ctx, `
			INSERT INTO users (id, username, password_hash, role, totp_secret,
				totp_enabled_at, sso_only, sso_subject, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			u.ID, u.Username, u.PasswordHash, u.Role.String(),
			mapOptionalString(u.TOTPSecret), mapOptionalTime(u.TOTPEnabled),
			u.SSOOnly, mapOptionalString(u.SSOSubject), u.CreatedAt, u.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("restore user %s: %w", u.ID, err)
		}
	}

	for _, e := range dump.Entities {
		_, err := q.ExecContext(ctx, `
			INSERT INTO entities (id, entity_type, name, data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, string(e.EntityType), e.Name, string(e.Data), e.CreatedAt, e.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("restore entity %s: %w", e.ID, err)
		}
	}

	for _, c := range dump.Changes {
		var payload sql.NullString
		if c.Payload != nil {
			payload = sql.NullString{String: string(c.Payload), Valid: true}
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO pending_changes (id, entity_type, entity_id, op, name,
				payload, submitted_by, status, reject_reason, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, string(c.EntityType), c.EntityID, string(c.Op), c.Name,
			payload, c.SubmittedBy, string(c.Status),
			mapOptionalString(c.RejectReason), c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("restore change %s: %w", c.ID, err)
		}
	}

	for _, e := range dump.Audit {
		var before, after sql.NullString
		if e.Before != nil {
			before = sql.NullString{String: string(e.Before), Valid: true}
		}
		if e.After != nil {
			after = sql.NullString{String: string(e.After), Valid: true}
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO audit_log (seq, actor, action, entity_type, entity_id,
				before_state, after_state, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.Seq, e.Actor, e.Action, e.EntityType, e.EntityID, before, after, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("restore audit seq %d: %w", e.Seq, err)
		}
	}

	settings := &settingsRepo{q: q}
	if err := settings.SaveSettings(ctx, dump.Settings); err != nil {
		return fmt.Errorf("restore settings: %w", err)
	}

	return nil
}

// resetState wipes all data, including the ledger and the backup slot, and
// restores the settings row to its defaults. The caller reseeds the
// bootstrap administrator.
func resetState(ctx context.Context, q dbtx) error {
	if err := wipeData(ctx, q); err != nil {
		return err
	}

	for _, stmt := range []string{
		`DELETE FROM backup_slot`,
		`UPDATE settings SET company_name = '', sso_enabled = 0, sso_login_url = '',
			require_totp = 0, jit_provisioning = 0, updated_at = CURRENT_TIMESTAMP
			WHERE id = 1`,
	} {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func wipeData(ctx context.Context, q dbtx) error {
	for _, stmt := range []string{
		`DELETE FROM login_challenges`,
		`DELETE FROM pending_changes`,
		`DELETE FROM audit_log`,
		`DELETE FROM sqlite_sequence WHERE name = 'audit_log'`,
		`DELETE FROM entities`,
		`DELETE FROM users`,
	} {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
