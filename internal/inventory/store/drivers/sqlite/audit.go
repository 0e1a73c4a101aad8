package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/assetops/stocktake/internal/inventory/domain"
)

type auditRepo struct {
	q dbtx
}

func (r *auditRepo) AppendAudit(ctx context.Context, e domain.AuditEntry) (int64, error) {
	var before, after sql.NullString
	if e.Before != nil {
		before = sql.NullString{String: string(e.Before), Valid: true}
	}
	if e.After != nil {
		after = sql.NullString{String: string(e.After), Valid: true}
	}

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_log (actor, action, entity_type, entity_id,
			before_state, after_state)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Actor, e.Action, e.EntityType, e.EntityID, before, after,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *auditRepo) ListAudit(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	var (
		conds []string
		args  []any
	)
	if f.Actor != "" {
		conds = append(conds, "actor = ?")
		args = append(args, f.Actor)
	}
	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, f.Action)
	}
	if f.EntityType != "" {
		conds = append(conds, "entity_type = ?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		conds = append(conds, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.AfterSeq > 0 {
		conds = append(conds, "seq > ?")
		args = append(args, f.AfterSeq)
	}

	query := `SELECT seq, actor, action, entity_type, entity_id,
		before_state, after_state, created_at FROM audit_log`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e             domain.AuditEntry
			before, after sql.NullString
		)
		err := rows.Scan(&e.Seq, &e.Actor, &e.Action, &e.EntityType, &e.EntityID,
			&before, &after, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		if before.Valid {
			e.Before = json.RawMessage(before.String)
		}
		if after.Valid {
			e.After = json.RawMessage(after.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
