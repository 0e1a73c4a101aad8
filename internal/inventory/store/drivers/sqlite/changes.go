package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/assetops/stocktake/internal/inventory/domain"
)

type changesRepo struct {
	q dbtx
}

const changeColumns = `id, entity_type, entity_id, op, name, payload, submitted_by,
	status, reject_reason, created_at, updated_at`

func scanChange(row interface{ Scan(...any) error }) (domain.PendingChange, error) {
	var (
		c       domain.PendingChange
		typS    string
		opS     string
		payload sql.NullString
		status  string
		reason  sql.NullString
	)
	err := row.Scan(
		&c.ID, &typS, &c.EntityID, &opS, &c.Name, &payload, &c.SubmittedBy,
		&status, &reason, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return domain.PendingChange{}, err
	}

	c.EntityType = domain.EntityType(typS)
	c.Op = domain.ChangeOp(opS)
	c.Status = domain.ChangeStatus(status)
	c.RejectReason = mapNullStringPtr(reason)
	if payload.Valid {
		c.Payload = json.RawMessage(payload.String)
	}
	return c, nil
}

func (r *changesRepo) CreateChange(ctx context.Context, c domain.PendingChange) error {
	var payload sql.NullString
	if c.Payload != nil {
		payload = sql.NullString{String: string(c.Payload), Valid: true}
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO pending_changes (id, entity_type, entity_id, op, name,
			payload, submitted_by, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.EntityType), c.EntityID, string(c.Op), c.Name,
		payload, c.SubmittedBy, string(c.Status), c.CreatedAt, c.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *changesRepo) GetChange(ctx context.Context, id string) (domain.PendingChange, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+changeColumns+` FROM pending_changes WHERE id = ?`, id)
	c, err := scanChange(row)
	if err != nil {
		return domain.PendingChange{}, mapNotFound(err)
	}
	return c, nil
}

func (r *changesRepo) FinalizeChange(
	ctx context.Context,
	id string,
	status domain.ChangeStatus,
	reason *string,
) error {
	// Guard on status so a concurrent finalizer loses cleanly.
	res, err := r.q.ExecContext(ctx, `
		UPDATE pending_changes
		SET status = ?, reject_reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'`,
		string(status), mapOptionalString(reason), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}

func (r *changesRepo) ListChanges(ctx context.Context, pendingOnly bool) ([]domain.PendingChange, error) {
	query := `SELECT ` + changeColumns + ` FROM pending_changes ORDER BY created_at, id`
	if pendingOnly {
		query = `SELECT ` + changeColumns + ` FROM pending_changes
			WHERE status = 'pending' ORDER BY created_at, id`
	}

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []domain.PendingChange
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}
