package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/assetops/stocktake/internal/inventory/domain"
)

type backupsRepo struct {
	q dbtx
}

func (r *backupsRepo) SaveBackup(ctx context.Context, b domain.BackupRecord) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO backup_slot (id, taken_at, state)
		VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			taken_at = excluded.taken_at,
			state = excluded.state`,
		b.TakenAt.UTC(), b.State,
	)
	return err
}

func (r *backupsRepo) GetBackup(ctx context.Context) (domain.BackupRecord, error) {
	var b domain.BackupRecord
	err := r.q.QueryRowContext(ctx,
		`SELECT taken_at, state FROM backup_slot WHERE id = 1`,
	).Scan(&b.TakenAt, &b.State)
	if err != nil {
		return domain.BackupRecord{}, mapNotFound(err)
	}
	return b, nil
}

func (r *backupsRepo) BackupStatus(ctx context.Context) (domain.BackupStatus, error) {
	var takenAt time.Time
	err := r.q.QueryRowContext(ctx,
		`SELECT taken_at FROM backup_slot WHERE id = 1`).Scan(&takenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.BackupStatus{HasBackup: false}, nil
		}
		return domain.BackupStatus{}, err
	}
	return domain.BackupStatus{HasBackup: true, TakenAt: &takenAt}, nil
}
