package sqlite

import (
	"context"

	"github.com/assetops/stocktake/internal/inventory/domain"
)

type settingsRepo struct {
	q dbtx
}

func (r *settingsRepo) GetSettings(ctx context.Context) (domain.Settings, error) {
	var s domain.Settings
	err := r.q.QueryRowContext(ctx, `
		SELECT company_name, sso_enabled, sso_login_url, require_totp,
			jit_provisioning, session_epoch, updated_at
		FROM settings WHERE id = 1`,
	).Scan(&s.CompanyName, &s.SSOEnabled, &s.SSOLoginURL, &s.RequireTOTP,
		&s.JITProvisioning, &s.SessionEpoch, &s.UpdatedAt)
	if err != nil {
		return domain.Settings{}, mapNotFound(err)
	}
	return s, nil
}

func (r *settingsRepo) SaveSettings(ctx context.Context, s domain.Settings) error {
	// The session epoch is owned by the restore/clear path, not the
	// settings form, so it is deliberately not written here.
	_, err := r.q.ExecContext(ctx, `
		UPDATE settings
		SET company_name = ?, sso_enabled = ?, sso_login_url = ?,
			require_totp = ?, jit_provisioning = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = 1`,
		s.CompanyName, s.SSOEnabled, s.SSOLoginURL, s.RequireTOTP, s.JITProvisioning,
	)
	return err
}

func (r *settingsRepo) BumpSessionEpoch(ctx context.Context) (int64, error) {
	_, err := r.q.ExecContext(ctx, `
		UPDATE settings SET session_epoch = session_epoch + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = 1`)
	if err != nil {
		return 0, err
	}

	var epoch int64
	if err := r.q.QueryRowContext(ctx,
		`SELECT session_epoch FROM settings WHERE id = 1`).Scan(&epoch); err != nil {
		return 0, err
	}
	return epoch, nil
}
