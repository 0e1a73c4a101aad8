package sqlite

import (
	"context"
	"database/sql"

	"github.com/assetops/stocktake/internal/inventory/domain"
)

type usersRepo struct {
	q dbtx
}

const userColumns = `id, username, password_hash, role, totp_secret, totp_enabled_at,
	sso_only, sso_subject, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var (
		u          domain.User
		role       string
		secret     sql.NullString
		enabledAt  sql.NullTime
		ssoSubject sql.NullString
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.PasswordHash, &role, &secret, &enabledAt,
		&u.SSOOnly, &ssoSubject, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}

	u.Role = domain.Role(role)
	u.TOTPSecret = mapNullStringPtr(secret)
	u.TOTPEnabled = mapNullTimePtr(enabledAt)
	u.SSOSubject = mapNullStringPtr(ssoSubject)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserBySSOSubject(ctx context.Context, subject string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE sso_subject = ?`, subject)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, totp_secret,
			totp_enabled_at, sso_only, sso_subject, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.Role.String(),
		mapOptionalString(u.TOTPSecret), mapOptionalTime(u.TOTPEnabled),
		u.SSOOnly, mapOptionalString(u.SSOSubject), u.CreatedAt, u.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *usersRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *usersRepo) UpdateTOTPSecret(ctx context.Context, userID string, secret string) error {
	return r.exec(ctx, `
		UPDATE users SET totp_secret = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, secret, userID)
}

func (r *usersRepo) EnableTOTP(ctx context.Context, userID string) error {
	return r.exec(ctx, `
		UPDATE users SET totp_enabled_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, userID)
}

func (r *usersRepo) DisableTOTP(ctx context.Context, userID string) error {
	return r.exec(ctx, `
		UPDATE users SET totp_secret = NULL, totp_enabled_at = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, userID)
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

// exec runs an update that must touch exactly one row.
func (r *usersRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
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
