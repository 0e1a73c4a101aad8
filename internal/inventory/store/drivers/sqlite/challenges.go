package sqlite

import (
	"context"

	"github.com/assetops/stocktake/internal/inventory/domain"
)

type challengesRepo struct {
	q dbtx
}

func (r *challengesRepo) CreateChallenge(ctx context.Context, c domain.LoginChallenge) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO login_challenges (id, user_id, attempts, expires_at)
		VALUES (?, ?, ?, ?)`,
		c.ID, c.UserID, c.Attempts, c.ExpiresAt.UTC(),
	)
	return mapConstraint(err)
}

func (r *challengesRepo) GetChallenge(ctx context.Context, id string) (domain.LoginChallenge, error) {
	var c domain.LoginChallenge
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, attempts, created_at, expires_at
		FROM login_challenges WHERE id = ?`, id,
	).Scan(&c.ID, &c.UserID, &c.Attempts, &c.CreatedAt, &c.ExpiresAt)
	if err != nil {
		return domain.LoginChallenge{}, mapNotFound(err)
	}
	return c, nil
}

func (r *challengesRepo) IncrementChallengeAttempts(ctx context.Context, id string) (domain.LoginChallenge, error) {
	_, err := r.q.ExecContext(ctx,
		`UPDATE login_challenges SET attempts = attempts + 1 WHERE id = ?`, id)
	if err != nil {
		return domain.LoginChallenge{}, err
	}
	return r.GetChallenge(ctx, id)
}

func (r *challengesRepo) DeleteChallenge(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM login_challenges WHERE id = ?`, id)
	return err
}

func (r *challengesRepo) DeleteExpiredChallenges(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM login_challenges WHERE expires_at < CURRENT_TIMESTAMP`)
	return err
}
