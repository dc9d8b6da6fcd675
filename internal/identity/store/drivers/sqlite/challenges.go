package sqlite

import (
	"context"
	"time"

	"github.com/quorumsec/gatehouse/internal/identity/domain"
)

type challengesRepo struct {
	db dbtx
}

const challengeColumns = `token, user_id, method, code_key, attempts, expires_at, created_at`

func (r *challengesRepo) CreateChallenge(ctx context.Context, c domain.LoginChallenge) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO login_challenges (token, user_id, method, code_key, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.Token, c.UserID, c.Method, c.CodeKey, c.ExpiresAt.UTC())
	return err
}

func (r *challengesRepo) GetChallenge(ctx context.Context, token string, now time.Time) (domain.LoginChallenge, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+challengeColumns+` FROM login_challenges
		WHERE token = ? AND expires_at > ?`, token, now.UTC())

	var c domain.LoginChallenge
	err := row.Scan(&c.Token, &c.UserID, &c.Method, &c.CodeKey, &c.Attempts, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return domain.LoginChallenge{}, mapNotFound(err)
	}
	return c, nil
}

func (r *challengesRepo) IncrementChallengeAttempts(ctx context.Context, token string) (domain.LoginChallenge, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE login_challenges SET attempts = attempts + 1
		WHERE token = ?
		RETURNING `+challengeColumns, token)

	var c domain.LoginChallenge
	err := row.Scan(&c.Token, &c.UserID, &c.Method, &c.CodeKey, &c.Attempts, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return domain.LoginChallenge{}, mapNotFound(err)
	}
	return c, nil
}

func (r *challengesRepo) DeleteChallenge(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM login_challenges WHERE token = ?`, token)
	return err
}

func (r *challengesRepo) DeleteExpiredChallenges(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM login_challenges WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
