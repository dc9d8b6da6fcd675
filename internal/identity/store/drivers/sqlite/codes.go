package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/quorumsec/gatehouse/internal/identity/domain"
)

type codesRepo struct {
	db dbtx
}

func (r *codesRepo) CreateCode(ctx context.Context, c domain.OneTimeCode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO one_time_codes (id, purpose, phone_number, code, auth_key, user_id, confirmed, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Purpose, c.PhoneNumber, c.Code, c.Key, c.UserID, c.Confirmed, c.ExpiresAt.UTC())
	return err
}

func (r *codesRepo) GetCodeByKey(ctx context.Context, key string) (domain.OneTimeCode, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, purpose, phone_number, code, auth_key, user_id, confirmed, consumed_at, expires_at, created_at
		FROM one_time_codes WHERE auth_key = ?`, key)

	var c domain.OneTimeCode
	var consumedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.Purpose, &c.PhoneNumber, &c.Code, &c.Key, &c.UserID,
		&c.Confirmed, &consumedAt, &c.ExpiresAt, &c.CreatedAt,
	)
	if err != nil {
		return domain.OneTimeCode{}, mapNotFound(err)
	}
	c.ConsumedAt = mapNullTimePtr(consumedAt)
	return c, nil
}

func (r *codesRepo) ConfirmCode(ctx context.Context, key, code string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE one_time_codes SET confirmed = 1
		WHERE auth_key = ? AND code = ? AND consumed_at IS NULL AND expires_at > ?`,
		key, code, now.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ConsumeCode marks the code used only when every redemption precondition
// holds, in a single statement. Two concurrent redeemers cannot both see
// consumed_at IS NULL, so at most one wins.
func (r *codesRepo) ConsumeCode(ctx context.Context, key, code string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE one_time_codes SET consumed_at = ?
		WHERE auth_key = ? AND code = ? AND consumed_at IS NULL AND expires_at > ?`,
		now.UTC(), key, code, now.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *codesRepo) DeleteExpiredCodes(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM one_time_codes WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
