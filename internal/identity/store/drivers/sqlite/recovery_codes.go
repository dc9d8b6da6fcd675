package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/quorumsec/gatehouse/internal/identity/store"
)

type recoveryCodesRepo struct {
	db dbtx
}

func (r *recoveryCodesRepo) CreateRecoveryCode(ctx context.Context, userID, codeHash string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recovery_codes (user_id, code_hash) VALUES (?, ?)`, userID, codeHash)
	return err
}

// ConsumeRecoveryCode marks the row used with a guarded update, so a code
// can only ever be consumed once even across concurrent submissions. Spent
// rows are kept so a replay is distinguishable from a code that never
// existed.
func (r *recoveryCodesRepo) ConsumeRecoveryCode(ctx context.Context, userID, codeHash string) (store.RecoveryConsume, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recovery_codes SET used_at = ?
		WHERE user_id = ? AND code_hash = ? AND used_at IS NULL`,
		time.Now().UTC(), userID, codeHash)
	if err != nil {
		return store.RecoveryConsumeMiss, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.RecoveryConsumeMiss, err
	}
	if n > 0 {
		return store.RecoveryConsumeOK, nil
	}

	var usedAt sql.NullTime
	err = r.db.QueryRowContext(ctx,
		`SELECT used_at FROM recovery_codes WHERE user_id = ? AND code_hash = ?`,
		userID, codeHash).Scan(&usedAt)
	if err == sql.ErrNoRows {
		return store.RecoveryConsumeMiss, nil
	}
	if err != nil {
		return store.RecoveryConsumeMiss, err
	}
	return store.RecoveryConsumeSpent, nil
}

func (r *recoveryCodesRepo) DeleteAllRecoveryCodes(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM recovery_codes WHERE user_id = ?`, userID)
	return err
}

// CountRecoveryCodes counts the codes still available for use.
func (r *recoveryCodesRepo) CountRecoveryCodes(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recovery_codes WHERE user_id = ? AND used_at IS NULL`,
		userID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
