package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/quorumsec/gatehouse/internal/identity/domain"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, username, email, email_confirmed, phone_number, phone_confirmed,
	password_hash, two_factor_enabled, authenticator_key, lockout_enabled, lockout_end,
	access_failed_count, security_stamp, created_at, updated_at`

func (r *usersRepo) scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var authKey sql.NullString
	var lockoutEnd sql.NullTime

	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.EmailConfirmed, &u.PhoneNumber, &u.PhoneConfirmed,
		&u.PasswordHash, &u.TwoFactorEnabled, &authKey, &u.LockoutEnabled, &lockoutEnd,
		&u.AccessFailedCount, &u.SecurityStamp, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.AuthenticatorKey = mapNullStringPtr(authKey)
	u.LockoutEnd = mapNullTimePtr(lockoutEnd)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

func (r *usersRepo) GetUserByPhone(ctx context.Context, phone string) (domain.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE phone_number = ? AND phone_confirmed = 1`, phone))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, username, email, email_confirmed, phone_number, phone_confirmed,
			password_hash, two_factor_enabled, authenticator_key, lockout_enabled,
			lockout_end, access_failed_count, security_stamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.EmailConfirmed, u.PhoneNumber, u.PhoneConfirmed,
		u.PasswordHash, u.TwoFactorEnabled, mapOptionalString(u.AuthenticatorKey),
		u.LockoutEnabled, mapOptionalTime(u.LockoutEnd), u.AccessFailedCount, u.SecurityStamp,
	)
	return mapConflict(err)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, newHash, newStamp string) error {
	return r.exec(ctx, `
		UPDATE users SET password_hash = ?, security_stamp = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, newHash, newStamp, userID)
}

func (r *usersRepo) UpdateSecurityStamp(ctx context.Context, userID, newStamp string) error {
	return r.exec(ctx, `
		UPDATE users SET security_stamp = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, newStamp, userID)
}

func (r *usersRepo) SetAuthenticatorKey(ctx context.Context, userID, key string) error {
	var val sql.NullString
	if key != "" {
		val = sql.NullString{String: key, Valid: true}
	}
	return r.exec(ctx, `
		UPDATE users SET authenticator_key = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, val, userID)
}

func (r *usersRepo) SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool) error {
	return r.exec(ctx, `
		UPDATE users SET two_factor_enabled = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, enabled, userID)
}

func (r *usersRepo) ConfirmEmail(ctx context.Context, userID string) error {
	return r.exec(ctx, `
		UPDATE users SET email_confirmed = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, userID)
}

func (r *usersRepo) ConfirmPhone(ctx context.Context, userID, phone string) error {
	return r.exec(ctx, `
		UPDATE users SET phone_number = ?, phone_confirmed = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, phone, userID)
}

func (r *usersRepo) IncrementAccessFailed(ctx context.Context, userID string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE users SET access_failed_count = access_failed_count + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		RETURNING access_failed_count`, userID)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, mapNotFound(err)
	}
	return count, nil
}

func (r *usersRepo) ResetAccessFailed(ctx context.Context, userID string) error {
	return r.exec(ctx, `
		UPDATE users SET access_failed_count = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, userID)
}

func (r *usersRepo) SetLockoutEnd(ctx context.Context, userID string, until *time.Time) error {
	return r.exec(ctx, `
		UPDATE users SET lockout_end = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, mapOptionalTime(until), userID)
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func (r *usersRepo) exec(ctx context.Context, query string, args ...any) error {
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}
