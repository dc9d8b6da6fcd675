package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/quorumsec/gatehouse/internal/identity/domain"
	"github.com/quorumsec/gatehouse/internal/identity/store"
)

type ticketsRepo struct {
	db dbtx
}

func (r *ticketsRepo) InsertTicket(ctx context.Context, t domain.Ticket) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tickets (id, user_id, payload, last_activity, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Payload, t.LastActivity.UTC(), mapOptionalTime(t.ExpiresAt))
	return err
}

func (r *ticketsRepo) DeleteTicketsForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tickets WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *ticketsRepo) GetTicketByUser(ctx context.Context, userID string) (domain.Ticket, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, payload, last_activity, expires_at, created_at
		FROM tickets WHERE user_id = ?`, userID)

	var t domain.Ticket
	var expiresAt sql.NullTime
	err := row.Scan(&t.ID, &t.UserID, &t.Payload, &t.LastActivity, &expiresAt, &t.CreatedAt)
	if err != nil {
		return domain.Ticket{}, mapNotFound(err)
	}
	t.ExpiresAt = mapNullTimePtr(expiresAt)
	return t, nil
}

func (r *ticketsRepo) TouchTicket(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET last_activity = ? WHERE user_id = ?`, at.UTC(), userID)
	return err
}

func (r *ticketsRepo) UpdateTicket(
	ctx context.Context,
	userID string,
	payload []byte,
	lastActivity time.Time,
	expiresAt *time.Time,
) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tickets SET payload = ?, last_activity = ?, expires_at = ?
		WHERE user_id = ?`,
		payload, lastActivity.UTC(), mapOptionalTime(expiresAt), userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *ticketsRepo) DeleteTicketByID(ctx context.Context, ticketID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, ticketID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const onlineSessionsFilter = `
	(t.expires_at IS NULL OR t.expires_at > ?)
	AND t.last_activity > ?`

func (r *ticketsRepo) ListOnlineSessions(ctx context.Context, now, cutoff time.Time) ([]domain.TicketSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.user_id, t.payload, t.last_activity, t.expires_at, t.created_at,
			u.username, u.email, u.phone_number
		FROM tickets t
		JOIN users u ON u.id = t.user_id
		WHERE `+onlineSessionsFilter+`
		ORDER BY t.last_activity DESC`,
		now.UTC(), cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TicketSession
	for rows.Next() {
		var ts domain.TicketSession
		var expiresAt sql.NullTime
		err := rows.Scan(
			&ts.ID, &ts.UserID, &ts.Payload, &ts.LastActivity, &expiresAt, &ts.CreatedAt,
			&ts.Username, &ts.Email, &ts.PhoneNumber,
		)
		if err != nil {
			return nil, err
		}
		ts.ExpiresAt = mapNullTimePtr(expiresAt)
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (r *ticketsRepo) CountActiveSessions(ctx context.Context, now, cutoff time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tickets t
		WHERE `+onlineSessionsFilter,
		now.UTC(), cutoff.UTC()).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketsRepo) DeleteAllTickets(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tickets`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *ticketsRepo) DeleteExpiredTickets(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM tickets WHERE expires_at IS NOT NULL AND expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
