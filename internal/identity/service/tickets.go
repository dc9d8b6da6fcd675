package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quorumsec/gatehouse/internal/identity/domain"
	"github.com/quorumsec/gatehouse/internal/identity/store"
	"github.com/quorumsec/gatehouse/pkg/idx"
	"github.com/quorumsec/gatehouse/pkg/slogx"
)

// TicketService is the persistence and lifecycle authority for authentication
// tickets. The externally visible session key is the owning user's id; the
// service enforces at most one ticket per user at write time, so the later of
// two concurrent logins wins and silently evicts the earlier ticket.
type TicketService struct {
	Store store.Store

	// ActivityWindow is how recent last_activity must be for a session to
	// count as active. Zero means domain.DefaultActivityWindow.
	ActivityWindow time.Duration
}

func (s *TicketService) window() time.Duration {
	if s.ActivityWindow > 0 {
		return s.ActivityWindow
	}
	return domain.DefaultActivityWindow
}

// StoreTicket atomically deletes any existing tickets for the user and
// inserts one new ticket. Persistence failures propagate to the caller:
// silently failing to evict the old ticket would break the single-session
// invariant.
func (s *TicketService) StoreTicket(
	ctx context.Context,
	userID string,
	payload []byte,
	expiresAt *time.Time,
) (string, error) {
	now := time.Now().UTC()
	ticket := domain.Ticket{
		ID:           idx.New().String(),
		UserID:       userID,
		Payload:      payload,
		LastActivity: now,
		ExpiresAt:    expiresAt,
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Tickets().DeleteTicketsForUser(ctx, userID); err != nil {
			return fmt.Errorf("evict existing tickets: %w", err)
		}
		if err := tx.Tickets().InsertTicket(ctx, ticket); err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return ticket.ID, nil
}

// Retrieve returns the ticket payload for a session key and slides the
// activity window. The touch is best-effort: losing the race against a
// concurrent removal only costs an activity update.
func (s *TicketService) Retrieve(ctx context.Context, sessionKey string) ([]byte, error) {
	now := time.Now().UTC()

	ticket, err := s.Store.Tickets().GetTicketByUser(ctx, sessionKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if ticket.IsExpired(now) {
		return nil, ErrSessionNotFound
	}

	if err := s.Store.Tickets().TouchTicket(ctx, sessionKey, now); err != nil {
		slogx.FromContext(ctx).Warn("failed to update ticket activity",
			"session_key", sessionKey, "err", err)
	}

	return ticket.Payload, nil
}

// Renew updates payload, activity, and expiry in place without changing
// ticket identity.
func (s *TicketService) Renew(ctx context.Context, sessionKey string, payload []byte, expiresAt *time.Time) error {
	err := s.Store.Tickets().UpdateTicket(ctx, sessionKey, payload, time.Now().UTC(), expiresAt)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// Remove deletes the ticket for a session key. Idempotent; absence is not an
// error.
func (s *TicketService) Remove(ctx context.Context, sessionKey string) error {
	_, err := s.Store.Tickets().DeleteTicketsForUser(ctx, sessionKey)
	return err
}

// ListOnline returns one summary per non-expired ticket with activity inside
// the window, most recently active first. IsActive and IsExpired are
// distinct: a ticket can be valid for hours while its user idles past the
// activity window.
func (s *TicketService) ListOnline(ctx context.Context) ([]domain.SessionSummary, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-s.window())

	sessions, err := s.Store.Tickets().ListOnlineSessions(ctx, now, cutoff)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SessionSummary, 0, len(sessions))
	for _, ts := range sessions {
		out = append(out, s.summarize(ts, now))
	}
	return out, nil
}

func (s *TicketService) summarize(ts domain.TicketSession, now time.Time) domain.SessionSummary {
	// The ticket id is a ULID, so its embedded timestamp approximates the
	// login time without a dedicated column.
	loginTime := ts.LastActivity
	if id, err := idx.Parse(ts.ID); err == nil {
		loginTime = id.Time()
	}

	return domain.SessionSummary{
		TicketID:     ts.ID,
		UserID:       ts.UserID,
		Username:     ts.Username,
		Email:        ts.Email,
		PhoneNumber:  ts.PhoneNumber,
		LoginTime:    loginTime,
		LastActivity: ts.LastActivity,
		ExpiresAt:    ts.ExpiresAt,
		Duration:     now.Sub(loginTime),
		IsActive:     now.Sub(ts.LastActivity) <= s.window(),
		IsExpired:    ts.IsExpired(now),
	}
}

// ForceLogoutUser removes the user's ticket, reporting whether one existed.
// Privileged action; the acting operator is recorded in the audit log.
func (s *TicketService) ForceLogoutUser(ctx context.Context, actorID, userID string) (bool, error) {
	n, err := s.Store.Tickets().DeleteTicketsForUser(ctx, userID)
	if err != nil {
		return false, err
	}

	slogx.FromContext(ctx).Info("forced user logout",
		"actor_id", actorID, "user_id", userID, "removed", n > 0)
	return n > 0, nil
}

// ForceLogoutSession removes one ticket by its ticket id.
func (s *TicketService) ForceLogoutSession(ctx context.Context, actorID, ticketID string) (bool, error) {
	removed, err := s.Store.Tickets().DeleteTicketByID(ctx, ticketID)
	if err != nil {
		return false, err
	}

	slogx.FromContext(ctx).Info("forced session logout",
		"actor_id", actorID, "ticket_id", ticketID, "removed", removed)
	return removed, nil
}

// ClearAll removes every ticket, returning the count removed.
func (s *TicketService) ClearAll(ctx context.Context, actorID string) (int64, error) {
	n, err := s.Store.Tickets().DeleteAllTickets(ctx)
	if err != nil {
		return 0, err
	}

	slogx.FromContext(ctx).Info("cleared all sessions",
		"actor_id", actorID, "removed", n)
	return n, nil
}

// CleanupExpired deletes exactly the tickets whose absolute expiry has
// passed. Idempotent: a second immediate call removes zero.
func (s *TicketService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.Store.Tickets().DeleteExpiredTickets(ctx, time.Now().UTC())
}

// IsOnline reports whether the user has a non-expired ticket with activity
// inside the window.
func (s *TicketService) IsOnline(ctx context.Context, userID string) (bool, error) {
	now := time.Now().UTC()

	ticket, err := s.Store.Tickets().GetTicketByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if ticket.IsExpired(now) {
		return false, nil
	}
	return now.Sub(ticket.LastActivity) <= s.window(), nil
}

// ActiveSessionCount counts sessions that would appear in ListOnline.
func (s *TicketService) ActiveSessionCount(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	return s.Store.Tickets().CountActiveSessions(ctx, now, now.Add(-s.window()))
}
