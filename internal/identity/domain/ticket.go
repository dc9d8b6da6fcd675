package domain

import "time"

// DefaultActivityWindow is how recently a ticket must have been touched for
// its session to count as active. A ticket can be valid (not expired) while
// its user has been idle past this window.
const DefaultActivityWindow = 30 * time.Minute

// Ticket is one persisted server-side session. At most one non-removed
// ticket exists per user; the externally visible session key is the owning
// user's id, while ID identifies the individual ticket for admin tooling.
type Ticket struct {
	ID           string // ULID; creation time is recoverable from it
	UserID       string
	Payload      []byte // serialized principal
	LastActivity time.Time
	ExpiresAt    *time.Time // nil means no absolute expiry
	CreatedAt    time.Time
}

// IsExpired reports whether the ticket has passed its absolute expiry.
func (t Ticket) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// TicketSession is a ticket joined with its owner's contact details, as read
// back for the session administration surface.
type TicketSession struct {
	Ticket

	Username    string
	Email       string
	PhoneNumber string
}

// SessionSummary is one row of the admin "online sessions" listing.
type SessionSummary struct {
	TicketID     string        `json:"ticket_id"`
	UserID       string        `json:"user_id"`
	Username     string        `json:"username"`
	Email        string        `json:"email,omitempty"`
	PhoneNumber  string        `json:"phone_number,omitempty"`
	LoginTime    time.Time     `json:"login_time"` // approximate, derived from the ticket id
	LastActivity time.Time     `json:"last_activity"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
	Duration     time.Duration `json:"duration"`
	IsActive     bool          `json:"is_active"`
	IsExpired    bool          `json:"is_expired"`
}
