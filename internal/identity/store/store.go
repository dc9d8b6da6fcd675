package store

import (
	"context"
	"errors"
	"time"

	"github.com/quorumsec/gatehouse/internal/identity/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement this. It exposes narrow sub-repositories so no single object has
// to implement every concern, and so each repo is independently testable.
type Store interface {
	Users() Users
	Roles() Roles
	Tickets() Tickets
	OneTimeCodes() OneTimeCodes
	LoginChallenges() LoginChallenges
	RecoveryCodes() RecoveryCodes

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, rolling back when fn returns
	// an error and committing otherwise. Prefer this over Tx directly.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during password login.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// GetUserByPhone is used by the standalone SMS login flow. Only confirmed
	// phone numbers match.
	GetUserByPhone(ctx context.Context, phone string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by the app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password hash and a fresh security stamp in
	// one statement so the two can never diverge.
	UpdatePasswordHash(ctx context.Context, userID, newHash, newStamp string) error

	// UpdateSecurityStamp rotates the stamp alone (role changes etc).
	UpdateSecurityStamp(ctx context.Context, userID, newStamp string) error

	// SetAuthenticatorKey stores the TOTP secret; empty clears it.
	SetAuthenticatorKey(ctx context.Context, userID, key string) error

	// SetTwoFactorEnabled flips the two-factor flag.
	SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool) error

	// ConfirmEmail marks the email address as confirmed.
	ConfirmEmail(ctx context.Context, userID string) error

	// ConfirmPhone stores phone and marks it confirmed.
	ConfirmPhone(ctx context.Context, userID, phone string) error

	// IncrementAccessFailed bumps the failed-attempt counter and returns the
	// new value.
	IncrementAccessFailed(ctx context.Context, userID string) (int, error)

	// ResetAccessFailed zeroes the failed-attempt counter.
	ResetAccessFailed(ctx context.Context, userID string) error

	// SetLockoutEnd sets (or clears, with nil) the lockout-end timestamp.
	SetLockoutEnd(ctx context.Context, userID string, until *time.Time) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

type Roles interface {
	GetRoleByName(ctx context.Context, name string) (domain.Role, error)

	CreateRole(ctx context.Context, r domain.Role) error

	ListAll(ctx context.Context) ([]domain.Role, error)

	// ListUserRoles returns the roles assigned to a user.
	ListUserRoles(ctx context.Context, userID string) ([]domain.Role, error)

	// AssignRole adds a user/role membership; assigning an existing
	// membership is a no-op.
	AssignRole(ctx context.Context, userID, roleID string) error

	// RemoveRole drops a membership; absence is not an error.
	RemoveRole(ctx context.Context, userID, roleID string) error
}

type Tickets interface {
	// InsertTicket inserts one ticket row. The schema's unique index on
	// user_id backstops the single-session invariant.
	InsertTicket(ctx context.Context, t domain.Ticket) error

	// DeleteTicketsForUser removes every ticket owned by the user, returning
	// how many were removed.
	DeleteTicketsForUser(ctx context.Context, userID string) (int64, error)

	// GetTicketByUser returns the user's ticket, expired or not.
	GetTicketByUser(ctx context.Context, userID string) (domain.Ticket, error)

	// TouchTicket sets last_activity. Best-effort against concurrent removal:
	// touching a missing ticket is not an error.
	TouchTicket(ctx context.Context, userID string, at time.Time) error

	// UpdateTicket replaces payload, last_activity, and expiry in place
	// without changing ticket identity.
	UpdateTicket(ctx context.Context, userID string, payload []byte, lastActivity time.Time, expiresAt *time.Time) error

	// DeleteTicketByID removes one ticket by its ticket id, reporting whether
	// a row existed.
	DeleteTicketByID(ctx context.Context, ticketID string) (bool, error)

	// ListOnlineSessions returns tickets joined with owner contact details,
	// filtered to non-expired tickets with activity after cutoff, most
	// recently active first.
	ListOnlineSessions(ctx context.Context, now, cutoff time.Time) ([]domain.TicketSession, error)

	// CountActiveSessions counts tickets passing the same filter as
	// ListOnlineSessions.
	CountActiveSessions(ctx context.Context, now, cutoff time.Time) (int, error)

	// DeleteAllTickets clears the table, returning the removed count.
	DeleteAllTickets(ctx context.Context) (int64, error)

	// DeleteExpiredTickets removes tickets whose expiry has passed.
	DeleteExpiredTickets(ctx context.Context, now time.Time) (int64, error)
}

type OneTimeCodes interface {
	CreateCode(ctx context.Context, c domain.OneTimeCode) error

	// GetCodeByKey fetches a code record by its opaque lookup key.
	GetCodeByKey(ctx context.Context, key string) (domain.OneTimeCode, error)

	// ConfirmCode marks an unexpired, unconsumed code as confirmed when the
	// submitted code matches, reporting whether a row matched.
	ConfirmCode(ctx context.Context, key, code string, now time.Time) (bool, error)

	// ConsumeCode is the compare-and-mark-used step: it sets consumed_at only
	// when the key exists, the submitted code matches, the code is unexpired
	// and not yet consumed. Exactly one concurrent redeemer can win.
	ConsumeCode(ctx context.Context, key, code string, now time.Time) (bool, error)

	// DeleteExpiredCodes removes codes past expiry (consumed rows linger
	// until they expire).
	DeleteExpiredCodes(ctx context.Context, now time.Time) (int64, error)
}

type LoginChallenges interface {
	CreateChallenge(ctx context.Context, c domain.LoginChallenge) error

	// GetChallenge retrieves a challenge by token, only if not expired.
	GetChallenge(ctx context.Context, token string, now time.Time) (domain.LoginChallenge, error)

	// IncrementChallengeAttempts bumps the failed attempt counter and returns
	// the updated challenge.
	IncrementChallengeAttempts(ctx context.Context, token string) (domain.LoginChallenge, error)

	DeleteChallenge(ctx context.Context, token string) error

	DeleteExpiredChallenges(ctx context.Context, now time.Time) (int64, error)
}

// RecoveryConsume is the outcome of a recovery code submission.
type RecoveryConsume int

const (
	// RecoveryConsumeMiss means no such code exists for the user.
	RecoveryConsumeMiss RecoveryConsume = iota
	// RecoveryConsumeOK means the code was valid and is now spent.
	RecoveryConsumeOK
	// RecoveryConsumeSpent means the code existed but was already used.
	RecoveryConsumeSpent
)

type RecoveryCodes interface {
	// CreateRecoveryCode stores one recovery code fingerprint for a user.
	CreateRecoveryCode(ctx context.Context, userID, codeHash string) error

	// ConsumeRecoveryCode marks the matching fingerprint used with a guarded
	// update, so each code is single-use even under concurrent submission.
	// A spent code reports RecoveryConsumeSpent rather than a plain miss.
	ConsumeRecoveryCode(ctx context.Context, userID, codeHash string) (RecoveryConsume, error)

	DeleteAllRecoveryCodes(ctx context.Context, userID string) error

	// CountRecoveryCodes counts codes not yet used.
	CountRecoveryCodes(ctx context.Context, userID string) (int, error)
}
