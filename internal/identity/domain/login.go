package domain

import "time"

// DefaultChallengeTTL bounds how long a paused login may wait for its second
// factor.
const DefaultChallengeTTL = 5 * time.Minute

// LoginStatus is the observable state of a login attempt.
type LoginStatus string

const (
	StatusAuthenticated             LoginStatus = "authenticated"
	StatusAwaitingAuthenticatorCode LoginStatus = "awaiting_authenticator_code"
	StatusAwaitingSMSCode           LoginStatus = "awaiting_sms_code"
	StatusRejected                  LoginStatus = "rejected"
	StatusLockedOut                 LoginStatus = "locked_out"
)

// SecondFactor identifies which second-factor path applies to a user.
type SecondFactor int

const (
	SecondFactorNone SecondFactor = iota
	SecondFactorAuthenticator
	SecondFactorSMS
	// SecondFactorUnconfigured means two-factor is enabled but neither an
	// authenticator key nor a confirmed phone exists. Operator error; it is
	// surfaced distinctly rather than folded into a generic rejection.
	SecondFactorUnconfigured
)

func (f SecondFactor) String() string {
	switch f {
	case SecondFactorNone:
		return "none"
	case SecondFactorAuthenticator:
		return "authenticator"
	case SecondFactorSMS:
		return "sms"
	default:
		return "unconfigured"
	}
}

// LoginChallenge is a paused login awaiting its second factor. The token is
// the caller's only handle on the pending attempt; attempts are capped to
// keep codes brute-force resistant.
type LoginChallenge struct {
	Token     string // opaque, high entropy
	UserID    string
	Method    string // "authenticator", "sms", "recovery"
	CodeKey   string // lookup key of the dispatched SMS code, if any
	Attempts  int
	ExpiresAt time.Time
	CreatedAt time.Time
}

// LoginResult is what the orchestrator hands back after each step.
type LoginResult struct {
	Status LoginStatus

	// Set when Status == StatusAuthenticated.
	SessionKey string
	TicketID   string

	// Set when a second factor is pending.
	ChallengeToken string
	Methods        []string // paths reachable from this state
}
