package service

import "errors"

// Failure taxonomy surfaced by the login orchestrator and session services.
// Unknown-user and wrong-password share ErrInvalidCredentials so responses
// cannot be used for account enumeration; likewise unknown-key, expired, and
// wrong-code all collapse into ErrInvalidOrExpiredCode for the caller while
// being distinguished in logs.
var (
	ErrInvalidCredentials       = errors.New("invalid_credentials")
	ErrAccountLockedOut         = errors.New("account_locked_out")
	ErrSecondFactorUnconfigured = errors.New("second_factor_unconfigured")
	ErrInvalidOrExpiredCode     = errors.New("invalid_or_expired_code")
	ErrRecoveryCodeUsed         = errors.New("recovery_code_already_used")
	ErrSessionNotFound          = errors.New("session_not_found")
	ErrTooManyAttempts          = errors.New("too_many_attempts")
)
