package http

import (
	"errors"
	"net/http"

	"github.com/quorumsec/gatehouse/internal/identity/service"
	"github.com/quorumsec/gatehouse/pkg/httpx"
	"github.com/quorumsec/gatehouse/pkg/slogx"
)

// writeServiceError maps service failures to HTTP responses. Anything not in
// the public taxonomy is logged and collapsed into a 500 so internal details
// never leak.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_credentials", "Invalid username or password")
	case errors.Is(err, service.ErrAccountLockedOut):
		httpx.WriteError(w, http.StatusForbidden,
			"account_locked_out", "Account is temporarily locked")
	case errors.Is(err, service.ErrSecondFactorUnconfigured):
		httpx.WriteError(w, http.StatusConflict,
			"second_factor_unconfigured", "Two-factor is enabled but no second factor is configured")
	case errors.Is(err, service.ErrInvalidOrExpiredCode):
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_or_expired_code", "Code is invalid or has expired")
	case errors.Is(err, service.ErrRecoveryCodeUsed):
		httpx.WriteError(w, http.StatusBadRequest,
			"recovery_code_already_used", "Recovery code has already been used")
	case errors.Is(err, service.ErrTooManyAttempts):
		httpx.WriteError(w, http.StatusTooManyRequests,
			"too_many_attempts", "Too many failed attempts; start over")
	case errors.Is(err, service.ErrSessionNotFound):
		httpx.WriteError(w, http.StatusUnauthorized,
			"session_not_found", "No active session")
	case errors.Is(err, service.ErrUsernameTaken):
		httpx.WriteError(w, http.StatusConflict,
			"username_taken", "Username is already in use")
	case errors.Is(err, service.ErrPhoneUnverified):
		httpx.WriteError(w, http.StatusBadRequest,
			"phone_not_verified", "Phone number has not been verified")
	case errors.Is(err, service.ErrInvalidToken):
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_token", "Token is invalid or has expired")
	case errors.Is(err, service.ErrRoleNotFound):
		httpx.WriteError(w, http.StatusNotFound,
			"role_not_found", "No such role")
	default:
		slogx.FromContext(r.Context()).Error("request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "Internal server error")
	}
}
