package service

import "github.com/quorumsec/gatehouse/internal/identity/domain"

// EvaluateSecondFactor decides which second-factor path applies to a user.
// Pure decision function with no side effects; the orchestrator consults it
// before any code is generated or dispatched.
//
// Preference order: an authenticator key beats SMS when both are configured.
// Two-factor enabled with neither configured is an operator error and maps to
// SecondFactorUnconfigured rather than a silent pass-through.
func EvaluateSecondFactor(u domain.User) domain.SecondFactor {
	if !u.TwoFactorEnabled {
		return domain.SecondFactorNone
	}
	if u.HasAuthenticator() {
		return domain.SecondFactorAuthenticator
	}
	if u.PhoneConfirmed && u.PhoneNumber != "" {
		return domain.SecondFactorSMS
	}
	return domain.SecondFactorUnconfigured
}
