package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"

	"github.com/quorumsec/gatehouse/internal/identity/domain"
	"github.com/quorumsec/gatehouse/internal/identity/store"
	"github.com/quorumsec/gatehouse/pkg/cryptox"
	"github.com/quorumsec/gatehouse/pkg/slogx"
)

// Defaults for the lockout and challenge policies.
const (
	DefaultMaxFailedAttempts    = 5
	DefaultLockoutWindow        = 15 * time.Minute
	DefaultMaxChallengeAttempts = 5
)

// LoginService drives a login attempt from credentials through an optional
// second factor to a stored session ticket. The paused "awaiting second
// factor" state is a persisted challenge row, so a login can complete against
// any process sharing the store.
type LoginService struct {
	Store    store.Store
	Tickets  *TicketService
	Codes    *CodeService
	Verifier CredentialVerifier

	// MaxFailedAttempts password failures inside the lockout policy trigger
	// a lockout until now+LockoutWindow. Zero values take the defaults.
	MaxFailedAttempts int
	LockoutWindow     time.Duration

	// MaxChallengeAttempts bounds second-factor submissions per challenge.
	MaxChallengeAttempts int

	// ChallengeTTL bounds how long a paused login waits for its factor.
	ChallengeTTL time.Duration

	// SessionTTL, when positive, sets an absolute expiry on minted tickets.
	SessionTTL time.Duration
}

func (s *LoginService) maxFailed() int {
	if s.MaxFailedAttempts > 0 {
		return s.MaxFailedAttempts
	}
	return DefaultMaxFailedAttempts
}

func (s *LoginService) lockoutWindow() time.Duration {
	if s.LockoutWindow > 0 {
		return s.LockoutWindow
	}
	return DefaultLockoutWindow
}

func (s *LoginService) maxChallengeAttempts() int {
	if s.MaxChallengeAttempts > 0 {
		return s.MaxChallengeAttempts
	}
	return DefaultMaxChallengeAttempts
}

func (s *LoginService) challengeTTL() time.Duration {
	if s.ChallengeTTL > 0 {
		return s.ChallengeTTL
	}
	return domain.DefaultChallengeTTL
}

// PasswordLogin verifies a username/password pair and either mints a session
// (no second factor) or parks the attempt behind a challenge token. Unknown
// usernames and wrong passwords are indistinguishable to the caller.
func (s *LoginService) PasswordLogin(ctx context.Context, username, password string) (domain.LoginResult, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Info("login rejected: unknown username", "username", username)
			return domain.LoginResult{Status: domain.StatusRejected}, ErrInvalidCredentials
		}
		return domain.LoginResult{}, err
	}

	if user.IsLockedOut(now) {
		log.Info("login rejected: account locked out", "user_id", user.ID)
		return domain.LoginResult{Status: domain.StatusLockedOut}, ErrAccountLockedOut
	}

	if err := s.Verifier.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			return domain.LoginResult{}, fmt.Errorf("verify password: %w", err)
		}
		return s.recordPasswordFailure(ctx, user)
	}

	if err := s.Store.Users().ResetAccessFailed(ctx, user.ID); err != nil {
		return domain.LoginResult{}, fmt.Errorf("reset failed counter: %w", err)
	}

	switch EvaluateSecondFactor(user) {
	case domain.SecondFactorNone:
		return s.mintSession(ctx, user, domain.AuthMethodPassword)

	case domain.SecondFactorAuthenticator:
		return s.createChallenge(ctx, user, "authenticator", "",
			domain.StatusAwaitingAuthenticatorCode)

	case domain.SecondFactorSMS:
		key, err := s.Codes.CreateCode(ctx, domain.CodePurposeSecondFactor, user.PhoneNumber, user.ID)
		if err != nil {
			return domain.LoginResult{}, fmt.Errorf("dispatch sms factor: %w", err)
		}
		return s.createChallenge(ctx, user, "sms", key, domain.StatusAwaitingSMSCode)

	default:
		log.Warn("login rejected: two-factor enabled with no usable factor", "user_id", user.ID)
		return domain.LoginResult{Status: domain.StatusRejected}, ErrSecondFactorUnconfigured
	}
}

func (s *LoginService) recordPasswordFailure(ctx context.Context, user domain.User) (domain.LoginResult, error) {
	log := slogx.FromContext(ctx)

	failed, err := s.Store.Users().IncrementAccessFailed(ctx, user.ID)
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("record failed attempt: %w", err)
	}

	if user.LockoutEnabled && failed >= s.maxFailed() {
		until := time.Now().UTC().Add(s.lockoutWindow())
		if err := s.Store.Users().SetLockoutEnd(ctx, user.ID, &until); err != nil {
			return domain.LoginResult{}, fmt.Errorf("set lockout: %w", err)
		}
		// The counter restarts once the lockout expires; otherwise a single
		// wrong password after the window would re-lock immediately.
		if err := s.Store.Users().ResetAccessFailed(ctx, user.ID); err != nil {
			return domain.LoginResult{}, fmt.Errorf("reset failed attempts: %w", err)
		}
		log.Warn("account locked out after repeated failures",
			"user_id", user.ID, "failed_attempts", failed)
		return domain.LoginResult{Status: domain.StatusLockedOut}, ErrAccountLockedOut
	}

	log.Info("login rejected: wrong password",
		"user_id", user.ID, "failed_attempts", failed)
	return domain.LoginResult{Status: domain.StatusRejected}, ErrInvalidCredentials
}

func (s *LoginService) createChallenge(
	ctx context.Context,
	user domain.User,
	method, codeKey string,
	status domain.LoginStatus,
) (domain.LoginResult, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("generate challenge token: %w", err)
	}

	challenge := domain.LoginChallenge{
		Token:     token,
		UserID:    user.ID,
		Method:    method,
		CodeKey:   codeKey,
		ExpiresAt: time.Now().UTC().Add(s.challengeTTL()),
	}
	if err := s.Store.LoginChallenges().CreateChallenge(ctx, challenge); err != nil {
		return domain.LoginResult{}, fmt.Errorf("persist challenge: %w", err)
	}

	methods := []string{method, "recovery"}
	return domain.LoginResult{
		Status:         status,
		ChallengeToken: token,
		Methods:        methods,
	}, nil
}

// CompleteAuthenticator finishes a paused login with a TOTP code. Input is
// normalized by stripping whitespace and hyphens, matching how authenticator
// apps display codes.
func (s *LoginService) CompleteAuthenticator(ctx context.Context, token, code string) (domain.LoginResult, error) {
	code = normalizeOTP(code)

	challenge, user, err := s.loadChallenge(ctx, token)
	if err != nil {
		return domain.LoginResult{}, err
	}

	if !user.HasAuthenticator() {
		return domain.LoginResult{Status: domain.StatusRejected}, ErrSecondFactorUnconfigured
	}

	if !totp.Validate(code, *user.AuthenticatorKey) {
		return s.burnChallengeAttempt(ctx, challenge)
	}

	return s.finishChallenge(ctx, challenge, user, domain.AuthMethodAuthenticator)
}

// CompleteSMS finishes a paused login with the dispatched SMS code. The code
// row is consumed atomically, so replaying a captured code loses.
func (s *LoginService) CompleteSMS(ctx context.Context, token, code string) (domain.LoginResult, error) {
	code = strings.TrimSpace(code)

	challenge, user, err := s.loadChallenge(ctx, token)
	if err != nil {
		return domain.LoginResult{}, err
	}

	if challenge.CodeKey == "" {
		return domain.LoginResult{Status: domain.StatusRejected}, ErrInvalidOrExpiredCode
	}

	if err := s.Codes.Consume(ctx, challenge.CodeKey, code); err != nil {
		if errors.Is(err, ErrInvalidOrExpiredCode) {
			return s.burnChallengeAttempt(ctx, challenge)
		}
		return domain.LoginResult{}, err
	}

	return s.finishChallenge(ctx, challenge, user, domain.AuthMethodSMSFactor)
}

// CompleteRecovery finishes a paused login with a single-use recovery code.
// Spaces are stripped so codes can be typed in their displayed groups.
func (s *LoginService) CompleteRecovery(ctx context.Context, token, code string) (domain.LoginResult, error) {
	code = strings.ReplaceAll(strings.TrimSpace(code), " ", "")

	challenge, user, err := s.loadChallenge(ctx, token)
	if err != nil {
		return domain.LoginResult{}, err
	}

	outcome, err := s.Store.RecoveryCodes().ConsumeRecoveryCode(ctx, user.ID, cryptox.FingerprintToken(code))
	if err != nil {
		return domain.LoginResult{}, err
	}
	switch outcome {
	case store.RecoveryConsumeSpent:
		// A spent code is a strong signal the codes leaked. Burn an attempt
		// and tell the caller why.
		if _, err := s.burnChallengeAttempt(ctx, challenge); err != nil &&
			!errors.Is(err, ErrInvalidOrExpiredCode) && !errors.Is(err, ErrTooManyAttempts) {
			return domain.LoginResult{}, err
		}
		slogx.FromContext(ctx).Warn("spent recovery code submitted", "user_id", user.ID)
		return domain.LoginResult{Status: domain.StatusRejected}, ErrRecoveryCodeUsed
	case store.RecoveryConsumeMiss:
		return s.burnChallengeAttempt(ctx, challenge)
	}

	remaining, err := s.Store.RecoveryCodes().CountRecoveryCodes(ctx, user.ID)
	if err == nil && remaining <= 2 {
		slogx.FromContext(ctx).Warn("user is running low on recovery codes",
			"user_id", user.ID, "remaining", remaining)
	}

	return s.finishChallenge(ctx, challenge, user, domain.AuthMethodRecoveryCode)
}

// SMSLoginStart begins a passwordless login for a confirmed phone number.
// To avoid phone-number enumeration the caller gets a key either way; only
// numbers belonging to a real account get a code dispatched.
func (s *LoginService) SMSLoginStart(ctx context.Context, phone string) (string, error) {
	phone = strings.TrimSpace(phone)

	user, err := s.Store.Users().GetUserByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slogx.FromContext(ctx).Info("sms login requested for unknown phone")
			return burnerKey(), nil
		}
		return "", err
	}

	if user.IsLockedOut(time.Now().UTC()) {
		slogx.FromContext(ctx).Warn("sms login suppressed for locked account",
			"user_id", user.ID)
		return burnerKey(), nil
	}

	return s.Codes.CreateCode(ctx, domain.CodePurposeSMSLogin, phone, user.ID)
}

// burnerKey mints a key in the same shape as a real code key, so responses
// for unknown or locked accounts are indistinguishable from live ones. No
// code is attached; redeeming it always fails.
func burnerKey() string {
	return uuid.NewString()
}

// SMSLoginComplete redeems an SMS login code and mints a session.
func (s *LoginService) SMSLoginComplete(ctx context.Context, key, code string) (domain.LoginResult, error) {
	code = strings.TrimSpace(code)

	rec, err := s.Codes.Lookup(ctx, key)
	if err != nil {
		return domain.LoginResult{Status: domain.StatusRejected}, err
	}
	if rec.Purpose != domain.CodePurposeSMSLogin || rec.UserID == "" {
		return domain.LoginResult{Status: domain.StatusRejected}, ErrInvalidOrExpiredCode
	}

	if err := s.Codes.Consume(ctx, key, code); err != nil {
		return domain.LoginResult{Status: domain.StatusRejected}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, rec.UserID)
	if err != nil {
		return domain.LoginResult{}, err
	}

	return s.mintSession(ctx, user, domain.AuthMethodSMSLogin)
}

// Logout removes the caller's session ticket. Idempotent.
func (s *LoginService) Logout(ctx context.Context, sessionKey string) error {
	return s.Tickets.Remove(ctx, sessionKey)
}

func (s *LoginService) loadChallenge(ctx context.Context, token string) (domain.LoginChallenge, domain.User, error) {
	challenge, err := s.Store.LoginChallenges().GetChallenge(ctx, token, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginChallenge{}, domain.User{}, ErrInvalidOrExpiredCode
		}
		return domain.LoginChallenge{}, domain.User{}, err
	}

	if challenge.Attempts >= s.maxChallengeAttempts() {
		return domain.LoginChallenge{}, domain.User{}, ErrTooManyAttempts
	}

	user, err := s.Store.Users().GetUserByID(ctx, challenge.UserID)
	if err != nil {
		return domain.LoginChallenge{}, domain.User{}, err
	}

	return challenge, user, nil
}

// burnChallengeAttempt records one failed second-factor submission. Failures
// burn per-challenge attempts, not the account lockout counter, so bad codes
// cannot be used to lock a victim out of their account.
func (s *LoginService) burnChallengeAttempt(ctx context.Context, challenge domain.LoginChallenge) (domain.LoginResult, error) {
	updated, err := s.Store.LoginChallenges().IncrementChallengeAttempts(ctx, challenge.Token)
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("record challenge failure: %w", err)
	}

	if updated.Attempts >= s.maxChallengeAttempts() {
		if err := s.Store.LoginChallenges().DeleteChallenge(ctx, challenge.Token); err != nil {
			slogx.FromContext(ctx).Warn("failed to delete exhausted challenge",
				"user_id", challenge.UserID, "err", err)
		}
		slogx.FromContext(ctx).Warn("second-factor attempts exhausted",
			"user_id", challenge.UserID, "method", challenge.Method)
		return domain.LoginResult{Status: domain.StatusRejected}, ErrTooManyAttempts
	}

	return domain.LoginResult{Status: domain.StatusRejected}, ErrInvalidOrExpiredCode
}

func (s *LoginService) finishChallenge(
	ctx context.Context,
	challenge domain.LoginChallenge,
	user domain.User,
	authMethod string,
) (domain.LoginResult, error) {
	if err := s.Store.LoginChallenges().DeleteChallenge(ctx, challenge.Token); err != nil {
		return domain.LoginResult{}, fmt.Errorf("retire challenge: %w", err)
	}
	return s.mintSession(ctx, user, authMethod)
}

func (s *LoginService) mintSession(ctx context.Context, user domain.User, authMethod string) (domain.LoginResult, error) {
	roles, err := s.Store.Roles().ListUserRoles(ctx, user.ID)
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("load roles: %w", err)
	}
	roleNames := make([]string, 0, len(roles))
	for _, r := range roles {
		roleNames = append(roleNames, r.Name)
	}

	now := time.Now().UTC()
	principal := domain.Principal{
		UserID:        user.ID,
		Username:      user.Username,
		Roles:         roleNames,
		SecurityStamp: user.SecurityStamp,
		AuthMethod:    authMethod,
		IssuedAt:      now,
	}
	payload, err := principal.Serialize()
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("serialize principal: %w", err)
	}

	var expiresAt *time.Time
	if s.SessionTTL > 0 {
		t := now.Add(s.SessionTTL)
		expiresAt = &t
	}

	ticketID, err := s.Tickets.StoreTicket(ctx, user.ID, payload, expiresAt)
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("store session ticket: %w", err)
	}

	slogx.FromContext(ctx).Info("login succeeded",
		"user_id", user.ID, "auth_method", authMethod, "ticket_id", ticketID)

	return domain.LoginResult{
		Status:     domain.StatusAuthenticated,
		SessionKey: user.ID,
		TicketID:   ticketID,
	}, nil
}

// normalizeOTP strips the whitespace and hyphens authenticator apps insert
// into displayed codes.
func normalizeOTP(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-':
			return -1
		}
		return r
	}, code)
}
