package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quorumsec/gatehouse/internal/identity/domain"
	"github.com/quorumsec/gatehouse/internal/identity/store"
	"github.com/quorumsec/gatehouse/pkg/cryptox"
	"github.com/quorumsec/gatehouse/pkg/idx"
	"github.com/quorumsec/gatehouse/pkg/slogx"
)

// Account token purposes embedded in signed tokens so a reset token cannot
// be replayed as an email confirmation.
const (
	tokenPurposeReset        = "password_reset"
	tokenPurposeConfirmEmail = "confirm_email"
)

const defaultAccountTokenTTL = time.Hour

var (
	ErrUsernameTaken   = errors.New("username_taken")
	ErrPhoneUnverified = errors.New("phone_not_verified")
	ErrInvalidToken    = errors.New("invalid_or_expired_token")
)

// AccountService covers registration and credential maintenance. Signed
// account tokens (password reset, email confirmation) are HS256 JWTs keyed
// by the server secret concatenated with the user's current security stamp,
// so any stamp rotation invalidates every outstanding token at once.
type AccountService struct {
	Store    store.Store
	Codes    *CodeService
	Tickets  *TicketService
	Verifier CredentialVerifier
	Queue    *NotifyQueue

	// TokenSecret is the server-side signing secret for account tokens.
	TokenSecret string

	// TokenTTL bounds account token validity. Zero means one hour.
	TokenTTL time.Duration
}

func (s *AccountService) tokenTTL() time.Duration {
	if s.TokenTTL > 0 {
		return s.TokenTTL
	}
	return defaultAccountTokenTTL
}

// StartPhoneVerification dispatches a verification code to the phone number
// and returns the opaque key the registration flow will present later.
func (s *AccountService) StartPhoneVerification(ctx context.Context, phone string) (string, error) {
	return s.Codes.CreateCode(ctx, domain.CodePurposePhoneVerify, strings.TrimSpace(phone), "")
}

// ConfirmPhoneCode marks the verification code confirmed when the submitted
// code matches. The key stays redeemable by Register until it expires.
func (s *AccountService) ConfirmPhoneCode(ctx context.Context, key, code string) error {
	return s.Codes.Confirm(ctx, key, strings.TrimSpace(code))
}

// RegisterParams is the input to Register.
type RegisterParams struct {
	Username string
	Email    string
	Password string

	// PhoneKey is the lookup key of a confirmed phone-verification code.
	PhoneKey string
}

// Register creates an account. The phone number comes from the confirmed
// verification code, never from client input, so an account can only be
// created with a number its owner demonstrated control of. The first account
// in an empty store is granted the admin role.
func (s *AccountService) Register(ctx context.Context, p RegisterParams) (domain.User, error) {
	username := strings.TrimSpace(p.Username)

	code, err := s.Codes.Lookup(ctx, p.PhoneKey)
	if err != nil {
		return domain.User{}, ErrPhoneUnverified
	}
	if code.Purpose != domain.CodePurposePhoneVerify || !code.Confirmed {
		return domain.User{}, ErrPhoneUnverified
	}

	if _, err := s.Store.Users().GetUserByUsername(ctx, username); err == nil {
		return domain.User{}, ErrUsernameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	hash, err := s.Verifier.Hash(p.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	stamp, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return domain.User{}, fmt.Errorf("generate security stamp: %w", err)
	}

	user := domain.User{
		ID:             idx.New().String(),
		Username:       username,
		Email:          strings.TrimSpace(p.Email),
		PhoneNumber:    code.PhoneNumber,
		PhoneConfirmed: true,
		PasswordHash:   hash,
		LockoutEnabled: true,
		SecurityStamp:  stamp,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		firstUser, err := tx.Users().IsEmpty(ctx)
		if err != nil {
			return err
		}

		if err := tx.Users().CreateUser(ctx, user); err != nil {
			return err
		}

		// The verification code is spent by registration so the same key
		// cannot seed a second account.
		consumed, err := tx.OneTimeCodes().ConsumeCode(ctx, code.Key, code.Code, time.Now().UTC())
		if err != nil {
			return err
		}
		if !consumed {
			return ErrPhoneUnverified
		}

		roles := []string{domain.RoleUser}
		if firstUser {
			roles = append(roles, domain.RoleAdmin)
		}
		for _, name := range roles {
			role, err := tx.Roles().GetRoleByName(ctx, name)
			if err != nil {
				return fmt.Errorf("lookup role %q: %w", name, err)
			}
			if err := tx.Roles().AssignRole(ctx, user.ID, role.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("account registered",
		"user_id", user.ID, "username", user.Username)
	return user, nil
}

// ChangePassword verifies the current password, installs the new hash with a
// fresh security stamp, and evicts the user's session so the change takes
// effect everywhere at once.
func (s *AccountService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.Verifier.Verify(user.PasswordHash, current); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return ErrInvalidCredentials
		}
		return err
	}

	return s.installPassword(ctx, userID, next)
}

func (s *AccountService) installPassword(ctx context.Context, userID, password string) error {
	hash, err := s.Verifier.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	stamp, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return fmt.Errorf("generate security stamp: %w", err)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, userID, hash, stamp); err != nil {
			return err
		}
		_, err := tx.Tickets().DeleteTicketsForUser(ctx, userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("install password: %w", err)
	}

	slogx.FromContext(ctx).Info("password changed", "user_id", userID)
	return nil
}

// IssuePasswordResetToken creates a signed reset token for the user behind a
// username, if one exists. To prevent account enumeration the caller cannot
// tell missing users apart from successful issuance; the token is delivered
// out of band.
func (s *AccountService) IssuePasswordResetToken(ctx context.Context, username string) error {
	user, err := s.Store.Users().GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slogx.FromContext(ctx).Info("reset requested for unknown username")
			return nil
		}
		return err
	}

	token, err := s.signAccountToken(user, tokenPurposeReset)
	if err != nil {
		return err
	}

	if s.Queue != nil && user.Email != "" {
		return s.Queue.Enqueue(ctx, Message{
			Recipient: user.Email,
			Body:      fmt.Sprintf("Your password reset token: %s", token),
			Kind:      "email",
		})
	}
	return nil
}

// ResetPassword redeems a reset token and installs a new password. The new
// security stamp written alongside the hash invalidates the token itself,
// making it single-use.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	userID, err := s.verifyAccountToken(ctx, token, tokenPurposeReset)
	if err != nil {
		return err
	}
	return s.installPassword(ctx, userID, newPassword)
}

// IssueEmailConfirmToken creates a signed confirmation token for the user's
// email address and queues its delivery.
func (s *AccountService) IssueEmailConfirmToken(ctx context.Context, userID string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Email == "" {
		return errors.New("no email address on account")
	}

	token, err := s.signAccountToken(user, tokenPurposeConfirmEmail)
	if err != nil {
		return err
	}

	if s.Queue != nil {
		return s.Queue.Enqueue(ctx, Message{
			Recipient: user.Email,
			Body:      fmt.Sprintf("Confirm your email with token: %s", token),
			Kind:      "email",
		})
	}
	return nil
}

// ConfirmEmail redeems a confirmation token.
func (s *AccountService) ConfirmEmail(ctx context.Context, token string) error {
	userID, err := s.verifyAccountToken(ctx, token, tokenPurposeConfirmEmail)
	if err != nil {
		return err
	}
	if err := s.Store.Users().ConfirmEmail(ctx, userID); err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("email confirmed", "user_id", userID)
	return nil
}

type accountTokenClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

func (s *AccountService) signingKey(stamp string) []byte {
	return []byte(s.TokenSecret + ":" + stamp)
}

func (s *AccountService) signAccountToken(user domain.User, purpose string) (string, error) {
	now := time.Now().UTC()
	claims := accountTokenClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL())),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey(user.SecurityStamp))
}

// verifyAccountToken checks the signature against the key derived from the
// user's CURRENT security stamp. The subject is read from the unverified
// claims first to locate that stamp; nothing is trusted until the signature
// verifies against it.
func (s *AccountService) verifyAccountToken(ctx context.Context, token, purpose string) (string, error) {
	var unverified accountTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &unverified); err != nil {
		return "", ErrInvalidToken
	}
	if unverified.Subject == "" {
		return "", ErrInvalidToken
	}

	user, err := s.Store.Users().GetUserByID(ctx, unverified.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidToken
		}
		return "", err
	}

	var claims accountTokenClaims
	_, err = jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.signingKey(user.SecurityStamp), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", ErrInvalidToken
	}
	if claims.Purpose != purpose {
		return "", ErrInvalidToken
	}

	return user.ID, nil
}
