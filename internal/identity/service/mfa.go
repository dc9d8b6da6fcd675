package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/pquerna/otp/totp"

	"github.com/quorumsec/gatehouse/internal/identity/store"
	"github.com/quorumsec/gatehouse/pkg/cryptox"
	"github.com/quorumsec/gatehouse/pkg/slogx"
)

const recoveryCodeCount = 10

// Recovery code alphabet, lowercase with the ambiguous characters removed.
const recoveryCodeAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

// MFAService manages authenticator (TOTP) enrollment and recovery codes.
// Enrollment is two-step: provision a secret, then prove possession with a
// valid code before two-factor turns on.
type MFAService struct {
	Store store.Store

	// Issuer is the name shown in authenticator apps.
	Issuer string
}

// Enrollment is the provisioning material handed to the user once, at
// enrollment time.
type Enrollment struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
}

// BeginEnrollment provisions a fresh TOTP secret for the user. The secret is
// stored immediately but two-factor stays off until VerifyAndEnable proves
// the user's app produces matching codes. Re-running replaces any previous
// unverified secret.
func (s *MFAService) BeginEnrollment(ctx context.Context, userID string) (Enrollment, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return Enrollment{}, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Username,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("generate totp secret: %w", err)
	}

	if err := s.Store.Users().SetAuthenticatorKey(ctx, userID, key.Secret()); err != nil {
		return Enrollment{}, fmt.Errorf("store totp secret: %w", err)
	}

	return Enrollment{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

// VerifyAndEnable checks a code against the provisioned secret, enables
// two-factor, and issues a fresh set of recovery codes. The plaintext codes
// are returned exactly once; only fingerprints are stored.
func (s *MFAService) VerifyAndEnable(ctx context.Context, userID, code string) ([]string, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasAuthenticator() {
		return nil, ErrSecondFactorUnconfigured
	}

	if !totp.Validate(normalizeOTP(code), *user.AuthenticatorKey) {
		return nil, ErrInvalidOrExpiredCode
	}

	codes, err := generateRecoveryCodes()
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetTwoFactorEnabled(ctx, userID, true); err != nil {
			return err
		}
		return replaceRecoveryCodes(ctx, tx, userID, codes)
	})
	if err != nil {
		return nil, fmt.Errorf("enable two-factor: %w", err)
	}

	slogx.FromContext(ctx).Info("authenticator enabled", "user_id", userID)
	return codes, nil
}

// Disable turns two-factor off, clears the secret, and revokes all recovery
// codes. The caller must have re-authenticated; this is enforced at the HTTP
// layer.
func (s *MFAService) Disable(ctx context.Context, userID string) error {
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetTwoFactorEnabled(ctx, userID, false); err != nil {
			return err
		}
		if err := tx.Users().SetAuthenticatorKey(ctx, userID, ""); err != nil {
			return err
		}
		return tx.RecoveryCodes().DeleteAllRecoveryCodes(ctx, userID)
	})
	if err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}

	slogx.FromContext(ctx).Info("authenticator disabled", "user_id", userID)
	return nil
}

// RegenerateRecoveryCodes revokes all existing codes and issues a fresh set.
func (s *MFAService) RegenerateRecoveryCodes(ctx context.Context, userID string) ([]string, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.TwoFactorEnabled {
		return nil, errors.New("two-factor is not enabled")
	}

	codes, err := generateRecoveryCodes()
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return replaceRecoveryCodes(ctx, tx, userID, codes)
	})
	if err != nil {
		return nil, fmt.Errorf("regenerate recovery codes: %w", err)
	}

	return codes, nil
}

// RemainingRecoveryCodes reports how many unused recovery codes the user
// still holds.
func (s *MFAService) RemainingRecoveryCodes(ctx context.Context, userID string) (int, error) {
	return s.Store.RecoveryCodes().CountRecoveryCodes(ctx, userID)
}

func replaceRecoveryCodes(ctx context.Context, tx store.Tx, userID string, codes []string) error {
	if err := tx.RecoveryCodes().DeleteAllRecoveryCodes(ctx, userID); err != nil {
		return err
	}
	for _, code := range codes {
		if err := tx.RecoveryCodes().CreateRecoveryCode(ctx, userID, cryptox.FingerprintToken(code)); err != nil {
			return err
		}
	}
	return nil
}

func generateRecoveryCodes() ([]string, error) {
	codes := make([]string, 0, recoveryCodeCount)
	for range recoveryCodeCount {
		code, err := generateRecoveryCode()
		if err != nil {
			return nil, fmt.Errorf("generate recovery code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// generateRecoveryCode produces a code shaped like "xxxxx-xxxxx". The hyphen
// is display formatting only; comparison strips spaces but keeps hyphens, so
// the stored fingerprint covers the hyphenated form.
func generateRecoveryCode() (string, error) {
	buf := make([]byte, 11)
	max := big.NewInt(int64(len(recoveryCodeAlphabet)))
	for i := range buf {
		if i == 5 {
			buf[i] = '-'
			continue
		}
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = recoveryCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
