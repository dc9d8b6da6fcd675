package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quorumsec/gatehouse/internal/identity/domain"
	"github.com/quorumsec/gatehouse/internal/identity/store"
	"github.com/quorumsec/gatehouse/pkg/cryptox"
	"github.com/quorumsec/gatehouse/pkg/idx"
)

// CodeService issues and redeems short-lived numeric one-time codes. Codes
// are delivered out of band over SMS; callers hold only the opaque lookup
// key, never the code row itself.
type CodeService struct {
	Store store.Store
	Queue *NotifyQueue

	// TTL bounds code validity. Zero means domain.DefaultCodeTTL.
	TTL time.Duration
}

func (s *CodeService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return domain.DefaultCodeTTL
}

// CreateCode mints a six digit code for the given purpose, persists it, and
// queues the SMS. The returned key is the caller's only handle on the code.
// userID is empty for pre-registration phone verification.
func (s *CodeService) CreateCode(
	ctx context.Context,
	purpose, phoneNumber, userID string,
) (string, error) {
	code, err := cryptox.GenerateNumericCode(6)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	now := time.Now().UTC()
	rec := domain.OneTimeCode{
		ID:          idx.New().String(),
		Purpose:     purpose,
		PhoneNumber: phoneNumber,
		Code:        code,
		Key:         uuid.NewString(),
		UserID:      userID,
		ExpiresAt:   now.Add(s.ttl()),
	}

	if err := s.Store.OneTimeCodes().CreateCode(ctx, rec); err != nil {
		return "", fmt.Errorf("persist code: %w", err)
	}

	if s.Queue != nil {
		err := s.Queue.Enqueue(ctx, Message{
			Recipient: phoneNumber,
			Body:      fmt.Sprintf("Your verification code is %s", code),
			Kind:      "sms",
		})
		if err != nil {
			return "", fmt.Errorf("queue sms: %w", err)
		}
	}

	return rec.Key, nil
}

// Confirm marks the code behind a key as confirmed if it matches and is
// still live. Confirmation does not consume: registration checks the
// confirmed flag separately when it finalizes the account.
func (s *CodeService) Confirm(ctx context.Context, key, code string) error {
	ok, err := s.Store.OneTimeCodes().ConfirmCode(ctx, key, code, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOrExpiredCode
	}
	return nil
}

// Consume redeems a code exactly once. The store performs the compare and
// mark as a single guarded update, so two racing redeemers cannot both win.
func (s *CodeService) Consume(ctx context.Context, key, code string) error {
	ok, err := s.Store.OneTimeCodes().ConsumeCode(ctx, key, code, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOrExpiredCode
	}
	return nil
}

// Lookup returns the code record behind a key, or ErrInvalidOrExpiredCode
// when the key is unknown or the code has expired.
func (s *CodeService) Lookup(ctx context.Context, key string) (domain.OneTimeCode, error) {
	rec, err := s.Store.OneTimeCodes().GetCodeByKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.OneTimeCode{}, ErrInvalidOrExpiredCode
		}
		return domain.OneTimeCode{}, err
	}
	if rec.IsExpired(time.Now().UTC()) {
		return domain.OneTimeCode{}, ErrInvalidOrExpiredCode
	}
	return rec, nil
}
