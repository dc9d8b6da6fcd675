package domain

import "time"

// DefaultCodeTTL is the validity window for phone verification and SMS login
// codes.
const DefaultCodeTTL = 5 * time.Minute

// Code purposes. A phone-verification code must be confirmed before the flow
// that created it may redeem it; an SMS login code is redeemed directly.
const (
	CodePurposePhoneVerify  = "phone_verify"
	CodePurposeSMSLogin     = "sms_login"
	CodePurposeSecondFactor = "second_factor"
)

// OneTimeCode is a short-lived numeric code tied to an opaque lookup key.
// The key alone is insufficient to authenticate; the redeemer must also
// present the matching code.
type OneTimeCode struct {
	ID          string
	Purpose     string
	PhoneNumber string
	Code        string // 6-digit numeric
	Key         string // opaque lookup key, high entropy
	UserID      string // owning user, empty for pre-registration codes
	Confirmed   bool
	ConsumedAt  *time.Time
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// IsExpired reports whether the code has passed its expiry.
func (c OneTimeCode) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
