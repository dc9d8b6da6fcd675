package domain

import "time"

type User struct {
	ID                string
	Username          string
	Email             string // optional, not unique
	EmailConfirmed    bool
	PhoneNumber       string
	PhoneConfirmed    bool
	PasswordHash      string // argon2id encoded
	TwoFactorEnabled  bool
	AuthenticatorKey  *string // TOTP secret (nullable, base32 encoded)
	LockoutEnabled    bool
	LockoutEnd        *time.Time
	AccessFailedCount int
	SecurityStamp     string // rotated on credential-affecting changes
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsLockedOut reports whether the account is currently locked. Lockout is
// only honoured when enabled for the account.
func (u User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnabled && u.LockoutEnd != nil && now.Before(*u.LockoutEnd)
}

// HasAuthenticator reports whether a TOTP key has been provisioned.
func (u User) HasAuthenticator() bool {
	return u.AuthenticatorKey != nil && *u.AuthenticatorKey != ""
}
