package domain

import (
	"encoding/json"
	"time"
)

// Principal is the identity snapshot serialized into a ticket payload. It is
// re-validated against the user's current security stamp on retrieval so role
// or credential changes invalidate sessions minted before the change.
type Principal struct {
	UserID        string    `json:"user_id"`
	Username      string    `json:"username"`
	Roles         []string  `json:"roles,omitempty"`
	SecurityStamp string    `json:"security_stamp"`
	AuthMethod    string    `json:"auth_method"` // e.g. "password", "password+totp"
	IssuedAt      time.Time `json:"issued_at"`
}

// Serialize encodes the principal for storage in a ticket payload.
func (p Principal) Serialize() ([]byte, error) {
	return json.Marshal(p)
}

// ParsePrincipal decodes a ticket payload back into a Principal.
func ParsePrincipal(payload []byte) (Principal, error) {
	var p Principal
	if err := json.Unmarshal(payload, &p); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// HasRole reports whether the principal carries the named role.
func (p Principal) HasRole(name string) bool {
	for _, r := range p.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// Authentication method labels recorded in minted principals.
const (
	AuthMethodPassword      = "password"
	AuthMethodAuthenticator = "password+totp"
	AuthMethodSMSFactor     = "password+sms"
	AuthMethodRecoveryCode  = "password+recovery"
	AuthMethodSMSLogin      = "sms"
)
