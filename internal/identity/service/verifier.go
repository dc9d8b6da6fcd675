package service

import "github.com/quorumsec/gatehouse/pkg/cryptox"

// CredentialVerifier abstracts the password hashing provider so the login
// orchestrator never depends on a concrete algorithm.
type CredentialVerifier interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

// Argon2Verifier is the default CredentialVerifier, backed by the peppered
// Argon2id implementation in cryptox.
type Argon2Verifier struct{}

func (Argon2Verifier) Hash(password string) (string, error) {
	return cryptox.HashPassword(password)
}

func (Argon2Verifier) Verify(hash, password string) error {
	return cryptox.VerifyPassword(password, hash)
}
