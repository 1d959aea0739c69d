package models

import (
	"time"
)

// Account is the per-user record the protection engine mutates. The
// credential hash itself is opaque to the engine; only pkg/auth reads it.
type Account struct {
	ID                 string
	Username           string
	CredentialHash     string
	CredentialScheme   CredentialScheme
	StrengthLabel      string // "weak", "medium", "strong"
	FailedAttempts     int
	LockedUntil        *time.Time // nil when not locked
	SecondFactorSecret *string    // nil until provisioned
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CredentialScheme identifies how CredentialHash was produced.
type CredentialScheme string

const (
	SchemeNone     CredentialScheme = "none"
	SchemeSHA256   CredentialScheme = "sha256"
	SchemeBcrypt   CredentialScheme = "bcrypt"
	SchemeArgon2id CredentialScheme = "argon2id"
)

// Valid reports whether s is a known credential scheme.
func (s CredentialScheme) Valid() bool {
	switch s {
	case SchemeNone, SchemeSHA256, SchemeBcrypt, SchemeArgon2id:
		return true
	}
	return false
}
