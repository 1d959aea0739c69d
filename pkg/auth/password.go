package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"github.com/mpaterson/bulwark/internal/models"
)

const (
	BcryptCost       = 12
	Argon2Time       = 1
	Argon2MemoryKiB  = 64 * 1024
	Argon2Threads    = 1
	Argon2KeyLength  = 32
	Argon2SaltLength = 16
	sha256SaltLength = 16
)

// Verifier hashes and verifies credentials under the configured scheme.
// The pepper is a server-side secret appended to the password before
// hashing for every scheme except "none".
type Verifier struct {
	pepper string
}

// NewVerifier creates a credential verifier with the given pepper.
func NewVerifier(pepper string) *Verifier {
	return &Verifier{pepper: pepper}
}

// Hash produces a stored-hash string for the password under the scheme.
func (v *Verifier) Hash(password string, scheme models.CredentialScheme) (string, error) {
	switch scheme {
	case models.SchemeNone:
		return password, nil

	case models.SchemeSHA256:
		salt := make([]byte, sha256SaltLength)
		if _, err := rand.Read(salt); err != nil {
			return "", fmt.Errorf("failed to generate salt: %w", err)
		}
		saltHex := hex.EncodeToString(salt)
		sum := sha256.Sum256([]byte(password + saltHex + v.pepper))
		return hex.EncodeToString(sum[:]) + ":" + saltHex, nil

	case models.SchemeBcrypt:
		hashed, err := bcrypt.GenerateFromPassword([]byte(password+v.pepper), BcryptCost)
		if err != nil {
			return "", fmt.Errorf("failed to hash password: %w", err)
		}
		return string(hashed), nil

	case models.SchemeArgon2id:
		salt := make([]byte, Argon2SaltLength)
		if _, err := rand.Read(salt); err != nil {
			return "", fmt.Errorf("failed to generate salt: %w", err)
		}
		key := argon2.IDKey([]byte(password+v.pepper), salt, Argon2Time, Argon2MemoryKiB, Argon2Threads, Argon2KeyLength)
		return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
			argon2.Version, Argon2MemoryKiB, Argon2Time, Argon2Threads,
			base64.RawStdEncoding.EncodeToString(salt),
			base64.RawStdEncoding.EncodeToString(key),
		), nil

	default:
		return "", fmt.Errorf("unknown credential scheme: %q", scheme)
	}
}

// Verify reports whether the submitted password matches the stored hash
// under the scheme. Malformed stored hashes verify as false, never as an
// error: a corrupt row must read as a failed credential, not a 500.
func (v *Verifier) Verify(password, storedHash string, scheme models.CredentialScheme) bool {
	switch scheme {
	case models.SchemeNone:
		return subtle.ConstantTimeCompare([]byte(password), []byte(storedHash)) == 1

	case models.SchemeSHA256:
		hashed, saltHex, ok := strings.Cut(storedHash, ":")
		if !ok {
			return false
		}
		sum := sha256.Sum256([]byte(password + saltHex + v.pepper))
		return subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(hashed)) == 1

	case models.SchemeBcrypt:
		return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password+v.pepper)) == nil

	case models.SchemeArgon2id:
		return v.verifyArgon2id(password, storedHash)

	default:
		return false
	}
}

// verifyArgon2id parses a PHC-format argon2id hash and recomputes the key
// with the stored parameters, so hashes survive parameter changes.
func (v *Verifier) verifyArgon2id(password, storedHash string) bool {
	parts := strings.Split(storedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	key := argon2.IDKey([]byte(password+v.pepper), salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1
}

// StrengthLabel classifies a plaintext password for the login profile.
// Short or all-digit passwords are weak; long ones are strong.
func StrengthLabel(password string) string {
	if len(password) <= 6 || isAllDigits(password) {
		return "weak"
	}
	if len(password) > 12 {
		return "strong"
	}
	return "medium"
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
