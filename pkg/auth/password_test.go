package auth

import (
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"

	"github.com/mpaterson/bulwark/internal/models"
)

func TestVerifierRoundTrip(t *testing.T) {
	v := NewVerifier("test-pepper")

	schemes := []models.CredentialScheme{
		models.SchemeNone,
		models.SchemeSHA256,
		models.SchemeBcrypt,
		models.SchemeArgon2id,
	}

	for _, scheme := range schemes {
		t.Run(string(scheme), func(t *testing.T) {
			hash, err := v.Hash("correct horse", scheme)
			require.NoError(t, err)

			assert.True(t, v.Verify("correct horse", hash, scheme))
			assert.False(t, v.Verify("wrong horse", hash, scheme))
		})
	}
}

func TestVerifierPepperMatters(t *testing.T) {
	v1 := NewVerifier("pepper-one")
	v2 := NewVerifier("pepper-two")

	hash, err := v1.Hash("password123", models.SchemeSHA256)
	require.NoError(t, err)

	assert.True(t, v1.Verify("password123", hash, models.SchemeSHA256))
	assert.False(t, v2.Verify("password123", hash, models.SchemeSHA256))
}

func TestVerifierMalformedHashes(t *testing.T) {
	v := NewVerifier("test-pepper")

	tests := []struct {
		name   string
		scheme models.CredentialScheme
		stored string
	}{
		{"sha256 missing salt separator", models.SchemeSHA256, "deadbeef"},
		{"bcrypt garbage", models.SchemeBcrypt, "not-a-bcrypt-hash"},
		{"argon2id wrong variant", models.SchemeArgon2id, "$argon2i$v=19$m=65536,t=1,p=1$c2FsdA$aGFzaA"},
		{"argon2id truncated", models.SchemeArgon2id, "$argon2id$v=19"},
		{"argon2id bad base64", models.SchemeArgon2id, "$argon2id$v=19$m=65536,t=1,p=1$!!$!!"},
		{"unknown scheme", models.CredentialScheme("md5"), "whatever"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, v.Verify("password", tt.stored, tt.scheme))
		})
	}
}

func TestVerifierArgon2idUsesStoredParams(t *testing.T) {
	v := NewVerifier("test-pepper")

	// A hash produced with non-default cost parameters must still verify,
	// because verification reads the parameters out of the stored hash.
	salt := []byte("0123456789abcdef")
	key := argon2.IDKey([]byte("password123"+"test-pepper"), salt, 2, 32*1024, 2, 32)
	stored := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, 32*1024, 2, 2,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)

	assert.True(t, v.Verify("password123", stored, models.SchemeArgon2id))
	assert.False(t, v.Verify("password124", stored, models.SchemeArgon2id))
}

func TestStrengthLabel(t *testing.T) {
	tests := []struct {
		password string
		want     string
	}{
		{"abc", "weak"},
		{"123456789012345", "weak"}, // all digits, regardless of length
		{"short1", "weak"},
		{"mediumpw", "medium"},
		{"exactly12chr", "medium"},
		{"averylongpassword", "strong"},
		{"", "weak"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StrengthLabel(tt.password), "password %q", tt.password)
	}
}
