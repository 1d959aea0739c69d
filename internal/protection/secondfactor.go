package protection

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/mpaterson/bulwark/internal/models"
)

const secondFactorCodeLength = 6

// SecondFactorVerifier issues and validates the per-account second-factor
// code. Two implementations exist: the static-code verifier (default) and
// a TOTP verifier for authenticator apps. Neither counts failures; the
// coordinator decides what a failed code costs.
type SecondFactorVerifier interface {
	// EnsureProvisioned generates and sets a secret on the account if it
	// has none. Returns true if the account was modified; the caller must
	// persist it.
	EnsureProvisioned(acct *models.Account) (bool, error)
	// Validate checks a submitted code against the account's secret.
	Validate(acct *models.Account, submitted string) bool
}

// StaticCodeVerifier models first-use enrollment with a fixed numeric code:
// the secret IS the code. Validation is a trimmed exact match.
type StaticCodeVerifier struct {
	logger *slog.Logger
}

// NewStaticCodeVerifier creates the default second-factor verifier.
func NewStaticCodeVerifier(logger *slog.Logger) *StaticCodeVerifier {
	return &StaticCodeVerifier{logger: logger}
}

func (v *StaticCodeVerifier) EnsureProvisioned(acct *models.Account) (bool, error) {
	if acct.SecondFactorSecret != nil && *acct.SecondFactorSecret != "" {
		return false, nil
	}

	code, err := randomCode("0123456789", secondFactorCodeLength)
	if err != nil {
		return false, fmt.Errorf("failed to generate second-factor code: %w", err)
	}

	acct.SecondFactorSecret = &code
	v.logger.Info("second factor provisioned", slog.String("username", acct.Username))
	return true, nil
}

func (v *StaticCodeVerifier) Validate(acct *models.Account, submitted string) bool {
	if acct.SecondFactorSecret == nil || *acct.SecondFactorSecret == "" {
		return false
	}

	expected := strings.TrimSpace(*acct.SecondFactorSecret)
	got := strings.TrimSpace(submitted)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// TOTPVerifier validates rolling authenticator-app codes. The stored secret
// is the base32 TOTP seed rather than the code itself.
type TOTPVerifier struct {
	issuer string
	logger *slog.Logger
	now    func() time.Time
}

// NewTOTPVerifier creates a TOTP-backed second-factor verifier. The issuer
// names this service in authenticator apps.
func NewTOTPVerifier(issuer string, logger *slog.Logger) *TOTPVerifier {
	return &TOTPVerifier{
		issuer: issuer,
		logger: logger,
		now:    time.Now,
	}
}

func (v *TOTPVerifier) EnsureProvisioned(acct *models.Account) (bool, error) {
	if acct.SecondFactorSecret != nil && *acct.SecondFactorSecret != "" {
		return false, nil
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.issuer,
		AccountName: acct.Username,
		SecretSize:  20,
		Period:      30,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	secret := key.Secret()
	acct.SecondFactorSecret = &secret
	v.logger.Info("totp secret provisioned", slog.String("username", acct.Username))
	return true, nil
}

func (v *TOTPVerifier) Validate(acct *models.Account, submitted string) bool {
	if acct.SecondFactorSecret == nil || *acct.SecondFactorSecret == "" {
		return false
	}

	// ±1 time step for clock drift.
	valid, err := totp.ValidateCustom(strings.TrimSpace(submitted), *acct.SecondFactorSecret, v.now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		v.logger.Error("totp validation error",
			slog.String("username", acct.Username),
			slog.Any("error", err))
		return false
	}
	return valid
}

// ProvisioningURL builds the otpauth:// URL an authenticator app enrolls
// from. Only meaningful for TOTP-provisioned secrets.
func (v *TOTPVerifier) ProvisioningURL(acct *models.Account) string {
	if acct.SecondFactorSecret == nil {
		return ""
	}
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&period=30&digits=6",
		v.issuer, acct.Username, *acct.SecondFactorSecret, v.issuer)
}
