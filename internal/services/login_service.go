package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/mpaterson/bulwark/internal/auth"
	"github.com/mpaterson/bulwark/internal/models"
	"github.com/mpaterson/bulwark/internal/protection"
	pkgauth "github.com/mpaterson/bulwark/pkg/auth"
	pkglogger "github.com/mpaterson/bulwark/pkg/logger"
)

// AccountRepository defines the interface for account data access
type AccountRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	UpdateProtectionState(ctx context.Context, acct *models.Account) error
}

// LockoutNotifier is told when an attempt locks an account, so operators can
// be alerted out of band. Notification failures never affect the attempt.
type LockoutNotifier interface {
	NotifyLockout(ctx context.Context, username string, lockedUntil time.Time)
}

// LoginRequest carries one attempt through the engine.
type LoginRequest struct {
	Username          string
	Password          string
	ChallengeResponse string
	SecondFactorCode  string
	SourceAddress     string
}

// LoginResult carries the outcome back to the transport layer. On refusal
// the error identifies the refusal class and the hint fields here tell the
// caller what to do next.
type LoginResult struct {
	Token string

	// Set on success.
	Username      string
	StrengthLabel string

	// Set when the outcome is a challenge refusal.
	ChallengeCode      string
	ChallengeExpiresAt time.Time

	// Set when the outcome is a lock refusal.
	LockMinutesRemaining int

	// Set when the outcome is a rate-limit refusal.
	RetryAfterSeconds int

	// Set on a second-factor-required refusal for a freshly provisioned
	// account. For the static verifier this is the enrollment code itself;
	// for TOTP it is empty and ProvisioningURL carries the enrollment data.
	EnrollmentSecret string
	ProvisioningURL  string
}

// LoginService coordinates the protection mechanisms around the credential
// check. Which mechanisms run is decided here, from the configured set; the
// guards themselves are mechanism-agnostic.
type LoginService struct {
	repo         AccountRepository
	verifier     *pkgauth.Verifier
	tm           *auth.TokenManager
	audit        *AuditService
	notifier     LockoutNotifier
	timing       *auth.TimingDelay
	activeSet    models.ProtectionSet
	limiter      *protection.SlidingWindowLimiter
	lockout      *protection.LockoutGuard
	challenge    *protection.ChallengeIssuer
	secondFactor protection.SecondFactorVerifier
	locks        *protection.KeyMutex
	logger       *slog.Logger

	rateLimitMax    int
	rateLimitWindow time.Duration

	now func() time.Time
}

// LoginServiceDeps bundles the coordinator's collaborators.
type LoginServiceDeps struct {
	Repo         AccountRepository
	Verifier     *pkgauth.Verifier
	TokenManager *auth.TokenManager
	Audit        *AuditService
	Notifier     LockoutNotifier
	Timing       *auth.TimingDelay
	ActiveSet    models.ProtectionSet
	Limiter      *protection.SlidingWindowLimiter
	Lockout      *protection.LockoutGuard
	Challenge    *protection.ChallengeIssuer
	SecondFactor protection.SecondFactorVerifier
	Logger       *slog.Logger

	RateLimitMax    int
	RateLimitWindow time.Duration
}

// NewLoginService creates a new LoginService
func NewLoginService(deps LoginServiceDeps) *LoginService {
	return &LoginService{
		repo:            deps.Repo,
		verifier:        deps.Verifier,
		tm:              deps.TokenManager,
		audit:           deps.Audit,
		notifier:        deps.Notifier,
		timing:          deps.Timing,
		activeSet:       deps.ActiveSet,
		limiter:         deps.Limiter,
		lockout:         deps.Lockout,
		challenge:       deps.Challenge,
		secondFactor:    deps.SecondFactor,
		locks:           protection.NewKeyMutex(),
		logger:          deps.Logger,
		rateLimitMax:    deps.RateLimitMax,
		rateLimitWindow: deps.RateLimitWindow,
		now:             time.Now,
	}
}

// loginEndpoint keys the rate limiter window for attempts.
const loginEndpoint = "login"

// Attempt runs one login attempt through the active mechanisms in fixed
// order: rate limit, account lookup, lockout, challenge, credential check,
// second factor. Exactly one attempt record is written per call, before the
// outcome is reported. Attempts for the same username are serialized; other
// usernames proceed in parallel.
func (s *LoginService) Attempt(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	start := s.now()
	result := &LoginResult{}

	username := strings.TrimSpace(req.Username)

	if s.activeSet.Has(models.MechanismRateLimiting) {
		d := s.limiter.Admit(req.SourceAddress, loginEndpoint, s.rateLimitMax, s.rateLimitWindow)
		if !d.Allowed {
			result.RetryAfterSeconds = d.RetryAfterSeconds
			return result, s.refuse(ctx, req, start, models.SchemeNone, models.OutcomeRateLimited, models.ErrRateLimited)
		}
	}

	if username == "" {
		return result, s.refuse(ctx, req, start, models.SchemeNone, models.OutcomeInvalidCredentials, models.ErrInvalidCredentials)
	}

	unlock := s.locks.Lock(username)
	defer unlock()

	acct, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Unknown usernames refuse exactly like a wrong password.
			s.logger.Info("login failed: invalid credentials")
			return result, s.refuse(ctx, req, start, models.SchemeNone, models.OutcomeInvalidCredentials, models.ErrInvalidCredentials)
		}
		s.logger.Error("failed to get account by username", slog.Any("error", err))
		return result, s.refuse(ctx, req, start, models.SchemeNone, models.OutcomeInternalError, models.ErrInternalServer)
	}

	dirty := false

	if s.activeSet.Has(models.MechanismLockout) {
		hadLock := acct.LockedUntil != nil
		if s.lockout.IsLocked(acct) {
			result.LockMinutesRemaining = s.lockout.MinutesRemaining(acct)
			return result, s.refuseFor(ctx, req, start, acct, models.OutcomeLocked, models.ErrAccountLocked)
		}
		if hadLock {
			// Expired lock was cleared by the check; persist the reset.
			dirty = true
		}
	} else if acct.LockedUntil != nil {
		// Lock left behind from a run with lockout enabled. Without the
		// mechanism there is nothing to enforce it, so clear it.
		acct.LockedUntil = nil
		dirty = true
	}

	// Reconcile state belonging to inactive mechanisms so a later re-enable
	// starts clean. Idempotent: a second pass finds nothing left to clear.
	if !s.activeSet.Has(models.MechanismLockout) && !s.activeSet.Has(models.MechanismChallenge) {
		if acct.FailedAttempts != 0 {
			acct.FailedAttempts = 0
			dirty = true
		}
		s.challenge.Clear(username)
	}
	if !s.activeSet.Has(models.MechanismSecondFactor) && acct.SecondFactorSecret != nil {
		acct.SecondFactorSecret = nil
		dirty = true
	}

	if s.activeSet.Has(models.MechanismChallenge) && s.challenge.Required(acct) {
		if req.ChallengeResponse == "" {
			ch, err := s.challenge.Issue(username, false)
			if err != nil {
				s.logger.Error("failed to issue challenge", slog.Any("error", err))
				return result, s.refuseFor(ctx, req, start, acct, models.OutcomeInternalError, models.ErrInternalServer)
			}
			s.persist(ctx, acct, dirty)
			result.ChallengeCode = ch.Code
			result.ChallengeExpiresAt = ch.ExpiresAt
			return result, s.refuseFor(ctx, req, start, acct, models.OutcomeChallengeRequired, models.ErrChallengeRequired)
		}

		if !s.challenge.Validate(username, req.ChallengeResponse) {
			// A failed response invalidates nothing; the client retries
			// against a fresh challenge.
			ch, err := s.challenge.Issue(username, true)
			if err != nil {
				s.logger.Error("failed to reissue challenge", slog.Any("error", err))
				return result, s.refuseFor(ctx, req, start, acct, models.OutcomeInternalError, models.ErrInternalServer)
			}
			s.persist(ctx, acct, dirty)
			result.ChallengeCode = ch.Code
			result.ChallengeExpiresAt = ch.ExpiresAt
			return result, s.refuseFor(ctx, req, start, acct, models.OutcomeChallengeInvalid, models.ErrChallengeInvalid)
		}
	}

	if !s.verifier.Verify(req.Password, acct.CredentialHash, acct.CredentialScheme) {
		lockedNow := s.chargeFailure(acct)
		s.persist(ctx, acct, true)

		if lockedNow {
			s.alertLockout(acct)
			result.LockMinutesRemaining = s.lockout.MinutesRemaining(acct)
			return result, s.refuseFor(ctx, req, start, acct, models.OutcomeLocked, models.ErrAccountLocked)
		}
		return result, s.refuseFor(ctx, req, start, acct, models.OutcomeInvalidCredentials, models.ErrInvalidCredentials)
	}

	if s.activeSet.Has(models.MechanismSecondFactor) {
		provisioned, err := s.secondFactor.EnsureProvisioned(acct)
		if err != nil {
			s.logger.Error("failed to provision second factor", slog.Any("error", err))
			return result, s.refuseFor(ctx, req, start, acct, models.OutcomeInternalError, models.ErrInternalServer)
		}
		if provisioned {
			dirty = true
		}

		if req.SecondFactorCode == "" {
			s.persist(ctx, acct, dirty)
			if provisioned {
				s.fillEnrollment(result, acct)
			}
			return result, s.refuseFor(ctx, req, start, acct, models.OutcomeSecondFactorRequired, models.ErrSecondFactorRequired)
		}

		if !s.secondFactor.Validate(acct, req.SecondFactorCode) {
			// The credential already passed, so this is the attempt's one
			// failure charge; the credential path never ran chargeFailure.
			lockedNow := s.chargeFailure(acct)
			s.persist(ctx, acct, true)

			if lockedNow {
				s.alertLockout(acct)
				result.LockMinutesRemaining = s.lockout.MinutesRemaining(acct)
				return result, s.refuseFor(ctx, req, start, acct, models.OutcomeLocked, models.ErrAccountLocked)
			}
			return result, s.refuseFor(ctx, req, start, acct, models.OutcomeSecondFactorInvalid, models.ErrSecondFactorInvalid)
		}
	}

	s.lockout.RecordSuccess(acct)
	s.challenge.Clear(username)
	s.persist(ctx, acct, true)

	token, err := s.tm.GenerateSessionToken(username)
	if err != nil {
		s.logger.Error("failed to generate session token",
			slog.String("username", username), slog.Any("error", err))
		return result, s.refuseFor(ctx, req, start, acct, models.OutcomeInternalError, models.ErrInternalServer)
	}

	s.logger.Info("login succeeded", slog.String("username", pkglogger.SanitizedUsername(username)))
	s.record(ctx, req, start, acct.CredentialScheme, models.OutcomeSuccess)
	s.timing.Wait(true)

	result.Token = token
	result.Username = acct.Username
	result.StrengthLabel = acct.StrengthLabel
	return result, nil
}

// chargeFailure applies one failure to the account. With lockout active the
// guard counts and may lock; with only challenge active the counter still
// advances so the challenge threshold keeps working. In other modes the
// counter carries no meaning and stays put.
func (s *LoginService) chargeFailure(acct *models.Account) bool {
	if s.activeSet.Has(models.MechanismLockout) {
		return s.lockout.RecordFailure(acct)
	}
	if s.activeSet.Has(models.MechanismChallenge) {
		acct.FailedAttempts++
	}
	return false
}

// persist writes the account's mutable defense fields when they changed.
// Persistence failures are logged but do not change the attempt outcome.
func (s *LoginService) persist(ctx context.Context, acct *models.Account, dirty bool) {
	if !dirty {
		return
	}
	if err := s.repo.UpdateProtectionState(ctx, acct); err != nil {
		s.logger.Error("failed to persist protection state",
			slog.String("username", acct.Username), slog.Any("error", err))
	}
}

func (s *LoginService) alertLockout(acct *models.Account) {
	if s.notifier == nil || acct.LockedUntil == nil {
		return
	}
	until := *acct.LockedUntil
	go s.notifier.NotifyLockout(context.Background(), acct.Username, until)
}

func (s *LoginService) fillEnrollment(result *LoginResult, acct *models.Account) {
	if tv, ok := s.secondFactor.(*protection.TOTPVerifier); ok {
		result.ProvisioningURL = tv.ProvisioningURL(acct)
		return
	}
	if acct.SecondFactorSecret != nil {
		result.EnrollmentSecret = *acct.SecondFactorSecret
	}
}

// refuse records the terminal outcome for an attempt that never resolved an
// account, applies the timing delay and hands back the refusal error.
func (s *LoginService) refuse(ctx context.Context, req LoginRequest, start time.Time, scheme models.CredentialScheme, outcome models.Outcome, refusal error) error {
	s.record(ctx, req, start, scheme, outcome)
	s.timing.Wait(false)
	return refusal
}

// refuseFor is refuse for attempts with a resolved account.
func (s *LoginService) refuseFor(ctx context.Context, req LoginRequest, start time.Time, acct *models.Account, outcome models.Outcome, refusal error) error {
	return s.refuse(ctx, req, start, acct.CredentialScheme, outcome, refusal)
}

func (s *LoginService) record(ctx context.Context, req LoginRequest, start time.Time, scheme models.CredentialScheme, outcome models.Outcome) {
	s.audit.RecordAttempt(ctx, &models.AttemptRecord{
		Timestamp:     start,
		Username:      strings.TrimSpace(req.Username),
		Scheme:        scheme,
		ProtectionSet: s.activeSet.String(),
		Outcome:       outcome,
		LatencyMs:     float64(s.now().Sub(start).Microseconds()) / 1000.0,
		SourceAddress: req.SourceAddress,
	})
}
