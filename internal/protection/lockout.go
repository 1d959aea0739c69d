package protection

import (
	"log/slog"
	"time"

	"github.com/mpaterson/bulwark/internal/models"
)

// LockoutConfig holds the failure threshold and lock duration.
type LockoutConfig struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

// LockoutGuard tracks consecutive credential failures per account and
// enforces a timed lock once the threshold is reached. It mutates the
// in-memory Account; the coordinator persists the fields it changed before
// reporting an outcome, under the account's key lock.
type LockoutGuard struct {
	config LockoutConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewLockoutGuard creates a new LockoutGuard.
func NewLockoutGuard(config LockoutConfig, logger *slog.Logger) *LockoutGuard {
	return &LockoutGuard{
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// IsLocked reports whether the account is currently locked. An expired lock
// is cleared together with the failure counter as a side effect: lock
// expiry forgives prior failures. The caller must persist the account when
// this returns false for a previously locked account.
func (g *LockoutGuard) IsLocked(acct *models.Account) bool {
	if acct.LockedUntil == nil {
		return false
	}

	if g.now().Before(*acct.LockedUntil) {
		return true
	}

	acct.LockedUntil = nil
	acct.FailedAttempts = 0
	g.logger.Info("lockout expired, failure counter reset",
		slog.String("username", acct.Username))
	return false
}

// RecordFailure increments the failure counter and applies the lock when
// the counter reaches the threshold. Returns true if this failure locked
// the account.
func (g *LockoutGuard) RecordFailure(acct *models.Account) bool {
	acct.FailedAttempts++

	if acct.FailedAttempts < g.config.MaxFailedAttempts {
		return false
	}

	lockedUntil := g.now().Add(g.config.LockoutDuration)
	acct.LockedUntil = &lockedUntil
	g.logger.Warn("account locked",
		slog.String("username", acct.Username),
		slog.Int("failed_attempts", acct.FailedAttempts),
		slog.Duration("lockout_duration", g.config.LockoutDuration))
	return true
}

// RecordSuccess resets the failure counter and clears any lock.
func (g *LockoutGuard) RecordSuccess(acct *models.Account) {
	acct.FailedAttempts = 0
	acct.LockedUntil = nil
}

// MinutesRemaining returns the whole minutes until the lock expires,
// rounded up so a caller is never told zero for an active lock.
func (g *LockoutGuard) MinutesRemaining(acct *models.Account) int {
	if acct.LockedUntil == nil {
		return 0
	}
	remaining := acct.LockedUntil.Sub(g.now())
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Minutes()) + 1
}
