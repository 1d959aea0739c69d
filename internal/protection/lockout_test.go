package protection

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mpaterson/bulwark/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLockoutGuardLocksAtThreshold(t *testing.T) {
	guard := NewLockoutGuard(LockoutConfig{
		MaxFailedAttempts: 5,
		LockoutDuration:   3 * time.Minute,
	}, testLogger())

	acct := &models.Account{Username: "alice"}

	for i := 0; i < 4; i++ {
		locked := guard.RecordFailure(acct)
		assert.False(t, locked, "attempt %d should not lock", i+1)
		assert.Nil(t, acct.LockedUntil)
	}

	locked := guard.RecordFailure(acct)
	assert.True(t, locked)
	assert.Equal(t, 5, acct.FailedAttempts)
	assert.NotNil(t, acct.LockedUntil)
	assert.True(t, guard.IsLocked(acct))
}

func TestLockoutGuardExpiryForgivesFailures(t *testing.T) {
	guard := NewLockoutGuard(LockoutConfig{
		MaxFailedAttempts: 3,
		LockoutDuration:   3 * time.Minute,
	}, testLogger())

	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return current }

	acct := &models.Account{Username: "alice"}
	for i := 0; i < 3; i++ {
		guard.RecordFailure(acct)
	}
	assert.True(t, guard.IsLocked(acct))

	// One second before expiry the lock still holds.
	current = current.Add(3*time.Minute - time.Second)
	assert.True(t, guard.IsLocked(acct))

	// Past expiry, the lock and the counter are both cleared.
	current = current.Add(2 * time.Second)
	assert.False(t, guard.IsLocked(acct))
	assert.Nil(t, acct.LockedUntil)
	assert.Equal(t, 0, acct.FailedAttempts)
}

func TestLockoutGuardRecordSuccessResets(t *testing.T) {
	guard := NewLockoutGuard(LockoutConfig{
		MaxFailedAttempts: 5,
		LockoutDuration:   3 * time.Minute,
	}, testLogger())

	until := time.Now().Add(time.Minute)
	acct := &models.Account{Username: "alice", FailedAttempts: 4, LockedUntil: &until}

	guard.RecordSuccess(acct)

	assert.Equal(t, 0, acct.FailedAttempts)
	assert.Nil(t, acct.LockedUntil)
}

func TestLockoutGuardMinutesRemaining(t *testing.T) {
	guard := NewLockoutGuard(LockoutConfig{
		MaxFailedAttempts: 5,
		LockoutDuration:   3 * time.Minute,
	}, testLogger())

	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return current }

	assert.Equal(t, 0, guard.MinutesRemaining(&models.Account{}))

	until := current.Add(2*time.Minute + 30*time.Second)
	acct := &models.Account{LockedUntil: &until}
	assert.Equal(t, 3, guard.MinutesRemaining(acct))

	// An active lock always reports at least one minute.
	until = current.Add(10 * time.Second)
	assert.Equal(t, 1, guard.MinutesRemaining(acct))

	until = current.Add(-time.Second)
	assert.Equal(t, 0, guard.MinutesRemaining(acct))
}
