package services

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mpaterson/bulwark/internal/models"
)

// MockAccountRepository implements AccountRepository for testing
type MockAccountRepository struct {
	GetByUsernameFunc         func(ctx context.Context, username string) (*models.Account, error)
	UpdateProtectionStateFunc func(ctx context.Context, acct *models.Account) error

	// Updates captures every persisted state snapshot when no func override
	// is set.
	Updates []models.Account
}

func (m *MockAccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) UpdateProtectionState(ctx context.Context, acct *models.Account) error {
	if m.UpdateProtectionStateFunc != nil {
		return m.UpdateProtectionStateFunc(ctx, acct)
	}
	m.Updates = append(m.Updates, *acct)
	return nil
}

// MockAttemptLogRepository implements AttemptLogRepository for testing
type MockAttemptLogRepository struct {
	RecordFunc          func(ctx context.Context, rec *models.AttemptRecord) error
	StatsFunc           func(ctx context.Context) (*models.AttemptStats, error)
	RecentFunc          func(ctx context.Context, username string, limit int) ([]*models.AttemptRecord, error)
	DeleteOlderThanFunc func(ctx context.Context, cutoff time.Time) (int64, error)

	mu       sync.Mutex
	Recorded []*models.AttemptRecord
}

func (m *MockAttemptLogRepository) Record(ctx context.Context, rec *models.AttemptRecord) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Recorded = append(m.Recorded, rec)
	return nil
}

func (m *MockAttemptLogRepository) Stats(ctx context.Context) (*models.AttemptStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}
	return &models.AttemptStats{}, nil
}

func (m *MockAttemptLogRepository) RecentByUsername(ctx context.Context, username string, limit int) ([]*models.AttemptRecord, error) {
	if m.RecentFunc != nil {
		return m.RecentFunc(ctx, username, limit)
	}
	return []*models.AttemptRecord{}, nil
}

func (m *MockAttemptLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteOlderThanFunc != nil {
		return m.DeleteOlderThanFunc(ctx, cutoff)
	}
	return 0, nil
}

// Outcomes returns the recorded outcomes in order.
func (m *MockAttemptLogRepository) Outcomes() []models.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	outcomes := make([]models.Outcome, len(m.Recorded))
	for i, rec := range m.Recorded {
		outcomes[i] = rec.Outcome
	}
	return outcomes
}

// MockLockoutNotifier captures lockout notifications for testing
type MockLockoutNotifier struct {
	mu       sync.Mutex
	Notified []string
}

func (m *MockLockoutNotifier) NotifyLockout(ctx context.Context, username string, lockedUntil time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notified = append(m.Notified, username)
}

// NewTestAccount creates an account with the given plaintext credential
func NewTestAccount(username, password string) *models.Account {
	now := time.Now()
	return &models.Account{
		ID:               "acct_" + username,
		Username:         username,
		CredentialHash:   password,
		CredentialScheme: models.SchemeNone,
		StrengthLabel:    "weak",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// NewTestAccountLocked creates an account locked for the given duration
func NewTestAccountLocked(username, password string, d time.Duration) *models.Account {
	acct := NewTestAccount(username, password)
	lockedUntil := time.Now().Add(d)
	acct.LockedUntil = &lockedUntil
	acct.FailedAttempts = 5
	return acct
}

// discardLogger returns a logger that drops everything below error
func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}
