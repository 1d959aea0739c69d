package background

import (
	"context"
	"log/slog"
	"time"
)

// AttemptPruner removes attempt records past the retention cutoff
type AttemptPruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ChallengePruner drops expired challenge codes
type ChallengePruner interface {
	PruneExpired() int
}

// WindowPruner drops rate-limiter windows with no recent activity
type WindowPruner interface {
	PruneStale(maxAge time.Duration) int
}

// Rate-limit windows idle this long carry no live state worth keeping.
const staleWindowAge = 10 * time.Minute

// CleanupManager periodically prunes the engine's accumulated state: old
// attempt records, expired challenges and idle rate-limit windows
type CleanupManager struct {
	attempts   AttemptPruner
	challenges ChallengePruner
	windows    WindowPruner
	retention  time.Duration
	logger     *slog.Logger
	interval   time.Duration
	stopCh     chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	attempts AttemptPruner,
	challenges ChallengePruner,
	windows WindowPruner,
	retention time.Duration,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		attempts:   attempts,
		challenges: challenges,
		windows:    windows,
		retention:  retention,
		logger:     logger,
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cm.logger.Info("starting protection state cleanup")

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-cm.retention)
	rowsDeleted, err := cm.attempts.PruneOlderThan(cleanupCtx, cutoff)
	if err != nil {
		cm.logger.Error("failed to prune attempt records", slog.Any("error", err))
	}

	challengesDropped := cm.challenges.PruneExpired()
	windowsDropped := cm.windows.PruneStale(staleWindowAge)

	if rowsDeleted > 0 || challengesDropped > 0 || windowsDropped > 0 {
		cm.logger.Info("protection state cleanup completed",
			slog.Int64("attempt_rows_deleted", rowsDeleted),
			slog.Int("challenges_dropped", challengesDropped),
			slog.Int("rate_windows_dropped", windowsDropped),
		)
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
