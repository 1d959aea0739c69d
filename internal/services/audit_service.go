package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mpaterson/bulwark/internal/models"
)

// AttemptLogRepository defines the interface for attempt record persistence
type AttemptLogRepository interface {
	Record(ctx context.Context, rec *models.AttemptRecord) error
	Stats(ctx context.Context) (*models.AttemptStats, error)
	RecentByUsername(ctx context.Context, username string, limit int) ([]*models.AttemptRecord, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditService writes attempt records with a dual-sink pattern: an
// append-only NDJSON file for offline analysis plus the database for
// queries. Sink failures are logged and swallowed; an audit problem must
// never change a login outcome.
type AuditService struct {
	repo   AttemptLogRepository
	logger *slog.Logger

	mu   sync.Mutex
	sink io.Writer // rotating NDJSON file, nil disables the file sink
}

// NewAuditService creates a new AuditService. Pass a nil sink to disable
// the file trail.
func NewAuditService(repo AttemptLogRepository, sink io.Writer, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		sink:   sink,
		logger: logger,
	}
}

// RecordAttempt persists one attempt record to both sinks.
func (s *AuditService) RecordAttempt(ctx context.Context, rec *models.AttemptRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	s.writeFileSink(rec)

	if err := s.repo.Record(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist attempt record",
			slog.String("username", rec.Username),
			slog.String("outcome", string(rec.Outcome)),
			slog.Any("error", err),
		)
	}
}

func (s *AuditService) writeFileSink(rec *models.AttemptRecord) {
	if s.sink == nil {
		return
	}

	line, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("failed to marshal attempt record", slog.Any("error", err))
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	_, err = s.sink.Write(line)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("failed to write attempt record to file sink", slog.Any("error", err))
	}
}

// Stats aggregates attempt outcomes for the stats endpoint.
func (s *AuditService) Stats(ctx context.Context) (*models.AttemptStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to aggregate attempt stats", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return stats, nil
}

// RecentAttempts returns the newest records for one username.
func (s *AuditService) RecentAttempts(ctx context.Context, username string, limit int) ([]*models.AttemptRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	records, err := s.repo.RecentByUsername(ctx, username, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to query recent attempts",
			slog.String("username", username), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return records, nil
}

// PruneOlderThan removes database records past the retention cutoff and
// returns the number removed. The file sink rotates on its own schedule.
func (s *AuditService) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	removed, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to prune attempt records", slog.Any("error", err))
		return 0, err
	}
	return removed, nil
}
