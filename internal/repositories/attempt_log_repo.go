package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mpaterson/bulwark/internal/database"
	"github.com/mpaterson/bulwark/internal/models"
)

// AttemptLogRepository handles database operations for attempt records
type AttemptLogRepository struct {
	db *database.DB
}

// NewAttemptLogRepository creates a new AttemptLogRepository
func NewAttemptLogRepository(db *database.DB) *AttemptLogRepository {
	return &AttemptLogRepository{db: db}
}

// Record stores one attempt record
func (r *AttemptLogRepository) Record(ctx context.Context, rec *models.AttemptRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	query := `
		INSERT INTO attempt_logs (id, attempted_at, username, credential_scheme, protections, outcome, latency_ms, source_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		rec.ID,
		rec.Timestamp,
		rec.Username,
		rec.Scheme,
		rec.ProtectionSet,
		rec.Outcome,
		rec.LatencyMs,
		rec.SourceAddress,
	)

	return err
}

// Stats aggregates attempt counts over the whole table
func (r *AttemptLogRepository) Stats(ctx context.Context) (*models.AttemptStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE outcome = $1)
		FROM attempt_logs
	`

	var stats models.AttemptStats
	err := r.db.Pool.QueryRow(ctx, query, models.OutcomeSuccess).Scan(&stats.Total, &stats.Successful)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	stats.Failed = stats.Total - stats.Successful
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}

	return &stats, nil
}

// RecentByUsername returns the newest records for one username
func (r *AttemptLogRepository) RecentByUsername(ctx context.Context, username string, limit int) ([]*models.AttemptRecord, error) {
	query := `
		SELECT id, attempted_at, username, credential_scheme, protections, outcome, latency_ms, source_address
		FROM attempt_logs
		WHERE username = $1
		ORDER BY attempted_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, username, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	records := make([]*models.AttemptRecord, 0)
	for rows.Next() {
		var rec models.AttemptRecord
		err := rows.Scan(
			&rec.ID, &rec.Timestamp, &rec.Username, &rec.Scheme,
			&rec.ProtectionSet, &rec.Outcome, &rec.LatencyMs, &rec.SourceAddress,
		)
		if err != nil {
			return nil, database.MapPostgresError(err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return records, nil
}

// DeleteOlderThan removes attempt records past the retention cutoff
func (r *AttemptLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM attempt_logs WHERE attempted_at < $1`

	result, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
