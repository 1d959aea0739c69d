package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpaterson/bulwark/internal/database"
	"github.com/mpaterson/bulwark/internal/models"
)

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

// rowScanner interface for scanning account rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAccountRow handles nullable fields and populates an Account model from a database row
func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var acct models.Account
	var lockedUntil *time.Time
	var secondFactorSecret *string

	err := scanner.Scan(
		&acct.ID, &acct.Username, &acct.CredentialHash, &acct.CredentialScheme,
		&acct.StrengthLabel, &acct.FailedAttempts, &lockedUntil, &secondFactorSecret,
		&acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	acct.LockedUntil = lockedUntil
	acct.SecondFactorSecret = secondFactorSecret

	return &acct, nil
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `
		SELECT id, username, credential_hash, credential_scheme, strength_label, failed_attempts, locked_until, second_factor_secret, created_at, updated_at
		FROM accounts WHERE username = $1
	`

	return scanAccountRow(r.pool.QueryRow(ctx, query, username))
}

func (r *AccountRepository) Create(ctx context.Context, acct *models.Account) (*models.Account, error) {
	acct.ID = uuid.New().String()

	now := time.Now()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	if acct.CredentialScheme == "" {
		acct.CredentialScheme = models.SchemeNone
	}

	query := `
		INSERT INTO accounts (id, username, credential_hash, credential_scheme, strength_label, failed_attempts, locked_until, second_factor_secret, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, username, credential_hash, credential_scheme, strength_label, failed_attempts, locked_until, second_factor_secret, created_at, updated_at
	`

	return scanAccountRow(r.pool.QueryRow(ctx, query,
		acct.ID, acct.Username, acct.CredentialHash, acct.CredentialScheme,
		acct.StrengthLabel, acct.FailedAttempts, acct.LockedUntil, acct.SecondFactorSecret,
		acct.CreatedAt, acct.UpdatedAt,
	))
}

// UpdateProtectionState persists the mutable defense fields after an attempt.
func (r *AccountRepository) UpdateProtectionState(ctx context.Context, acct *models.Account) error {
	acct.UpdatedAt = time.Now()

	query := `
		UPDATE accounts SET failed_attempts = $1, locked_until = $2, second_factor_secret = $3, updated_at = $4
		WHERE id = $5
	`

	result, err := r.pool.Exec(ctx, query,
		acct.FailedAttempts, acct.LockedUntil, acct.SecondFactorSecret, acct.UpdatedAt, acct.ID,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM accounts WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
