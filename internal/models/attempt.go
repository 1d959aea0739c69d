package models

import "time"

// Outcome is the terminal result of one login attempt.
type Outcome string

const (
	OutcomeSuccess              Outcome = "success"
	OutcomeInvalidCredentials   Outcome = "invalid_credentials"
	OutcomeLocked               Outcome = "locked"
	OutcomeChallengeRequired    Outcome = "challenge_required"
	OutcomeChallengeInvalid     Outcome = "challenge_invalid"
	OutcomeSecondFactorRequired Outcome = "second_factor_required"
	OutcomeSecondFactorInvalid  Outcome = "second_factor_invalid"
	OutcomeRateLimited          Outcome = "rate_limited"
	OutcomeInternalError        Outcome = "internal_error"
)

// AttemptRecord is the audit row written exactly once per terminal outcome
// of an attempt. Immutable once written.
type AttemptRecord struct {
	ID            string           `db:"id" json:"-"`
	Timestamp     time.Time        `db:"attempted_at" json:"timestamp"`
	Username      string           `db:"username" json:"username"`
	Scheme        CredentialScheme `db:"credential_scheme" json:"credential_scheme"`
	ProtectionSet string           `db:"protections" json:"protection_set"`
	Outcome       Outcome          `db:"outcome" json:"outcome"`
	LatencyMs     float64          `db:"latency_ms" json:"latency_ms"`
	SourceAddress string           `db:"source_address" json:"source_address"`
}

// AttemptStats aggregates attempt outcomes for the stats endpoint.
type AttemptStats struct {
	Total       int64   `json:"total_attempts"`
	Successful  int64   `json:"successful"`
	Failed      int64   `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}
