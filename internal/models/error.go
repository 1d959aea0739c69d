package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Login refusals. Account-not-found is folded into ErrInvalidCredentials
	// at the service layer so callers cannot probe which usernames exist.
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountLocked        = errors.New("account is temporarily locked")
	ErrChallengeRequired    = errors.New("challenge required")
	ErrChallengeInvalid     = errors.New("challenge code invalid")
	ErrSecondFactorRequired = errors.New("second factor required")
	ErrSecondFactorInvalid  = errors.New("second factor code invalid")
	ErrRateLimited          = errors.New("rate limit exceeded")
)
