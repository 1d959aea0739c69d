package protection

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mpaterson/bulwark/internal/models"
)

// Challenge code charset excludes ambiguous glyphs (0/O, 1/I/L) so the
// rendered puzzle stays solvable.
const challengeCharset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// Challenge is a single-use, expiring code bound to one account. At most
// one challenge is active per account; issuing a new one replaces it.
type Challenge struct {
	Code      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ChallengeStore is the keyed table of outstanding challenges. Injectable
// so tests can seed and inspect state deterministically. Implementations
// must serialize access per key.
type ChallengeStore interface {
	Get(username string) (Challenge, bool)
	Put(username string, ch Challenge)
	Delete(username string)
	// DeleteExpired removes challenges whose expiry is before now and
	// returns how many were removed.
	DeleteExpired(now time.Time) int
}

// MemoryChallengeStore is the default ChallengeStore. Challenges are never
// persisted durably; a restart simply reissues them.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
}

// NewMemoryChallengeStore creates an empty in-memory store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{challenges: make(map[string]Challenge)}
}

func (s *MemoryChallengeStore) Get(username string) (Challenge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[username]
	return ch, ok
}

func (s *MemoryChallengeStore) Put(username string, ch Challenge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[username] = ch
}

func (s *MemoryChallengeStore) Delete(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, username)
}

func (s *MemoryChallengeStore) DeleteExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for username, ch := range s.challenges {
		if now.After(ch.ExpiresAt) {
			delete(s.challenges, username)
			removed++
		}
	}
	return removed
}

// ChallengeConfig holds challenge issuing parameters.
type ChallengeConfig struct {
	FailureThreshold int
	CodeLength       int
	TTL              time.Duration
}

// ChallengeIssuer owns the lifecycle of challenge codes. Rendering the code
// into a solvable puzzle is the transport layer's concern.
type ChallengeIssuer struct {
	store  ChallengeStore
	config ChallengeConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewChallengeIssuer creates a new ChallengeIssuer backed by store.
func NewChallengeIssuer(store ChallengeStore, config ChallengeConfig, logger *slog.Logger) *ChallengeIssuer {
	return &ChallengeIssuer{
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Required reports whether the account has accumulated enough failures to
// need a challenge. Whether the challenge mechanism is active at all is the
// coordinator's decision.
func (ci *ChallengeIssuer) Required(acct *models.Account) bool {
	return acct.FailedAttempts >= ci.config.FailureThreshold
}

// Issue returns the account's current unexpired challenge, or generates a
// fresh one if none exists, the existing one expired, or forceNew is set.
// A new challenge always replaces the prior one.
func (ci *ChallengeIssuer) Issue(username string, forceNew bool) (Challenge, error) {
	if !forceNew {
		if ch, ok := ci.store.Get(username); ok && ci.now().Before(ch.ExpiresAt) {
			return ch, nil
		}
	}

	code, err := randomCode(challengeCharset, ci.config.CodeLength)
	if err != nil {
		return Challenge{}, fmt.Errorf("failed to generate challenge code: %w", err)
	}

	now := ci.now()
	ch := Challenge{
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(ci.config.TTL),
	}
	ci.store.Put(username, ch)

	ci.logger.Info("challenge issued",
		slog.String("username", username),
		slog.Time("expires_at", ch.ExpiresAt))
	return ch, nil
}

// Validate checks a submitted code against the account's outstanding
// challenge, case-insensitively. Missing, expired, and mismatched codes all
// fail; an expired challenge is dropped on the spot. A correct code is
// consumed: it cannot validate twice.
func (ci *ChallengeIssuer) Validate(username, submitted string) bool {
	if submitted == "" {
		return false
	}

	ch, ok := ci.store.Get(username)
	if !ok {
		return false
	}

	if ci.now().After(ch.ExpiresAt) {
		ci.store.Delete(username)
		return false
	}

	if !strings.EqualFold(strings.TrimSpace(submitted), ch.Code) {
		return false
	}

	ci.store.Delete(username)
	return true
}

// Clear drops any outstanding challenge for the account.
func (ci *ChallengeIssuer) Clear(username string) {
	ci.store.Delete(username)
}

// PruneExpired removes expired challenges and returns the count removed.
func (ci *ChallengeIssuer) PruneExpired() int {
	return ci.store.DeleteExpired(ci.now())
}

// randomCode draws length characters from charset using crypto/rand.
func randomCode(charset string, length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, length)
	for i, b := range buf {
		code[i] = charset[int(b)%len(charset)]
	}
	return string(code), nil
}
