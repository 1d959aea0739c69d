package protection

import (
	"hash/fnv"
	"log/slog"
	"math"
	"sync"
	"time"
)

const rateLimiterShards = 32

// Decision is the rate limiter's verdict for one request.
type Decision struct {
	Allowed           bool
	RetryAfterSeconds int
}

type windowKey struct {
	source   string
	endpoint string
}

type limiterShard struct {
	mu      sync.Mutex
	windows map[windowKey][]time.Time
}

// SlidingWindowLimiter caps attempts per (source, endpoint) inside a
// rolling window. State is sharded by key hash so traffic from different
// sources does not contend on one lock; within a shard, prune-count-append
// runs as a single critical section. Pruning is lazy: stale timestamps are
// dropped on the next access, never by a timer.
type SlidingWindowLimiter struct {
	shards [rateLimiterShards]limiterShard
	logger *slog.Logger
	now    func() time.Time
}

// NewSlidingWindowLimiter creates an empty limiter.
func NewSlidingWindowLimiter(logger *slog.Logger) *SlidingWindowLimiter {
	l := &SlidingWindowLimiter{
		logger: logger,
		now:    time.Now,
	}
	for i := range l.shards {
		l.shards[i].windows = make(map[windowKey][]time.Time)
	}
	return l
}

func (l *SlidingWindowLimiter) shard(key windowKey) *limiterShard {
	h := fnv.New32a()
	h.Write([]byte(key.source))
	h.Write([]byte{0})
	h.Write([]byte(key.endpoint))
	return &l.shards[h.Sum32()%rateLimiterShards]
}

// Admit decides whether one more request from source against endpoint fits
// inside the window. When refused, RetryAfterSeconds counts from the oldest
// retained timestamp to the window edge, rounded up.
func (l *SlidingWindowLimiter) Admit(source, endpoint string, maxPerWindow int, window time.Duration) Decision {
	key := windowKey{source: source, endpoint: endpoint}
	s := l.shard(key)
	now := l.now()
	cutoff := now.Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	timestamps := s.windows[key]

	// Drop everything older than the trailing window. Timestamps are
	// append-ordered, so the retained suffix starts at the first fresh one.
	keep := 0
	for keep < len(timestamps) && !timestamps[keep].After(cutoff) {
		keep++
	}
	timestamps = timestamps[keep:]

	if len(timestamps) >= maxPerWindow {
		s.windows[key] = timestamps

		oldest := timestamps[0]
		retryAfter := int(math.Ceil(oldest.Add(window).Sub(now).Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}

		l.logger.Warn("rate limit exceeded",
			slog.String("source", source),
			slog.String("endpoint", endpoint),
			slog.Int("attempts_in_window", len(timestamps)),
			slog.Int("retry_after_seconds", retryAfter))

		return Decision{Allowed: false, RetryAfterSeconds: retryAfter}
	}

	s.windows[key] = append(timestamps, now)
	return Decision{Allowed: true}
}

// PruneStale drops windows whose every timestamp is older than maxAge and
// returns the number of keys removed. Called from the background cleanup
// loop to keep the table from accumulating one entry per attacker ever
// seen.
func (l *SlidingWindowLimiter) PruneStale(maxAge time.Duration) int {
	cutoff := l.now().Add(-maxAge)
	removed := 0

	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for key, timestamps := range s.windows {
			if len(timestamps) == 0 || !timestamps[len(timestamps)-1].After(cutoff) {
				delete(s.windows, key)
				removed++
			}
		}
		s.mu.Unlock()
	}

	return removed
}
