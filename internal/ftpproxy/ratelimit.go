// ratelimit.go guards the remote endpoint against connect storms.
//
// Every connection key dials the same configured endpoint, so limits are
// kept per endpoint address rather than per key. Two limits apply:
//
//  1. Sliding window: at most maxAttempts dials per minute.
//  2. Consecutive-failure block: after 5 failed dials in a row the endpoint
//     is blocked for 30s, doubling on each further failure up to 5 minutes.
//     A successful dial clears the failure count and the block.

package ftpproxy

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	connectWindow           = time.Minute
	defaultConnectAttempts  = 30
	connectFailureThreshold = 5
	connectInitialBlock     = 30 * time.Second
	connectMaxBlock         = 5 * time.Minute
)

// RateLimitError is returned by Connect when the limiter refuses a dial.
// It unwraps to ErrRateLimited.
type RateLimitError struct {
	Endpoint   string
	Reason     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("connect to %s rate limited: %s (retry after %s)",
		e.Endpoint, e.Reason, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

type endpointRate struct {
	attempts []time.Time

	failures      int
	blockedUntil  time.Time
	blockDuration time.Duration
}

type connectLimiter struct {
	mu          sync.Mutex
	maxAttempts int
	states      map[string]*endpointRate
	now         func() time.Time
	log         *zap.Logger
}

func newConnectLimiter(maxAttempts int, now func() time.Time, log *zap.Logger) *connectLimiter {
	if maxAttempts <= 0 {
		maxAttempts = defaultConnectAttempts
	}
	return &connectLimiter{
		maxAttempts: maxAttempts,
		states:      make(map[string]*endpointRate),
		now:         now,
		log:         log,
	}
}

func (l *connectLimiter) getOrCreate(endpoint string) *endpointRate {
	st, ok := l.states[endpoint]
	if !ok {
		st = &endpointRate{}
		l.states[endpoint] = st
	}
	return st
}

// allow records an attempt for endpoint, or returns a *RateLimitError when
// the endpoint is blocked or its window is full.
func (l *connectLimiter) allow(endpoint string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st := l.getOrCreate(endpoint)

	if now.Before(st.blockedUntil) {
		return &RateLimitError{
			Endpoint:   endpoint,
			Reason:     fmt.Sprintf("blocked after %d consecutive failures", st.failures),
			RetryAfter: st.blockedUntil.Sub(now),
		}
	}

	cutoff := now.Add(-connectWindow)
	recent := st.attempts[:0]
	for _, t := range st.attempts {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	st.attempts = recent

	if len(st.attempts) >= l.maxAttempts {
		retryAfter := st.attempts[0].Add(connectWindow).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &RateLimitError{
			Endpoint:   endpoint,
			Reason:     fmt.Sprintf("exceeded %d attempts in %s", l.maxAttempts, connectWindow),
			RetryAfter: retryAfter,
		}
	}

	st.attempts = append(st.attempts, now)
	return nil
}

func (l *connectLimiter) recordSuccess(endpoint string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if st, ok := l.states[endpoint]; ok {
		st.failures = 0
		st.blockedUntil = time.Time{}
		st.blockDuration = 0
	}
}

func (l *connectLimiter) recordFailure(endpoint string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.getOrCreate(endpoint)
	st.failures++
	if st.failures < connectFailureThreshold {
		return
	}
	if st.blockDuration == 0 {
		st.blockDuration = connectInitialBlock
	} else {
		st.blockDuration = min(st.blockDuration*2, connectMaxBlock)
	}
	st.blockedUntil = l.now().Add(st.blockDuration)
	l.log.Warn("ftp endpoint blocked after repeated connect failures",
		zap.String("addr", endpoint),
		zap.Int("failures", st.failures),
		zap.Duration("block", st.blockDuration))
}

// snapshot returns the failure count, block deadline and attempts in the
// current window for endpoint.
func (l *connectLimiter) snapshot(endpoint string) (failures int, blockedUntil time.Time, attempts int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[endpoint]
	if !ok {
		return 0, time.Time{}, 0
	}
	cutoff := l.now().Add(-connectWindow)
	for _, t := range st.attempts {
		if t.After(cutoff) {
			attempts++
		}
	}
	return st.failures, st.blockedUntil, attempts
}
