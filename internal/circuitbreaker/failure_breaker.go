package circuitbreaker

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// FailureBreaker halts all order submission once consecutive execution
// failures cross a threshold within a trailing window, the process-level
// failure tripwire. It is deliberately separate from
// BalanceCircuitBreaker: that one reacts to wallet balance, this one reacts
// to the Execution Engine's own outcomes, and the two must never share a
// lock or a back-reference to each other.
type FailureBreaker struct {
	tripped atomic.Bool

	maxFailures int
	window      time.Duration
	cooldown    time.Duration
	logger      *zap.Logger

	mu        sync.Mutex
	failures  []time.Time
	trippedAt time.Time
}

// FailureBreakerConfig configures a FailureBreaker.
type FailureBreakerConfig struct {
	MaxFailures int
	Window      time.Duration
	Cooldown    time.Duration
	Logger      *zap.Logger
}

// NewFailureBreaker constructs a FailureBreaker, starting untripped.
func NewFailureBreaker(cfg FailureBreakerConfig) *FailureBreaker {
	return &FailureBreaker{
		maxFailures: cfg.MaxFailures,
		window:      cfg.Window,
		cooldown:    cfg.Cooldown,
		logger:      cfg.Logger,
	}
}

// IsEnabled reports whether submission may proceed, auto-clearing a trip
// once the cooldown has elapsed.
func (b *FailureBreaker) IsEnabled() bool {
	if !b.tripped.Load() {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if time.Since(b.trippedAt) >= b.cooldown {
		b.tripped.Store(false)
		b.failures = nil
		CircuitBreakerStateChanges.Inc()
		b.logger.Info("execution-circuit-breaker-cooldown-elapsed")
		return true
	}
	return false
}

// RecordFailure records an execution failure and trips the breaker once the
// number of failures within the trailing window reaches MaxFailures.
func (b *FailureBreaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = append(kept, now)

	if len(b.failures) >= b.maxFailures && !b.tripped.Load() {
		b.tripped.Store(true)
		b.trippedAt = now
		CircuitBreakerStateChanges.Inc()
		b.logger.Warn("execution-circuit-breaker-tripped",
			zap.Int("failures-in-window", len(b.failures)),
			zap.Duration("window", b.window),
			zap.Duration("cooldown", b.cooldown))
	}
}

// RecordSuccess clears the failure streak: a successful execution means
// whatever was going wrong has stopped happening.
func (b *FailureBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = nil
}
