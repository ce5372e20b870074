// Package reliability wraps a single backend invocation with retry, backoff,
// and a per-backend circuit breaker, and owns the safety rule for when a
// retry is permitted at all.
package reliability

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relaycore/inference-gateway/internal/config"
	"github.com/relaycore/inference-gateway/internal/gwerr"
)

// Breaker is the per-backend circuit breaker.
//
// Transitions: closed → (threshold consecutive transient failures) open until
// a deadline → (deadline elapsed) half-open probe → success closes, failure
// reopens. Caller cancellation is recorded as neither success nor failure.
type Breaker struct {
	threshold int
	openFor   time.Duration

	mu        sync.Mutex
	failures  int
	openUntil time.Time
	halfOpen  bool
	probeAt   time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(threshold int, openFor time.Duration) *Breaker {
	return &Breaker{threshold: threshold, openFor: openFor}
}

// Allow reports whether a dispatch may proceed. When the open deadline has
// elapsed it admits a single half-open probe; further dispatch is rejected
// until the probe resolves.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.halfOpen {
		// A probe that never resolves (caller cancellation) releases the
		// slot after another open interval.
		if time.Since(b.probeAt) < b.openFor {
			return false
		}
		b.probeAt = time.Now()
		return true
	}
	if b.openUntil.IsZero() {
		return true
	}
	if time.Now().Before(b.openUntil) {
		return false
	}
	// Deadline elapsed: probe. Any failure while half-open reopens.
	b.openUntil = time.Time{}
	b.halfOpen = true
	b.probeAt = time.Now()
	return true
}

// RecordSuccess closes the breaker and resets the failure streak.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.halfOpen = false
	b.openUntil = time.Time{}
}

// RecordTransientFailure extends the failure streak and opens the breaker at
// the threshold, or immediately when a half-open probe fails.
func (b *Breaker) RecordTransientFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.halfOpen || b.failures >= b.threshold {
		b.openUntil = time.Now().Add(b.openFor)
		b.halfOpen = false
		b.failures = b.threshold
	}
}

// Snapshot returns the current streak and open deadline for telemetry.
func (b *Breaker) Snapshot() (failures int, openUntil time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures, b.openUntil
}

// BreakerRegistry holds one breaker per backend id. Built once at gateway
// construction; breaker state is the only mutable shared state here.
type BreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker

	threshold int
	openFor   time.Duration
}

// NewBreakerRegistry creates a registry applying the configured thresholds to
// every backend.
func NewBreakerRegistry(cfg config.ReliabilityConfig) *BreakerRegistry {
	return &BreakerRegistry{
		breakers:  make(map[string]*Breaker),
		threshold: cfg.BreakerFailureThreshold,
		openFor:   cfg.BreakerOpenDuration.Std(),
	}
}

// For returns the breaker for a backend, creating it on first use.
func (r *BreakerRegistry) For(backendID string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[backendID]
	r.mu.RUnlock()
	if ok {
		return b
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[backendID]; ok {
		return b
	}
	b = NewBreaker(r.threshold, r.openFor)
	r.breakers[backendID] = b
	return b
}

// Check raises circuit_open without consulting the adapter when the
// backend's breaker rejects dispatch.
func (r *BreakerRegistry) Check(backendID string) error {
	if r.For(backendID).Allow() {
		return nil
	}
	log.Debug().Str("backend", backendID).Msg("circuit open, rejecting dispatch")
	return gwerr.Newf(gwerr.KindCircuitOpen, "backend %q circuit is open", backendID).
		WithBackend(backendID)
}
