// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined
// here. This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// ROUTING
// =============================================================================

// DefaultAlias is the route alias used when a request names no backend.
// Configuration must always resolve it.
const DefaultAlias = "default"

// =============================================================================
// BUDGET / ADMISSION
// =============================================================================

// DefaultMaxRequestTime bounds a request when neither the caller nor the
// backend profile sets a tighter limit.
const DefaultMaxRequestTime = 2 * time.Minute

// DefaultMaxConcurrency is the per-backend in-flight request ceiling.
const DefaultMaxConcurrency = 8

// DefaultAcquireSlack bounds permit acquisition so admission fails with
// budget_exceeded rather than queuing forever.
const DefaultAcquireSlack = 10 * time.Second

// =============================================================================
// RELIABILITY
// =============================================================================

// DefaultMaxAttempts includes the initial attempt.
const DefaultMaxAttempts = 3

// DefaultBackoffBase is the first retry delay before exponential growth.
const DefaultBackoffBase = 200 * time.Millisecond

// DefaultBackoffCap bounds the exponential backoff.
const DefaultBackoffCap = 3 * time.Second

// DefaultBackoffJitter is the +/- fraction applied to each backoff sleep.
const DefaultBackoffJitter = 0.2

// DefaultBreakerFailureThreshold is the consecutive transient failure count
// that opens a backend's circuit.
const DefaultBreakerFailureThreshold = 5

// DefaultBreakerOpenDuration is how long an open circuit rejects dispatch
// before allowing a half-open probe.
const DefaultBreakerOpenDuration = 30 * time.Second

// =============================================================================
// STREAMING
// =============================================================================

// DefaultEventBuffer is the canonical event channel depth per request.
const DefaultEventBuffer = 16

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// TokenEstimateRatio is the approximate number of characters per token, used
// when tiktoken has no encoding available.
const TokenEstimateRatio = 4

// EstimatorEncoding is the tiktoken encoding used for best-effort counting.
const EstimatorEncoding = "cl100k_base"
