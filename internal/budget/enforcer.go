// Package budget is the admission layer: timeout bounds, per-backend
// concurrency permits, and rate smoothing before dispatch; best-effort usage
// accounting after.
//
// DESIGN: One state instance per backend id inside a registry owned by the
// gateway at construction time. Backend states are independent so one
// backend's saturation cannot throttle unrelated backends; no global lock
// spans acquisition.
package budget

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relaycore/inference-gateway/internal/canonical"
	"github.com/relaycore/inference-gateway/internal/config"
	"github.com/relaycore/inference-gateway/internal/gwerr"
)

// Enforcer gates dispatch per backend and tracks observed usage.
type Enforcer struct {
	cfg  config.BudgetConfig
	hook AdmissionHook

	// states is built once at construction and read-only afterwards; the
	// mutable state lives inside each backendState.
	states map[string]*backendState

	usage *usageLedger
}

type backendState struct {
	permits chan struct{}
	bucket  *rateBucket
}

// NewEnforcer builds per-backend admission state from configuration. hook may
// be nil, in which case the no-op hook is used.
func NewEnforcer(cfg *config.Config, hook AdmissionHook) *Enforcer {
	if hook == nil {
		hook = NopHook{}
	}
	e := &Enforcer{
		cfg:    cfg.Budget,
		hook:   hook,
		states: make(map[string]*backendState, len(cfg.Backends)),
		usage:  newUsageLedger(),
	}
	for id, p := range cfg.Backends {
		st := &backendState{
			permits: make(chan struct{}, p.MaxConcurrency),
		}
		if p.RatePerSecond > 0 {
			st.bucket = newRateBucket(p.RatePerSecond, p.RateBurst)
		}
		e.states[id] = st
	}
	return e
}

// Acquire admits one request to the given backend, blocking on the
// concurrency permit and delaying for rate smoothing. The returned lease
// carries the effective timeout and must be released exactly once.
//
// Admission failure is budget_exceeded; caller/timeout expiry during
// admission is timeout. The two are distinct so callers can tell admission
// failure from execution timeout.
func (e *Enforcer) Acquire(ctx context.Context, backend *config.BackendProfile, req *canonical.Request) (*Lease, error) {
	st, ok := e.states[backend.ID]
	if !ok {
		return nil, gwerr.Newf(gwerr.KindInternal, "no budget state for backend %q", backend.ID)
	}

	if err := e.hook.Admit(backend.ID); err != nil {
		return nil, gwerr.Wrap(gwerr.KindBudgetExceeded, err,
			"admission hook refused request").WithBackend(backend.ID)
	}

	timeout := e.effectiveTimeout(backend, req)

	// Admission is bounded by the lease's own timeout: a request that may
	// only run for 50ms must not sit 10s waiting for a permit.
	slack := config.DefaultAcquireSlack
	if timeout < slack {
		slack = timeout
	}

	// (b) concurrency permit, bounded so saturated backends fail admission
	// instead of queuing forever.
	slackTimer := time.NewTimer(slack)
	defer slackTimer.Stop()
	select {
	case st.permits <- struct{}{}:
	case <-ctx.Done():
		return nil, gwerr.Wrap(gwerr.KindTimeout, ctx.Err(),
			"cancelled while waiting for concurrency permit").WithBackend(backend.ID)
	case <-slackTimer.C:
		return nil, gwerr.Newf(gwerr.KindBudgetExceeded,
			"backend %q concurrency ceiling reached", backend.ID).WithBackend(backend.ID)
	}

	// (c) rate smoothing: delay start until a token is available, under the
	// same admission bound.
	if st.bucket != nil {
		waitCtx, cancelWait := context.WithTimeout(ctx, slack)
		err := st.bucket.wait(waitCtx)
		cancelWait()
		if err != nil {
			<-st.permits
			if ctx.Err() != nil {
				return nil, gwerr.Wrap(gwerr.KindTimeout, ctx.Err(),
					"cancelled while waiting for rate token").WithBackend(backend.ID)
			}
			return nil, gwerr.Newf(gwerr.KindBudgetExceeded,
				"backend %q rate smoothing exceeded admission bound", backend.ID).WithBackend(backend.ID)
		}
	}

	log.Debug().
		Str("backend", backend.ID).
		Str("request_id", req.ID).
		Dur("timeout", timeout).
		Msg("budget lease acquired")

	return &Lease{
		BackendID:  backend.ID,
		Timeout:    timeout,
		AcquiredAt: time.Now(),
		release:    func() { <-st.permits },
	}, nil
}

// effectiveTimeout is the minimum of the configured global, per-request, and
// per-backend bounds, ignoring unset (zero) values.
func (e *Enforcer) effectiveTimeout(backend *config.BackendProfile, req *canonical.Request) time.Duration {
	timeout := e.cfg.MaxRequestTime.Std()
	if bt := backend.Timeout.Std(); bt > 0 && bt < timeout {
		timeout = bt
	}
	if req.Limits.TimeoutMillis > 0 {
		perReq := time.Duration(req.Limits.TimeoutMillis) * time.Millisecond
		if perReq < timeout {
			timeout = perReq
		}
	}
	return timeout
}

// RecordUsage books observed token usage for a backend. Accounting only: it
// never aborts an active stream, and absent or late usage is not an error.
func (e *Enforcer) RecordUsage(backendID string, usage canonical.Usage) {
	e.usage.record(backendID, usage)
	e.hook.Observe(backendID, usage)
}

// UsageSnapshot returns accumulated per-backend token totals.
func (e *Enforcer) UsageSnapshot() map[string]canonical.Usage {
	return e.usage.snapshot()
}
