package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relaycore/inference-gateway/internal/config"
	"github.com/relaycore/inference-gateway/internal/gwerr"
)

// AttemptState tracks one attempt through its lifecycle.
type AttemptState string

const (
	StateNotStarted  AttemptState = "not_started"
	StateDispatching AttemptState = "dispatching"
	StateStreaming   AttemptState = "streaming"
	StateTerminal    AttemptState = "terminal"
)

// AttemptResult is what one adapter attempt reports back to the invoker.
type AttemptResult struct {
	// Err is nil on success. Classified with gwerr by the attempt.
	Err error

	// TextForwarded is true once any text delta reached the caller.
	TextForwarded bool

	// ToolForwarded is true once any tool-call event reached the caller.
	ToolForwarded bool

	// Cancelled marks caller-initiated cancellation: recorded as neither
	// success nor failure for breaker purposes.
	Cancelled bool
}

// AttemptFunc dispatches one adapter invocation and pumps its stream.
// attempt is 1-based.
type AttemptFunc func(ctx context.Context, attempt int) AttemptResult

// Observer is notified per attempt for telemetry.
type Observer interface {
	AttemptStarted(attempt int)
	AttemptFailed(attempt int, latency time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) AttemptStarted(int)                      {}
func (nopObserver) AttemptFailed(int, time.Duration, error) {}

// Invoker runs attempts against one backend under the retry predicate and
// circuit breaker.
type Invoker struct {
	cfg      config.ReliabilityConfig
	backoff  Backoff
	breakers *BreakerRegistry

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewInvoker creates an invoker sharing the given breaker registry.
func NewInvoker(cfg config.ReliabilityConfig, breakers *BreakerRegistry) *Invoker {
	return &Invoker{
		cfg:      cfg,
		backoff:  NewBackoff(cfg),
		breakers: breakers,
		sleep:    sleepCtx,
	}
}

// Run executes attempts for one request against backendID.
//
// Retry predicate: a further attempt is made only if ALL hold:
//   - the previous error is marked retryable,
//   - the attempt count is below the configured maximum,
//   - no output-bearing event has been forwarded to the caller, OR the only
//     forwarded output was tool-call events and the adapter declares
//     tool-retry-safety (toolRetrySafe).
//
// The breaker is consulted before every attempt and raises circuit_open
// without invoking the adapter. Cancellation is recorded as neither success
// nor failure.
func (i *Invoker) Run(ctx context.Context, backendID string, toolRetrySafe bool, obs Observer, attempt AttemptFunc) error {
	if obs == nil {
		obs = nopObserver{}
	}
	breaker := i.breakers.For(backendID)

	textForwarded := false
	toolForwarded := false

	for n := 1; ; n++ {
		if err := i.breakers.Check(backendID); err != nil {
			return err
		}

		obs.AttemptStarted(n)
		started := time.Now()
		res := attempt(ctx, n)

		textForwarded = textForwarded || res.TextForwarded
		toolForwarded = toolForwarded || res.ToolForwarded

		if res.Cancelled {
			// Neither success nor failure for the breaker.
			return res.Err
		}
		if res.Err == nil {
			breaker.RecordSuccess()
			return nil
		}

		latency := time.Since(started)
		obs.AttemptFailed(n, latency, res.Err)
		if gwerr.IsRetryable(res.Err) {
			breaker.RecordTransientFailure()
		}

		if !i.mayRetry(res.Err, n, textForwarded, toolForwarded, toolRetrySafe) {
			return res.Err
		}

		delay := i.backoff.Next(n)
		log.Debug().
			Str("backend", backendID).
			Int("attempt", n).
			Dur("backoff", delay).
			Str("error_kind", string(gwerr.KindOf(res.Err))).
			Msg("retrying after transient failure")
		if err := i.sleep(ctx, delay); err != nil {
			return gwerr.Wrap(gwerr.KindTimeout, err, "cancelled during retry backoff").
				WithBackend(backendID)
		}
	}
}

func (i *Invoker) mayRetry(err error, attempts int, textForwarded, toolForwarded, toolRetrySafe bool) bool {
	if !gwerr.IsRetryable(err) {
		return false
	}
	if attempts >= i.cfg.MaxAttempts {
		return false
	}
	if !textForwarded && !toolForwarded {
		return true
	}
	// Output already reached the caller: retrying risks duplicating a side
	// effect the first attempt started. Only a declared tool-retry-safe
	// adapter may re-issue, and only when nothing but tool events leaked.
	return !textForwarded && toolRetrySafe
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
