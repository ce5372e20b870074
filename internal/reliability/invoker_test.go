package reliability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/inference-gateway/internal/config"
	"github.com/relaycore/inference-gateway/internal/gwerr"
)

func testInvoker(maxAttempts int) *Invoker {
	cfg := config.ReliabilityConfig{
		MaxAttempts:             maxAttempts,
		BackoffBase:             config.Duration(time.Millisecond),
		BackoffCap:              config.Duration(2 * time.Millisecond),
		BreakerFailureThreshold: 100,
		BreakerOpenDuration:     config.Duration(time.Minute),
	}
	inv := NewInvoker(cfg, NewBreakerRegistry(cfg))
	inv.sleep = func(context.Context, time.Duration) error { return nil }
	return inv
}

func transientErr() error { return gwerr.New(gwerr.KindBackendTransient, "flaky") }

func TestRun_SucceedsFirstAttempt(t *testing.T) {
	inv := testInvoker(3)
	calls := 0
	err := inv.Run(context.Background(), "b", false, nil, func(context.Context, int) AttemptResult {
		calls++
		return AttemptResult{}
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRun_RetriesTransientUpToMax(t *testing.T) {
	inv := testInvoker(3)
	calls := 0
	err := inv.Run(context.Background(), "b", false, nil, func(context.Context, int) AttemptResult {
		calls++
		return AttemptResult{Err: transientErr()}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, gwerr.KindBackendTransient, gwerr.KindOf(err))
}

func TestRun_TransientThenSuccess(t *testing.T) {
	inv := testInvoker(3)
	calls := 0
	err := inv.Run(context.Background(), "b", false, nil, func(context.Context, int) AttemptResult {
		calls++
		if calls == 1 {
			return AttemptResult{Err: transientErr()}
		}
		return AttemptResult{}
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRun_NonRetryableStopsImmediately(t *testing.T) {
	inv := testInvoker(3)
	calls := 0
	err := inv.Run(context.Background(), "b", false, nil, func(context.Context, int) AttemptResult {
		calls++
		return AttemptResult{Err: gwerr.New(gwerr.KindAuthentication, "bad key")}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRun_NoRetryAfterTextForwarded(t *testing.T) {
	inv := testInvoker(3)
	calls := 0
	err := inv.Run(context.Background(), "b", true, nil, func(context.Context, int) AttemptResult {
		calls++
		return AttemptResult{Err: transientErr(), TextForwarded: true}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "text already reached the caller; no further attempt allowed")
}

func TestRun_ToolOnlyOutputRetriesWhenDeclaredSafe(t *testing.T) {
	inv := testInvoker(3)
	calls := 0
	err := inv.Run(context.Background(), "b", true, nil, func(context.Context, int) AttemptResult {
		calls++
		return AttemptResult{Err: transientErr(), ToolForwarded: true}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRun_ToolOnlyOutputStopsWhenNotSafe(t *testing.T) {
	inv := testInvoker(3)
	calls := 0
	err := inv.Run(context.Background(), "b", false, nil, func(context.Context, int) AttemptResult {
		calls++
		return AttemptResult{Err: transientErr(), ToolForwarded: true}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRun_MixedOutputNeverRetries(t *testing.T) {
	inv := testInvoker(3)
	calls := 0
	err := inv.Run(context.Background(), "b", true, nil, func(context.Context, int) AttemptResult {
		calls++
		return AttemptResult{Err: transientErr(), TextForwarded: true, ToolForwarded: true}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRun_CancellationSkipsBreakerAccounting(t *testing.T) {
	inv := testInvoker(3)
	err := inv.Run(context.Background(), "b", false, nil, func(context.Context, int) AttemptResult {
		return AttemptResult{Cancelled: true, Err: gwerr.New(gwerr.KindTimeout, "abandoned")}
	})
	require.Error(t, err)

	failures, openUntil := inv.breakers.For("b").Snapshot()
	assert.Zero(t, failures, "cancellation is neither success nor failure")
	assert.True(t, openUntil.IsZero())
}

func TestRun_BreakerShortCircuitsWithoutDispatch(t *testing.T) {
	cfg := config.ReliabilityConfig{
		MaxAttempts:             5,
		BackoffBase:             config.Duration(time.Millisecond),
		BackoffCap:              config.Duration(2 * time.Millisecond),
		BreakerFailureThreshold: 2,
		BreakerOpenDuration:     config.Duration(time.Minute),
	}
	inv := NewInvoker(cfg, NewBreakerRegistry(cfg))
	inv.sleep = func(context.Context, time.Duration) error { return nil }

	calls := 0
	err := inv.Run(context.Background(), "b", false, nil, func(context.Context, int) AttemptResult {
		calls++
		return AttemptResult{Err: transientErr()}
	})
	require.Error(t, err)
	// Two failures trip the breaker; the third loop iteration is rejected
	// before the attempt func runs.
	assert.Equal(t, 2, calls)
	assert.Equal(t, gwerr.KindCircuitOpen, gwerr.KindOf(err))
}

func TestRun_ObserverSeesAttempts(t *testing.T) {
	inv := testInvoker(2)
	obs := &recordingObserver{}
	_ = inv.Run(context.Background(), "b", false, obs, func(context.Context, int) AttemptResult {
		return AttemptResult{Err: transientErr()}
	})
	assert.Equal(t, []int{1, 2}, obs.started)
	assert.Equal(t, []int{1, 2}, obs.failed)
}

type recordingObserver struct {
	started []int
	failed  []int
}

func (o *recordingObserver) AttemptStarted(n int) { o.started = append(o.started, n) }
func (o *recordingObserver) AttemptFailed(n int, _ time.Duration, _ error) {
	o.failed = append(o.failed, n)
}
