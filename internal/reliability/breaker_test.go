package reliability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/inference-gateway/internal/config"
	"github.com/relaycore/inference-gateway/internal/gwerr"
)

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	b.RecordTransientFailure()
	b.RecordTransientFailure()
	assert.True(t, b.Allow(), "below threshold must stay closed")

	b.RecordTransientFailure()
	assert.False(t, b.Allow(), "threshold reached must open")
}

func TestBreaker_SuccessResetsStreak(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	b.RecordTransientFailure()
	b.RecordTransientFailure()
	b.RecordSuccess()
	b.RecordTransientFailure()
	b.RecordTransientFailure()
	assert.True(t, b.Allow(), "streak must reset on success")
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)

	b.RecordTransientFailure()
	assert.False(t, b.Allow())

	time.Sleep(20 * time.Millisecond)

	// Deadline elapsed: one probe is admitted.
	assert.True(t, b.Allow())

	// Probe failure reopens immediately.
	b.RecordTransientFailure()
	assert.False(t, b.Allow())
}

func TestBreaker_SingleProbeWhileHalfOpen(t *testing.T) {
	b := NewBreaker(1, 50*time.Millisecond)
	b.RecordTransientFailure()
	time.Sleep(60 * time.Millisecond)

	// Only the first arrival after the deadline gets the probe slot;
	// concurrent waiters are still rejected until the probe resolves.
	require.True(t, b.Allow())
	assert.False(t, b.Allow())
	assert.False(t, b.Allow())

	// The probe resolving releases the slot.
	b.RecordSuccess()
	assert.True(t, b.Allow())
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)
	b.RecordTransientFailure()
	time.Sleep(20 * time.Millisecond)

	require.True(t, b.Allow())
	b.RecordSuccess()

	failures, openUntil := b.Snapshot()
	assert.Zero(t, failures)
	assert.True(t, openUntil.IsZero())
	assert.True(t, b.Allow())
}

func TestBreakerRegistry_PerBackendIsolation(t *testing.T) {
	cfg := config.ReliabilityConfig{
		BreakerFailureThreshold: 1,
		BreakerOpenDuration:     config.Duration(time.Minute),
	}
	r := NewBreakerRegistry(cfg)

	r.For("a").RecordTransientFailure()

	err := r.Check("a")
	require.Error(t, err)
	assert.Equal(t, gwerr.KindCircuitOpen, gwerr.KindOf(err))

	assert.NoError(t, r.Check("b"), "backend b must be unaffected")
}

func TestBackoff_GrowthAndCap(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Cap: 1 * time.Second, Jitter: 0}

	assert.Equal(t, 100*time.Millisecond, b.Next(1))
	assert.Equal(t, 200*time.Millisecond, b.Next(2))
	assert.Equal(t, 400*time.Millisecond, b.Next(3))
	assert.Equal(t, 1*time.Second, b.Next(5))
	assert.Equal(t, 1*time.Second, b.Next(50))
}

func TestBackoff_JitterStaysInRange(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Cap: time.Second, Jitter: 0.2}
	for i := 0; i < 100; i++ {
		d := b.Next(1)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}
