package budget

import (
	"context"
	"sync"
	"time"
)

// rateBucket is a token bucket that smooths request starts per backend.
// Unlike an allow/deny limiter it waits: admission is delayed, not refused.
type rateBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	rps        float64
	burst      float64
}

func newRateBucket(rps float64, burst int) *rateBucket {
	if burst <= 0 {
		burst = int(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &rateBucket{
		tokens:     float64(burst),
		lastRefill: time.Now(),
		rps:        rps,
		burst:      float64(burst),
	}
}

// reserve takes one token, returning how long the caller must sleep before
// the reservation is honored. Negative balances model queued starts.
func (b *rateBucket) reserve() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.rps
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.lastRefill = now

	b.tokens--
	if b.tokens >= 0 {
		return 0
	}
	return time.Duration(-b.tokens / b.rps * float64(time.Second))
}

// wait blocks until a token is available or ctx is done.
func (b *rateBucket) wait(ctx context.Context) error {
	delay := b.reserve()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
