package reliability

import (
	"math/rand"
	"time"

	"github.com/relaycore/inference-gateway/internal/config"
)

// Backoff computes the sleep before the next retry. attempt starts at 1 for
// the first retry (after the first failed attempt).
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter float64 // 0..1, +/- fraction
}

// NewBackoff builds a backoff from reliability configuration.
func NewBackoff(cfg config.ReliabilityConfig) Backoff {
	return Backoff{
		Base:   cfg.BackoffBase.Std(),
		Cap:    cfg.BackoffCap.Std(),
		Jitter: config.DefaultBackoffJitter,
	}
}

// Next returns base * 2^(attempt-1), capped, with jitter applied.
func (b Backoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = config.DefaultBackoffBase
	}
	cap := b.Cap
	if cap <= 0 {
		cap = config.DefaultBackoffCap
	}

	d := base
	for i := 1; i < attempt; i++ {
		if d >= cap/2 {
			d = cap
			break
		}
		d *= 2
	}
	if d > cap {
		d = cap
	}

	j := b.Jitter
	if j <= 0 {
		return d
	}
	if j > 1 {
		j = 1
	}
	f := 1 + (rand.Float64()*2-1)*j
	if f < 0 {
		f = 0
	}
	return time.Duration(float64(d) * f)
}
