package budget

import (
	"sync"
	"time"
)

// Lease is the per-request admission handle: the effective timeout bound plus
// the concurrency permit and rate token acquired for it. It is released
// exactly once, on stream termination or cancellation, never on normal event
// emission.
type Lease struct {
	BackendID string

	// Timeout is the effective execution bound: the minimum of the global,
	// per-request, and per-backend limits.
	Timeout time.Duration

	AcquiredAt time.Time

	release func()
	once    sync.Once
}

// Release returns the concurrency permit. Safe to call multiple times and
// from racing goroutines; only the first call has effect.
func (l *Lease) Release() {
	l.once.Do(func() {
		if l.release != nil {
			l.release()
		}
	})
}
