package adapters

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/relaycore/inference-gateway/internal/capability"
	"github.com/relaycore/inference-gateway/internal/gwerr"
)

// Script is one canned backend behavior for the scripted adapter: fail the
// first FailFirst attempts with Err, then play Events.
type Script struct {
	// FailFirst makes that many leading attempts fail with Err before any
	// event is emitted. Immediate=true fails from Invoke instead of
	// emitting a RawError event.
	FailFirst int
	Err       error
	Immediate bool

	Events []RawEvent

	// FailAfterEvents, when Err is set and FailFirst attempts are spent,
	// emits Events first and then the error (mid-stream failure).
	FailAfterEvents bool
}

// ScriptedAdapter replays canned raw event sequences. It backs the unit and
// pipeline tests and doubles as a local dry-run dialect; it performs no I/O.
type ScriptedAdapter struct {
	dialect string
	caps    capability.Set

	mu      sync.Mutex
	scripts map[string]*Script

	attempts  atomic.Int64
	cancelled atomic.Int64
}

// NewScriptedAdapter creates a scripted adapter for the given dialect name.
func NewScriptedAdapter(dialect string, caps capability.Set) *ScriptedAdapter {
	return &ScriptedAdapter{
		dialect: dialect,
		caps:    caps,
		scripts: make(map[string]*Script),
	}
}

// SetScript installs the behavior for a model id. The empty model id is the
// fallback script.
func (a *ScriptedAdapter) SetScript(model string, s *Script) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scripts[model] = s
}

// Attempts returns how many times Invoke dispatched (including scripted
// failures, excluding immediate rejections).
func (a *ScriptedAdapter) Attempts() int64 { return a.attempts.Load() }

// Cancelled returns how many invocation cancel hooks have fired.
func (a *ScriptedAdapter) Cancelled() int64 { return a.cancelled.Load() }

func (a *ScriptedAdapter) Dialect() string              { return a.dialect }
func (a *ScriptedAdapter) Capabilities() capability.Set { return a.caps }

// Invoke plays the script for params.Model.
func (a *ScriptedAdapter) Invoke(ctx context.Context, params InvokeParams) (*Invocation, error) {
	a.mu.Lock()
	s, ok := a.scripts[params.Model]
	if !ok {
		s = a.scripts[""]
	}
	var failNow bool
	if s != nil && s.FailFirst > 0 {
		s.FailFirst--
		failNow = true
	}
	a.mu.Unlock()

	if s == nil {
		return nil, gwerr.Newf(gwerr.KindBackendPermanent, "no script for model %q", params.Model)
	}
	if failNow && s.Immediate {
		return nil, s.Err
	}
	a.attempts.Add(1)

	events := make(chan RawEvent, len(s.Events)+1)
	done := make(chan struct{})
	var once sync.Once
	inv := &Invocation{
		Events: events,
		Cancel: func() {
			once.Do(func() {
				a.cancelled.Add(1)
				close(done)
			})
		},
	}

	go func() {
		defer close(events)
		if failNow {
			events <- RawEvent{Kind: RawError, Err: s.Err}
			return
		}
		for _, ev := range s.Events {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case events <- ev:
			}
		}
		if s.FailAfterEvents && s.Err != nil {
			events <- RawEvent{Kind: RawError, Err: s.Err}
		}
	}()
	return inv, nil
}
