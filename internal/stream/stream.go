// Package stream owns the canonical event stream and the response
// normalizer that produces it from backend-native raw events.
//
// DESIGN: One EventStream per request. Events are strictly ordered as
// produced; there is no cross-request ordering. Dropping the consumer side
// (Close) is the only cancellation signal; teardown (adapter cancel, lease
// release, stop of emission) runs at most once even when cancellation races
// a terminal event, resolved by a single "already terminal" guard.
package stream

import (
	"sync"

	"github.com/relaycore/inference-gateway/internal/canonical"
)

// EventStream is the consumer handle for one request's canonical events.
type EventStream struct {
	requestID string
	events    chan canonical.Event

	// closed is closed by Close to signal consumer abandonment to the
	// producer pump.
	closed    chan struct{}
	closeOnce sync.Once

	// done is the single terminal guard: exactly one of "terminal event
	// emitted" or "consumer closed first" runs the teardown.
	done   sync.Once
	onDone func(cancelled bool)
}

// New creates a stream for requestID. onDone runs exactly once, with
// cancelled=true when the consumer closed the stream before a terminal
// event. It may be nil.
func New(requestID string, buffer int, onDone func(cancelled bool)) *EventStream {
	if onDone == nil {
		onDone = func(bool) {}
	}
	return &EventStream{
		requestID: requestID,
		events:    make(chan canonical.Event, buffer),
		closed:    make(chan struct{}),
		onDone:    onDone,
	}
}

// RequestID returns the stream's request id.
func (s *EventStream) RequestID() string { return s.requestID }

// Events yields the ordered canonical events. The channel is closed after
// the terminal event, or without one when the stream was abandoned.
func (s *EventStream) Events() <-chan canonical.Event { return s.events }

// Close abandons the stream. Idempotent and safe to race with completion;
// teardown runs at most once across both paths.
func (s *EventStream) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
	s.done.Do(func() { s.onDone(true) })
}

// Abandoned exposes the consumer-close signal to the producer pump.
func (s *EventStream) Abandoned() <-chan struct{} { return s.closed }

// send delivers one non-terminal event, giving up when the consumer is gone.
func (s *EventStream) send(ev canonical.Event) bool {
	select {
	case <-s.closed:
		return false
	case s.events <- ev:
		return true
	}
}

// finish emits the terminal event (if the consumer is still there), runs the
// teardown through the terminal guard, and closes the event channel. No
// event is ever emitted after this.
func (s *EventStream) finish(ev canonical.Event) {
	select {
	case <-s.closed:
	case s.events <- ev:
	}
	s.done.Do(func() { s.onDone(false) })
	close(s.events)
}
