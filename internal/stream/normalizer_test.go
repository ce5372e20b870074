package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/inference-gateway/internal/adapters"
	"github.com/relaycore/inference-gateway/internal/canonical"
	"github.com/relaycore/inference-gateway/internal/gwerr"
)

// playback builds an Invocation whose channel yields the given events and
// then closes.
func playback(events ...adapters.RawEvent) *adapters.Invocation {
	ch := make(chan adapters.RawEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return &adapters.Invocation{Events: ch}
}

func collect(t *testing.T, es *EventStream) []canonical.Event {
	t.Helper()
	var out []canonical.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-es.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not terminate")
		}
	}
}

func TestPumpAttempt_CanonicalShape(t *testing.T) {
	es := New("r1", 16, nil)
	n := NewNormalizer("r1", es, Hooks{})

	res := n.PumpAttempt(context.Background(), playback(
		adapters.RawEvent{Kind: adapters.RawTextDelta, TextDelta: "Hel"},
		adapters.RawEvent{Kind: adapters.RawTextDelta, TextDelta: "lo"},
		adapters.RawEvent{Kind: adapters.RawUsage, InputTokens: 4, OutputTokens: 2},
		adapters.RawEvent{Kind: adapters.RawDone},
	))
	require.NoError(t, res.Err)
	assert.True(t, res.TextForwarded)
	assert.False(t, res.ToolForwarded)
	n.Finish(nil)

	events := collect(t, es)
	require.Len(t, events, 5)
	assert.Equal(t, canonical.EventStarted, events[0].Kind)
	assert.Equal(t, canonical.EventOutputTextDelta, events[1].Kind)
	assert.Equal(t, canonical.EventUsage, events[3].Kind)
	assert.Equal(t, canonical.EventCompleted, events[4].Kind)
	for _, ev := range events {
		assert.Equal(t, "r1", ev.RequestID)
	}
}

func TestPumpAttempt_StartedOncePerRequestAcrossAttempts(t *testing.T) {
	es := New("r1", 16, nil)
	firstEvents := 0
	n := NewNormalizer("r1", es, Hooks{OnFirstEvent: func() { firstEvents++ }})

	res := n.PumpAttempt(context.Background(), playback(
		adapters.RawEvent{Kind: adapters.RawError, Err: gwerr.New(gwerr.KindBackendTransient, "flaky")},
	))
	require.Error(t, res.Err)

	res = n.PumpAttempt(context.Background(), playback(
		adapters.RawEvent{Kind: adapters.RawTextDelta, TextDelta: "ok"},
		adapters.RawEvent{Kind: adapters.RawDone},
	))
	require.NoError(t, res.Err)
	n.Finish(nil)

	events := collect(t, es)
	started := 0
	for _, ev := range events {
		if ev.Kind == canonical.EventStarted {
			started++
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, firstEvents)
	assert.Equal(t, canonical.EventStarted, events[0].Kind)
}

func TestPumpAttempt_AtMostOneUsage(t *testing.T) {
	es := New("r1", 16, nil)
	var seen []canonical.Usage
	n := NewNormalizer("r1", es, Hooks{OnUsage: func(u canonical.Usage) { seen = append(seen, u) }})

	res := n.PumpAttempt(context.Background(), playback(
		adapters.RawEvent{Kind: adapters.RawUsage, InputTokens: 1, OutputTokens: 1},
		adapters.RawEvent{Kind: adapters.RawUsage, InputTokens: 9, OutputTokens: 9},
		adapters.RawEvent{Kind: adapters.RawDone},
	))
	require.NoError(t, res.Err)
	n.Finish(nil)

	usageEvents := 0
	for _, ev := range collect(t, es) {
		if ev.Kind == canonical.EventUsage {
			usageEvents++
			assert.Equal(t, 2, ev.Usage.TotalTokens)
		}
	}
	assert.Equal(t, 1, usageEvents)
	assert.Len(t, seen, 1)
}

func TestPumpAttempt_ToolCallAccumulation(t *testing.T) {
	es := New("r1", 16, nil)
	n := NewNormalizer("r1", es, Hooks{})

	res := n.PumpAttempt(context.Background(), playback(
		adapters.RawEvent{Kind: adapters.RawToolCallDelta, ToolCallID: "c1", ToolCallName: "search", ToolCallArgs: `{"q":`},
		adapters.RawEvent{Kind: adapters.RawToolCallDelta, ToolCallID: "c1", ToolCallArgs: `"go"}`},
		adapters.RawEvent{Kind: adapters.RawToolCallDone, ToolCallID: "c1"},
		adapters.RawEvent{Kind: adapters.RawDone},
	))
	require.NoError(t, res.Err)
	assert.True(t, res.ToolForwarded)
	n.Finish(nil)

	events := collect(t, es)
	var ready *canonical.ToolCall
	for _, ev := range events {
		if ev.Kind == canonical.EventToolCallReady {
			ready = ev.ToolCall
		}
		if ev.Kind == canonical.EventToolCallDelta {
			assert.Equal(t, canonical.ToolCallPartial, ev.ToolCall.Status)
		}
	}
	require.NotNil(t, ready)
	assert.Equal(t, "search", ready.Name)
	assert.Equal(t, `{"q":"go"}`, ready.Args, "ready event carries accumulated args")
	assert.Equal(t, canonical.ToolCallReady, ready.Status)
}

func TestPumpAttempt_ChannelCloseWithoutMarkerIsProtocolViolation(t *testing.T) {
	es := New("r1", 16, nil)
	n := NewNormalizer("r1", es, Hooks{})

	res := n.PumpAttempt(context.Background(), playback(
		adapters.RawEvent{Kind: adapters.RawTextDelta, TextDelta: "partial"},
	))
	require.Error(t, res.Err)
	assert.Equal(t, gwerr.KindProtocolViolation, gwerr.KindOf(res.Err))
	n.Finish(res.Err)

	events := collect(t, es)
	last := events[len(events)-1]
	assert.Equal(t, canonical.EventFailed, last.Kind)
}

func TestPumpAttempt_ContextExpiryIsTimeout(t *testing.T) {
	es := New("r1", 16, nil)
	n := NewNormalizer("r1", es, Hooks{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := make(chan adapters.RawEvent)
	res := n.PumpAttempt(ctx, &adapters.Invocation{Events: blocked})
	require.Error(t, res.Err)
	assert.Equal(t, gwerr.KindTimeout, gwerr.KindOf(res.Err))
}

func TestPumpAttempt_AbandonmentReportsCancelled(t *testing.T) {
	es := New("r1", 16, nil)
	n := NewNormalizer("r1", es, Hooks{})
	es.Close()

	res := n.PumpAttempt(context.Background(), &adapters.Invocation{Events: make(chan adapters.RawEvent)})
	assert.True(t, res.Cancelled)
	assert.NoError(t, res.Err)
}

func TestPumpAttempt_AbandonmentWinsOverContextExpiry(t *testing.T) {
	// Consumer Close tears the request context down too, so the pump sees
	// ctx.Done and Abandoned ready simultaneously. The select picks either
	// branch at random; every iteration must still classify the outcome as
	// cancellation, never as a retryable timeout.
	for i := 0; i < 200; i++ {
		es := New("r1", 16, nil)
		n := NewNormalizer("r1", es, Hooks{})

		// First attempt emits Started and fails, as a live request would.
		res := n.PumpAttempt(context.Background(), playback(
			adapters.RawEvent{Kind: adapters.RawError, Err: gwerr.New(gwerr.KindBackendTransient, "flaky")},
		))
		require.Error(t, res.Err)

		ctx, cancel := context.WithCancel(context.Background())
		es.Close()
		cancel()

		res = n.PumpAttempt(ctx, &adapters.Invocation{Events: make(chan adapters.RawEvent)})
		require.True(t, res.Cancelled, "iteration %d classified abandonment as %v", i, res.Err)
		require.NoError(t, res.Err)
	}
}

func TestFinish_BackfillsStarted(t *testing.T) {
	es := New("r1", 16, nil)
	n := NewNormalizer("r1", es, Hooks{})

	n.Finish(gwerr.New(gwerr.KindCircuitOpen, "open"))

	events := collect(t, es)
	require.Len(t, events, 2)
	assert.Equal(t, canonical.EventStarted, events[0].Kind)
	assert.Equal(t, canonical.EventFailed, events[1].Kind)
}

func TestClassifyRawError_ProbesProviderCode(t *testing.T) {
	err := classifyRawError(adapters.RawEvent{
		Kind:    adapters.RawError,
		Err:     errors.New("upstream 529"),
		Payload: []byte(`{"error":{"type":"overloaded_error","message":"try later"}}`),
	})
	ge, ok := gwerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerr.KindBackendTransient, ge.Kind)
	assert.Equal(t, "overloaded_error", ge.ProviderCode)
}

func TestEventStream_CloseIsIdempotentAndRunsTeardownOnce(t *testing.T) {
	teardowns := 0
	cancelledFlag := false
	es := New("r1", 4, func(cancelled bool) {
		teardowns++
		cancelledFlag = cancelled
	})

	es.Close()
	es.Close()
	assert.Equal(t, 1, teardowns)
	assert.True(t, cancelledFlag)
}

func TestEventStream_TerminalBeatsClose(t *testing.T) {
	teardowns := 0
	cancelledFlag := true
	es := New("r1", 4, func(cancelled bool) {
		teardowns++
		cancelledFlag = cancelled
	})

	es.finish(canonical.Event{Kind: canonical.EventCompleted, RequestID: "r1"})
	es.Close()

	assert.Equal(t, 1, teardowns)
	assert.False(t, cancelledFlag, "terminal path ran first; close must be a no-op")
}

func TestEventStream_SendAfterCloseReportsConsumerGone(t *testing.T) {
	es := New("r1", 0, nil)
	es.Close()
	assert.False(t, es.send(canonical.Event{Kind: canonical.EventStarted}))
}
