package stream

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/relaycore/inference-gateway/internal/adapters"
	"github.com/relaycore/inference-gateway/internal/canonical"
	"github.com/relaycore/inference-gateway/internal/gwerr"
	"github.com/relaycore/inference-gateway/internal/reliability"
)

// Hooks are optional normalizer callbacks for telemetry and accounting.
type Hooks struct {
	// OnFirstEvent fires when Started is emitted.
	OnFirstEvent func()

	// OnUsage fires at most once, when the backend reports usage.
	OnUsage func(canonical.Usage)
}

// Normalizer converts one request's backend-native raw events into the
// canonical stream and enforces its shape invariants: Started first and
// exactly once, at most one Usage, exactly one terminal event, nothing after
// the terminal.
//
// A Normalizer is request-scoped and not goroutine-safe; the pipeline pumps
// attempts sequentially on one goroutine.
type Normalizer struct {
	requestID string
	out       *EventStream
	hooks     Hooks

	started   bool
	usageSeen bool

	// partial tool call state, per call id, so ToolCallReady can carry
	// full arguments even when the backend only ever sent deltas.
	partials map[string]*canonical.ToolCall
}

// NewNormalizer creates a normalizer writing to out.
func NewNormalizer(requestID string, out *EventStream, hooks Hooks) *Normalizer {
	return &Normalizer{
		requestID: requestID,
		out:       out,
		hooks:     hooks,
		partials:  make(map[string]*canonical.ToolCall),
	}
}

// PumpAttempt consumes one adapter invocation, forwarding canonical events
// until the raw stream terminates, the context expires, or the consumer
// abandons the stream. It never emits the request-level terminal event; the
// facade does that once the reliability layer has given up or succeeded.
func (n *Normalizer) PumpAttempt(ctx context.Context, inv *adapters.Invocation) reliability.AttemptResult {
	res := reliability.AttemptResult{}

	if !n.started {
		n.started = true
		if n.hooks.OnFirstEvent != nil {
			n.hooks.OnFirstEvent()
		}
		if !n.out.send(canonical.Event{Kind: canonical.EventStarted, RequestID: n.requestID}) {
			res.Cancelled = true
			return res
		}
	}

	for {
		select {
		case <-ctx.Done():
			// Teardown cancels the request context, so after a consumer
			// Close both signals are ready at once. Abandonment wins;
			// otherwise cancellation would be misread as a retryable
			// timeout and charged to the breaker.
			select {
			case <-n.out.Abandoned():
				res.Cancelled = true
			default:
				res.Err = gwerr.Wrap(gwerr.KindTimeout, ctx.Err(), "attempt deadline exceeded")
			}
			return res
		case <-n.out.Abandoned():
			res.Cancelled = true
			return res
		case raw, ok := <-inv.Events:
			if !ok {
				// Stream ended without a terminal marker: a protocol
				// violation, never silently treated as success.
				res.Err = gwerr.New(gwerr.KindProtocolViolation,
					"backend stream ended without terminal marker")
				return res
			}
			done, rr := n.forward(raw, &res)
			if done {
				return rr
			}
		}
	}
}

// forward maps one raw event. Returns done=true when the attempt reached a
// terminal raw marker.
func (n *Normalizer) forward(raw adapters.RawEvent, res *reliability.AttemptResult) (bool, reliability.AttemptResult) {
	switch raw.Kind {
	case adapters.RawTextDelta:
		if !n.out.send(canonical.Event{
			Kind:      canonical.EventOutputTextDelta,
			RequestID: n.requestID,
			TextDelta: raw.TextDelta,
		}) {
			res.Cancelled = true
			return true, *res
		}
		res.TextForwarded = true

	case adapters.RawToolCallDelta:
		tc := n.partial(raw.ToolCallID, raw.ToolCallName)
		tc.Args += raw.ToolCallArgs
		if !n.out.send(canonical.Event{
			Kind:      canonical.EventToolCallDelta,
			RequestID: n.requestID,
			ToolCall: &canonical.ToolCall{
				ID:     tc.ID,
				Name:   tc.Name,
				Args:   raw.ToolCallArgs,
				Status: canonical.ToolCallPartial,
			},
		}) {
			res.Cancelled = true
			return true, *res
		}
		res.ToolForwarded = true

	case adapters.RawToolCallDone:
		tc := n.partial(raw.ToolCallID, raw.ToolCallName)
		if raw.ToolCallArgs != "" {
			tc.Args = raw.ToolCallArgs
		}
		if !n.out.send(canonical.Event{
			Kind:      canonical.EventToolCallReady,
			RequestID: n.requestID,
			ToolCall: &canonical.ToolCall{
				ID:     tc.ID,
				Name:   tc.Name,
				Args:   tc.Args,
				Status: canonical.ToolCallReady,
			},
		}) {
			res.Cancelled = true
			return true, *res
		}
		res.ToolForwarded = true

	case adapters.RawUsage:
		if n.usageSeen {
			break // at most one Usage per request
		}
		n.usageSeen = true
		usage := canonical.Usage{
			InputTokens:  raw.InputTokens,
			OutputTokens: raw.OutputTokens,
			TotalTokens:  raw.InputTokens + raw.OutputTokens,
		}
		if n.hooks.OnUsage != nil {
			n.hooks.OnUsage(usage)
		}
		if !n.out.send(canonical.Event{
			Kind:      canonical.EventUsage,
			RequestID: n.requestID,
			Usage:     &usage,
		}) {
			res.Cancelled = true
			return true, *res
		}

	case adapters.RawDone:
		return true, *res

	case adapters.RawError:
		res.Err = classifyRawError(raw)
		return true, *res
	}
	return false, *res
}

func (n *Normalizer) partial(id, name string) *canonical.ToolCall {
	tc, ok := n.partials[id]
	if !ok {
		tc = &canonical.ToolCall{ID: id, Status: canonical.ToolCallPartial}
		n.partials[id] = tc
	}
	if name != "" {
		tc.Name = name
	}
	return tc
}

// Started reports whether the Started event has been emitted for this
// request (across all attempts).
func (n *Normalizer) Started() bool { return n.started }

// UsageSeen reports whether a backend-supplied usage event was observed.
func (n *Normalizer) UsageSeen() bool { return n.usageSeen }

// Finish emits the single request-level terminal event and tears the stream
// down through the terminal guard. Started is backfilled first when no
// attempt ever got far enough to emit it, so the stream always opens with
// Started.
func (n *Normalizer) Finish(err error) {
	if !n.started {
		n.started = true
		if n.hooks.OnFirstEvent != nil {
			n.hooks.OnFirstEvent()
		}
		n.out.send(canonical.Event{Kind: canonical.EventStarted, RequestID: n.requestID})
	}
	if err == nil {
		n.out.finish(canonical.Event{Kind: canonical.EventCompleted, RequestID: n.requestID})
		return
	}
	n.out.finish(canonical.Event{Kind: canonical.EventFailed, RequestID: n.requestID, Err: err})
}

// classifyRawError keeps an adapter's own classification and otherwise files
// the failure as backend_transient, probing the raw payload for a
// provider-specific code.
func classifyRawError(raw adapters.RawEvent) error {
	if ge, ok := gwerr.As(raw.Err); ok {
		return ge
	}
	ge := gwerr.Wrap(gwerr.KindBackendTransient, raw.Err, "backend stream error")
	if len(raw.Payload) > 0 {
		for _, path := range []string{"error.code", "error.type", "code", "type"} {
			if v := gjson.GetBytes(raw.Payload, path); v.Exists() && v.String() != "" {
				return ge.WithProviderCode(v.String())
			}
		}
	}
	return ge
}
