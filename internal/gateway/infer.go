package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relaycore/inference-gateway/internal/adapters"
	"github.com/relaycore/inference-gateway/internal/budget"
	"github.com/relaycore/inference-gateway/internal/canonical"
	"github.com/relaycore/inference-gateway/internal/capability"
	"github.com/relaycore/inference-gateway/internal/config"
	"github.com/relaycore/inference-gateway/internal/credentials"
	"github.com/relaycore/inference-gateway/internal/gwerr"
	"github.com/relaycore/inference-gateway/internal/monitoring"
	"github.com/relaycore/inference-gateway/internal/normalize"
	"github.com/relaycore/inference-gateway/internal/reliability"
	"github.com/relaycore/inference-gateway/internal/stream"
)

// InferStream runs the pipeline and returns the canonical event stream.
//
// Errors raised before dispatch (invalid request, routing, capability,
// credentials, admission) are returned directly; the stream is created only
// once a budget lease is held, and from then on every failure surfaces as
// exactly one Failed terminal event.
func (g *Gateway) InferStream(ctx context.Context, callerReq *canonical.Request) (*stream.EventStream, error) {
	req, err := normalize.Normalize(callerReq)
	if err != nil {
		return nil, err
	}

	sel, err := g.router.Select(req)
	if err != nil {
		return nil, err
	}
	backend := sel.Backend

	adapter, err := g.registry.Get(backend.Dialect)
	if err != nil {
		return nil, err
	}

	caps := capability.Merge(adapter.Capabilities(), backend.Capabilities)
	if err := capability.Check(backend.ID, caps, req); err != nil {
		return nil, err
	}

	cred, err := g.resolver.Resolve(backend.ID, backend.Credential)
	if err != nil {
		return nil, err
	}

	g.record(monitoring.Event{
		Type: monitoring.RequestStarted, RequestID: req.ID,
		BackendID: backend.ID, Model: sel.Model, Dialect: backend.Dialect,
	})

	lease, err := g.enforcer.Acquire(ctx, backend, req)
	if err != nil {
		g.record(monitoring.Event{
			Type: monitoring.RequestFailed, RequestID: req.ID, BackendID: backend.ID,
			ErrorKind: string(gwerr.KindOf(err)), ErrorMsg: err.Error(),
		})
		return nil, err
	}

	reqCtx, cancelReq := context.WithTimeout(ctx, lease.Timeout)
	hold := &cancelHolder{}

	es := stream.New(req.ID, config.DefaultEventBuffer, func(cancelled bool) {
		// Single teardown path, at most once: stop emission, release the
		// lease, and fire the adapter cancel hook only for abandonment.
		if cancelled {
			hold.fire()
		}
		lease.Release()
		cancelReq()
	})

	go g.run(reqCtx, runParams{
		req:     req,
		backend: backend,
		model:   sel.Model,
		caps:    caps,
		adapter: adapter,
		cred:    cred,
		lease:   lease,
		hold:    hold,
		es:      es,
		started: lease.AcquiredAt,
	})
	return es, nil
}

// InferOnce consumes InferStream, accumulating text and ready tool calls.
func (g *Gateway) InferOnce(ctx context.Context, callerReq *canonical.Request) (*canonical.FinalResponse, error) {
	es, err := g.InferStream(ctx, callerReq)
	if err != nil {
		return nil, err
	}
	defer es.Close()

	agg := canonical.NewAggregator()
	for ev := range es.Events() {
		if ev.Kind == canonical.EventFailed {
			return nil, ev.Err
		}
		if ev.Kind == canonical.EventCompleted {
			return agg.Final(), nil
		}
		agg.Apply(ev)
	}
	// Channel closed without a terminal event: only possible when the
	// stream was torn down underneath us.
	return nil, gwerr.Wrap(gwerr.KindInternal, ctx.Err(), "stream ended without terminal event")
}

type runParams struct {
	req     *canonical.Request
	backend *config.BackendProfile
	model   string
	caps    capability.Set
	adapter adapters.Adapter
	cred    credentials.Material
	lease   *budget.Lease
	hold    *cancelHolder
	es      *stream.EventStream
	started time.Time
}

// run drives the reliability layer and the response normalizer for one
// request on its own goroutine.
func (g *Gateway) run(ctx context.Context, p runParams) {
	norm := stream.NewNormalizer(p.req.ID, p.es, stream.Hooks{
		OnFirstEvent: func() {
			g.record(monitoring.Event{
				Type: monitoring.StreamFirstEvent, RequestID: p.req.ID,
				BackendID: p.backend.ID, Latency: time.Since(p.started),
			})
		},
		OnUsage: func(u canonical.Usage) {
			g.enforcer.RecordUsage(p.backend.ID, u)
		},
	})

	cancelled := false
	attempt := func(ctx context.Context, n int) reliability.AttemptResult {
		traceAttempt(p.req.ID, n, reliability.StateDispatching)
		inv, err := p.adapter.Invoke(ctx, adapters.InvokeParams{
			BackendID:  p.backend.ID,
			Model:      p.model,
			Endpoint:   p.backend.Endpoint,
			Credential: p.cred,
			Timeout:    p.lease.Timeout,
			Request:    p.req,
		})
		if err != nil {
			return reliability.AttemptResult{
				Err: gwerr.Wrap(gwerr.KindBackendTransient, err, "adapter dispatch failed"),
			}
		}
		p.hold.set(inv.Cancel)
		traceAttempt(p.req.ID, n, reliability.StateStreaming)

		res := norm.PumpAttempt(ctx, inv)
		if res.Cancelled {
			cancelled = true
		}
		if res.Err != nil && inv.Cancel != nil {
			// Abort the transport before any retry.
			inv.Cancel()
		}
		traceAttempt(p.req.ID, n, reliability.StateTerminal)
		return res
	}

	err := g.invoker.Run(ctx, p.backend.ID, p.caps.ResumableSafe, g.observer(p), attempt)

	switch {
	case cancelled:
		log.Debug().Str("request_id", p.req.ID).Msg("stream abandoned by consumer")
		g.record(monitoring.Event{
			Type: monitoring.RequestFailed, RequestID: p.req.ID, BackendID: p.backend.ID,
			ErrorKind: "cancelled", Latency: time.Since(p.started),
		})
		norm.Finish(gwerr.Wrap(gwerr.KindTimeout, ctx.Err(), "stream abandoned"))

	case err != nil:
		ge, ok := gwerr.As(err)
		if !ok {
			ge = gwerr.Wrap(gwerr.KindInternal, err, "pipeline failure")
		}
		if ge.BackendID == "" {
			ge = ge.WithBackend(p.backend.ID)
		}
		g.record(monitoring.Event{
			Type: monitoring.RequestFailed, RequestID: p.req.ID, BackendID: p.backend.ID,
			ErrorKind: string(ge.Kind), ErrorMsg: ge.Error(), Latency: time.Since(p.started),
		})
		norm.Finish(ge)

	default:
		g.accountUsage(p, norm)
		g.record(monitoring.Event{
			Type: monitoring.RequestCompleted, RequestID: p.req.ID, BackendID: p.backend.ID,
			Model: p.model, Latency: time.Since(p.started), UsageKnown: norm.UsageSeen(),
		})
		norm.Finish(nil)
	}
}

// accountUsage books estimated input tokens when the backend never reported
// usage. Accounting only; the stream has already completed.
func (g *Gateway) accountUsage(p runParams, norm *stream.Normalizer) {
	if norm.UsageSeen() {
		return
	}
	est := g.estimator.EstimateInput(p.req)
	if est.TotalTokens > 0 {
		g.enforcer.RecordUsage(p.backend.ID, est)
	}
}

func (g *Gateway) observer(p runParams) reliability.Observer {
	return &attemptObserver{g: g, requestID: p.req.ID, backendID: p.backend.ID}
}

type attemptObserver struct {
	g         *Gateway
	requestID string
	backendID string
}

func (o *attemptObserver) AttemptStarted(n int) {
	o.g.record(monitoring.Event{
		Type: monitoring.AttemptStarted, RequestID: o.requestID,
		BackendID: o.backendID, Attempt: n,
	})
}

func (o *attemptObserver) AttemptFailed(n int, latency time.Duration, err error) {
	o.g.record(monitoring.Event{
		Type: monitoring.AttemptFailed, RequestID: o.requestID,
		BackendID: o.backendID, Attempt: n, Latency: latency,
		ErrorKind: string(gwerr.KindOf(err)), ErrorMsg: err.Error(),
	})
}

func (g *Gateway) record(ev monitoring.Event) {
	ev.Timestamp = time.Now()
	g.sink.Record(ev)
}

func traceAttempt(requestID string, attempt int, state reliability.AttemptState) {
	log.Trace().
		Str("request_id", requestID).
		Int("attempt", attempt).
		Str("state", string(state)).
		Msg("attempt state")
}

// cancelHolder hands the current invocation's cancel hook to the teardown
// path. fire-before-set covers the race where the consumer closes the
// stream between attempts.
type cancelHolder struct {
	mu     sync.Mutex
	cancel func()
	fired  bool
}

func (h *cancelHolder) set(cancel func()) {
	h.mu.Lock()
	if h.fired {
		h.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	}
	h.cancel = cancel
	h.mu.Unlock()
}

func (h *cancelHolder) fire() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.fired = true
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
