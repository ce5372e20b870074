// Package gateway composes the request-processing pipeline behind two entry
// points: a streaming call and a non-streaming call that aggregates the
// stream.
//
// DESIGN: Control flow per request:
//   normalize → route → capability guard → budget acquire → reliability
//   layer → adapter → response normalizer → emit; budget release on
//   terminal or cancel.
//
// The gateway owns the per-backend breaker and budget registries,
// constructed once and shared by reference into the reliability and budget
// layers. No global lock spans the pipeline.
package gateway

import (
	"github.com/relaycore/inference-gateway/internal/adapters"
	"github.com/relaycore/inference-gateway/internal/budget"
	"github.com/relaycore/inference-gateway/internal/config"
	"github.com/relaycore/inference-gateway/internal/credentials"
	"github.com/relaycore/inference-gateway/internal/monitoring"
	"github.com/relaycore/inference-gateway/internal/reliability"
	"github.com/relaycore/inference-gateway/internal/route"
)

// Gateway is the backend-neutral inference boundary.
type Gateway struct {
	cfg      *config.Config
	registry *adapters.Registry
	resolver credentials.Resolver
	sink     monitoring.Sink

	router    *route.Router
	enforcer  *budget.Enforcer
	breakers  *reliability.BreakerRegistry
	invoker   *reliability.Invoker
	estimator *budget.Estimator
}

// Option configures optional gateway collaborators.
type Option func(*options)

type options struct {
	resolver  credentials.Resolver
	sink      monitoring.Sink
	hook      budget.AdmissionHook
	estimator *budget.Estimator
}

// WithResolver replaces the default static credential resolver.
func WithResolver(r credentials.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithSink sets the telemetry sink. Default is the no-op sink.
func WithSink(s monitoring.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithAdmissionHook plugs a usage-aware admission policy into the budget
// enforcer.
func WithAdmissionHook(h budget.AdmissionHook) Option {
	return func(o *options) { o.hook = h }
}

// WithEstimator replaces the default usage estimator, e.g. with the offline
// variant for air-gapped deployments.
func WithEstimator(e *budget.Estimator) Option {
	return func(o *options) { o.estimator = e }
}

// New builds a gateway over loaded configuration and registered adapters.
func New(cfg *config.Config, registry *adapters.Registry, opts ...Option) *Gateway {
	o := &options{
		resolver:  credentials.StaticResolver{},
		sink:      monitoring.NopSink{},
		estimator: &budget.Estimator{},
	}
	for _, opt := range opts {
		opt(o)
	}

	breakers := reliability.NewBreakerRegistry(cfg.Reliability)
	return &Gateway{
		cfg:       cfg,
		registry:  registry,
		resolver:  o.resolver,
		sink:      o.sink,
		router:    route.New(cfg),
		enforcer:  budget.NewEnforcer(cfg, o.hook),
		breakers:  breakers,
		invoker:   reliability.NewInvoker(cfg.Reliability, breakers),
		estimator: o.estimator,
	}
}

// Enforcer exposes the budget layer for usage snapshots.
func (g *Gateway) Enforcer() *budget.Enforcer { return g.enforcer }
