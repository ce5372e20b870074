package budget

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/relaycore/inference-gateway/internal/canonical"
	"github.com/relaycore/inference-gateway/internal/config"
)

// AdmissionHook lets deployments plug usage-aware admission policy in front
// of the enforcer. How accumulated usage should influence admission (decay,
// window, threshold) is deliberately unspecified upstream, so the gateway
// ships only the hook and a no-op default.
type AdmissionHook interface {
	// Admit is consulted before any permit is taken. A non-nil error
	// refuses admission as budget_exceeded.
	Admit(backendID string) error

	// Observe receives best-effort usage after it is known.
	Observe(backendID string, usage canonical.Usage)
}

// NopHook admits everything and observes nothing.
type NopHook struct{}

func (NopHook) Admit(string) error              { return nil }
func (NopHook) Observe(string, canonical.Usage) {}

// usageLedger accumulates observed tokens per backend.
type usageLedger struct {
	mu     sync.Mutex
	totals map[string]canonical.Usage
}

func newUsageLedger() *usageLedger {
	return &usageLedger{totals: make(map[string]canonical.Usage)}
}

func (l *usageLedger) record(backendID string, u canonical.Usage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := l.totals[backendID]
	t.InputTokens += u.InputTokens
	t.OutputTokens += u.OutputTokens
	t.TotalTokens += u.TotalTokens
	t.Estimated = t.Estimated || u.Estimated
	l.totals[backendID] = t
}

func (l *usageLedger) snapshot() map[string]canonical.Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]canonical.Usage, len(l.totals))
	for k, v := range l.totals {
		out[k] = v
	}
	return out
}

// Estimator produces best-effort input token counts for backends that never
// report usage. Estimates are accounting-only and flagged as such.
type Estimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewOfflineEstimator returns an estimator that never sets up a tiktoken
// encoding and always uses the bytes heuristic. For air-gapped deployments
// where the encoding data cannot be fetched.
func NewOfflineEstimator() *Estimator {
	e := &Estimator{}
	e.once.Do(func() {})
	return e
}

// EstimateInput counts the text content of a request's messages. Falls back
// to a bytes/4 heuristic when the encoding is unavailable.
func (e *Estimator) EstimateInput(req *canonical.Request) canonical.Usage {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(config.EstimatorEncoding)
		if err == nil {
			e.enc = enc
		}
	})

	tokens := 0
	for _, m := range req.Messages {
		for _, p := range m.Parts {
			if p.Type != canonical.ContentPartText {
				continue
			}
			if e.enc != nil {
				tokens += len(e.enc.Encode(p.Text, nil, nil))
			} else {
				tokens += len(p.Text) / config.TokenEstimateRatio
			}
		}
	}
	return canonical.Usage{InputTokens: tokens, TotalTokens: tokens, Estimated: true}
}
