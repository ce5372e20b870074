package monitoring

import (
	"github.com/rs/zerolog/log"
)

// Sink receives lifecycle events. Implementations must be safe for
// concurrent use and must not block the pipeline for long; slow sinks
// should buffer internally.
type Sink interface {
	Record(ev Event)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Record(Event) {}

// LogSink writes lifecycle events through the zerolog global logger.
type LogSink struct{}

func (LogSink) Record(ev Event) {
	e := log.Info()
	if ev.Type == AttemptFailed || ev.Type == RequestFailed {
		e = log.Warn()
	}
	e = e.Str("event", string(ev.Type)).
		Str("request_id", ev.RequestID)
	if ev.BackendID != "" {
		e = e.Str("backend", ev.BackendID)
	}
	if ev.Model != "" {
		e = e.Str("model", ev.Model)
	}
	if ev.Attempt > 0 {
		e = e.Int("attempt", ev.Attempt)
	}
	if ev.Latency > 0 {
		e = e.Int64("latency_ms", ev.Latency.Milliseconds())
	}
	if ev.ErrorKind != "" {
		e = e.Str("error_kind", ev.ErrorKind).Str("error", ev.ErrorMsg)
	}
	if ev.UsageKnown {
		e = e.Int("input_tokens", ev.InputTokens).Int("output_tokens", ev.OutputTokens)
	}
	e.Msg("gateway event")
}

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

func (m MultiSink) Record(ev Event) {
	for _, s := range m {
		s.Record(ev)
	}
}
