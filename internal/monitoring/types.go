// Package monitoring - types.go defines the lifecycle events emitted by the
// gateway pipeline. Sinks receive these; they never receive secret material.
package monitoring

import "time"

// EventType names a pipeline lifecycle moment.
type EventType string

const (
	RequestStarted   EventType = "request_started"
	AttemptStarted   EventType = "attempt_started"
	AttemptFailed    EventType = "attempt_failed"
	StreamFirstEvent EventType = "stream_first_event"
	RequestCompleted EventType = "request_completed"
	RequestFailed    EventType = "request_failed"
)

// Event is one telemetry record. Fields are populated as far as they are
// known at the moment of emission; usage in particular is best-effort.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	RequestID string `json:"request_id"`
	BackendID string `json:"backend_id,omitempty"`
	Model     string `json:"model,omitempty"`
	Dialect   string `json:"dialect,omitempty"`

	Attempt   int           `json:"attempt,omitempty"`
	Latency   time.Duration `json:"latency_ns,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	ErrorMsg  string        `json:"error,omitempty"`

	InputTokens  int  `json:"input_tokens,omitempty"`
	OutputTokens int  `json:"output_tokens,omitempty"`
	TotalTokens  int  `json:"total_tokens,omitempty"`
	UsageKnown   bool `json:"usage_known,omitempty"`
}
