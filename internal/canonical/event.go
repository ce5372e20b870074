package canonical

// ToolCallStatus is the lifecycle of a tool call at the gateway boundary.
//
// Only partial and ready exist here. Executed/rejected are runtime states
// owned by whatever executes tools downstream; the gateway must never
// produce them.
type ToolCallStatus string

const (
	ToolCallPartial ToolCallStatus = "partial"
	ToolCallReady   ToolCallStatus = "ready"
)

// ToolCall is an accumulating tool invocation emitted by the model.
type ToolCall struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Args   string         `json:"args"`
	Status ToolCallStatus `json:"status"`
}

// EventKind discriminates the GatewayEvent union.
type EventKind string

const (
	EventStarted         EventKind = "started"
	EventOutputTextDelta EventKind = "output_text_delta"
	EventToolCallDelta   EventKind = "tool_call_delta"
	EventToolCallReady   EventKind = "tool_call_ready"
	EventUsage           EventKind = "usage"
	EventCompleted       EventKind = "completed"
	EventFailed          EventKind = "failed"
)

// Usage is best-effort token accounting reported by a backend. Absent or
// late usage is not an error.
type Usage struct {
	InputTokens  int  `json:"input_tokens"`
	OutputTokens int  `json:"output_tokens"`
	TotalTokens  int  `json:"total_tokens"`
	Estimated    bool `json:"estimated,omitempty"`
}

// Event is one element of the canonical per-request stream.
//
// Stream invariants (enforced by the response normalizer, re-verified in
// tests): the first event is Started; at most one Usage; exactly one of
// Completed or Failed; nothing follows the terminal event.
type Event struct {
	Kind      EventKind `json:"kind"`
	RequestID string    `json:"request_id"`

	// TextDelta is set for EventOutputTextDelta.
	TextDelta string `json:"text_delta,omitempty"`

	// ToolCall is set for EventToolCallDelta and EventToolCallReady. For
	// deltas, Args holds only the newly arrived fragment.
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// Usage is set for EventUsage.
	Usage *Usage `json:"usage,omitempty"`

	// Err is set for EventFailed.
	Err error `json:"-"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Kind == EventCompleted || e.Kind == EventFailed
}

// OutputBearing reports whether the event carries caller-visible output.
// Once one has been forwarded, the default retry policy forbids any
// further attempt for the request.
func (e Event) OutputBearing() bool {
	switch e.Kind {
	case EventOutputTextDelta, EventToolCallDelta, EventToolCallReady:
		return true
	}
	return false
}
