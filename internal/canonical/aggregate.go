package canonical

// FinalResponse is the aggregate of one completed event stream, returned by
// the non-streaming entry point.
type FinalResponse struct {
	RequestID string     `json:"request_id"`
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`
}

// Aggregator folds a canonical event stream into a FinalResponse.
// It is tolerant of partial tool call deltas arriving out of completion
// order for distinct call ids.
type Aggregator struct {
	requestID string
	text      []byte
	calls     []ToolCall
	byID      map[string]int
	usage     *Usage
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{byID: make(map[string]int)}
}

// Apply folds one event. Terminal events are ignored; callers decide how to
// surface Completed/Failed.
func (a *Aggregator) Apply(ev Event) {
	if a.requestID == "" {
		a.requestID = ev.RequestID
	}
	switch ev.Kind {
	case EventOutputTextDelta:
		a.text = append(a.text, ev.TextDelta...)
	case EventToolCallDelta:
		if ev.ToolCall == nil {
			return
		}
		tc := a.call(ev.ToolCall.ID)
		if ev.ToolCall.Name != "" {
			tc.Name = ev.ToolCall.Name
		}
		tc.Args += ev.ToolCall.Args
		tc.Status = ToolCallPartial
	case EventToolCallReady:
		if ev.ToolCall == nil {
			return
		}
		tc := a.call(ev.ToolCall.ID)
		if ev.ToolCall.Name != "" {
			tc.Name = ev.ToolCall.Name
		}
		if ev.ToolCall.Args != "" {
			tc.Args = ev.ToolCall.Args
		}
		tc.Status = ToolCallReady
	case EventUsage:
		if ev.Usage != nil {
			cp := *ev.Usage
			a.usage = &cp
		}
	}
}

func (a *Aggregator) call(id string) *ToolCall {
	if idx, ok := a.byID[id]; ok {
		return &a.calls[idx]
	}
	a.calls = append(a.calls, ToolCall{ID: id, Status: ToolCallPartial})
	a.byID[id] = len(a.calls) - 1
	return &a.calls[len(a.calls)-1]
}

// Final returns the aggregate. Only tool calls that reached ready status are
// included; partials were never complete enough to hand to a caller.
func (a *Aggregator) Final() *FinalResponse {
	resp := &FinalResponse{RequestID: a.requestID, Text: string(a.text), Usage: a.usage}
	for _, tc := range a.calls {
		if tc.Status == ToolCallReady {
			resp.ToolCalls = append(resp.ToolCalls, tc)
		}
	}
	return resp
}
