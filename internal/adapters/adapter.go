// Package adapters defines the backend adapter contract.
//
// DESIGN: One adapter per dialect owns transport and wire-protocol mapping.
// The gateway core depends only on this contract: it hands an adapter a
// resolved backend+model, resolved credentials, an effective timeout, and the
// canonical request, and gets back a raw event stream plus an optional cancel
// hook. The core never branches on dialect identity after routing.
package adapters

import (
	"context"
	"time"

	"github.com/relaycore/inference-gateway/internal/canonical"
	"github.com/relaycore/inference-gateway/internal/capability"
	"github.com/relaycore/inference-gateway/internal/credentials"
)

// RawEventKind discriminates backend-native events after the adapter's own
// wire decoding. Providers map their SSE/NDJSON/RPC frames onto these.
type RawEventKind string

const (
	RawTextDelta     RawEventKind = "text_delta"
	RawToolCallDelta RawEventKind = "tool_call_delta"
	RawToolCallDone  RawEventKind = "tool_call_done"
	RawUsage         RawEventKind = "usage"
	RawDone          RawEventKind = "done"
	RawError         RawEventKind = "error"
)

// RawEvent is one backend-native event. Payload carries the original provider
// frame for error-code probing and debug logging; it must never contain
// resolved credentials.
type RawEvent struct {
	Kind RawEventKind

	TextDelta string

	ToolCallID   string
	ToolCallName string
	// ToolCallArgs holds the newly arrived argument fragment for deltas,
	// or the full argument string for RawToolCallDone.
	ToolCallArgs string

	InputTokens  int
	OutputTokens int

	// Err is set for RawError. Adapters classify it with gwerr before
	// emitting where possible.
	Err error

	Payload []byte
}

// InvokeParams is everything an adapter needs for one attempt.
type InvokeParams struct {
	BackendID  string
	Model      string
	Endpoint   string
	Credential credentials.Material
	Timeout    time.Duration
	Request    *canonical.Request
}

// Invocation is one in-flight backend call.
type Invocation struct {
	// Events yields raw events until the adapter closes the channel.
	// A well-behaved adapter ends with RawDone or RawError; a channel
	// closed without either is a protocol violation the response
	// normalizer surfaces as failed.
	Events <-chan RawEvent

	// Cancel aborts the underlying transport. Optional; may be nil.
	Cancel func()
}

// Adapter is implemented once per dialect, externally to the core pipeline.
type Adapter interface {
	// Dialect names the wire/API family this adapter speaks.
	Dialect() string

	// Capabilities is the adapter's static feature declaration. Profile
	// overrides are merged over it by the capability guard.
	Capabilities() capability.Set

	// Invoke starts one backend call. An immediate error means nothing
	// was dispatched; once an Invocation is returned, failures arrive as
	// RawError events.
	Invoke(ctx context.Context, params InvokeParams) (*Invocation, error)
}
