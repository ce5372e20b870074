// Package capability declares per-backend feature support and guards
// requests against it before any budget or network resource is spent.
package capability

import (
	"github.com/relaycore/inference-gateway/internal/canonical"
	"github.com/relaycore/inference-gateway/internal/gwerr"
)

// Set declares what a backend supports. The zero value supports nothing.
type Set struct {
	Streaming     bool `yaml:"streaming" json:"streaming"`
	ToolCalls     bool `yaml:"tool_calls" json:"tool_calls"`
	JSONOutput    bool `yaml:"json_output" json:"json_output"`
	Vision        bool `yaml:"vision" json:"vision"`
	ResumableSafe bool `yaml:"resumable" json:"resumable"`
}

// Overrides selectively replaces fields of an adapter-declared Set. Nil
// pointers mean "keep the adapter's declaration".
type Overrides struct {
	Streaming     *bool `yaml:"streaming,omitempty"`
	ToolCalls     *bool `yaml:"tool_calls,omitempty"`
	JSONOutput    *bool `yaml:"json_output,omitempty"`
	Vision        *bool `yaml:"vision,omitempty"`
	ResumableSafe *bool `yaml:"resumable,omitempty"`
}

// Merge applies profile overrides over the adapter's static declaration.
func Merge(static Set, ov Overrides) Set {
	out := static
	if ov.Streaming != nil {
		out.Streaming = *ov.Streaming
	}
	if ov.ToolCalls != nil {
		out.ToolCalls = *ov.ToolCalls
	}
	if ov.JSONOutput != nil {
		out.JSONOutput = *ov.JSONOutput
	}
	if ov.Vision != nil {
		out.Vision = *ov.Vision
	}
	if ov.ResumableSafe != nil {
		out.ResumableSafe = *ov.ResumableSafe
	}
	return out
}

// Check compares a request's required features against the backend's
// effective capabilities. It has no side effects.
func Check(backendID string, caps Set, req *canonical.Request) error {
	missing := ""
	switch {
	case req.Stream && !caps.Streaming:
		missing = "streaming"
	case req.RequiresTools() && !caps.ToolCalls:
		missing = "tool_calls"
	case req.RequiresJSONOutput() && !caps.JSONOutput:
		missing = "json_output"
	case req.RequiresVision() && !caps.Vision:
		missing = "vision"
	}
	if missing == "" {
		return nil
	}
	return gwerr.Newf(gwerr.KindUnsupportedCapability,
		"backend %q does not support %s", backendID, missing).WithBackend(backendID)
}
