// Package canonical defines the backend-neutral request and event shapes.
//
// DESIGN: Everything a caller submits is converted to CanonicalRequest by the
// normalizer before any backend, credential, or network resource is touched,
// and every backend response is converted to the GatewayEvent stream. Adapters
// are the only code that sees provider wire formats.
//
// Types are defined here to avoid circular imports and provide clear contracts.
package canonical

import "encoding/json"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether the role is one of the four canonical roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ContentPartType discriminates message content segments.
type ContentPartType string

const (
	ContentPartText  ContentPartType = "text"
	ContentPartImage ContentPartType = "image"
	ContentPartJSON  ContentPartType = "json"
)

// ContentPart is one segment of a message: text, an image reference, or a
// structured JSON payload.
type ContentPart struct {
	Type ContentPartType `json:"type"`

	// Text is set for ContentPartText.
	Text string `json:"text,omitempty"`

	// ImageURL is set for ContentPartImage. The gateway carries the
	// reference opaquely; adapters resolve or inline it per dialect.
	ImageURL string `json:"image_url,omitempty"`

	// JSON is set for ContentPartJSON.
	JSON json.RawMessage `json:"json,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart { return ContentPart{Type: ContentPartText, Text: text} }

// ImagePart builds an image reference content part.
func ImagePart(url string) ContentPart { return ContentPart{Type: ContentPartImage, ImageURL: url} }

// JSONPart builds a structured JSON content part.
func JSONPart(raw json.RawMessage) ContentPart {
	return ContentPart{Type: ContentPartJSON, JSON: append(json.RawMessage(nil), raw...)}
}

// Message is one canonical chat message.
//
// Invariant: ToolCallID and ToolName are set if and only if Role is RoleTool,
// and a tool message carries no image parts. The normalizer enforces this.
type Message struct {
	Role  Role          `json:"role"`
	Parts []ContentPart `json:"parts"`

	// ToolCallID/ToolName link a tool-result message to the assistant tool
	// call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// ToolChoice constrains how the model may call tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// OutputMode selects free text or JSON-constrained output.
type OutputMode string

const (
	OutputModeText OutputMode = "text"
	OutputModeJSON OutputMode = "json"
)

// ResourceLimits bounds one request. Zero values mean "no per-request bound";
// global and per-backend bounds still apply.
type ResourceLimits struct {
	MaxOutputTokens int   `json:"max_output_tokens,omitempty"`
	TimeoutMillis   int64 `json:"timeout_millis,omitempty"`
}

// Request is the canonical inference request. It is immutable once built by
// the normalizer; all pipeline stages treat it as read-only.
type Request struct {
	// ID is a stable request identifier, generated when the caller
	// supplies none.
	ID string `json:"id"`

	// BackendHint optionally names a route alias or a "backend/model" pair.
	// Empty means the "default" alias.
	BackendHint string `json:"backend_hint,omitempty"`

	// ModelOverride replaces the routed model id when set.
	ModelOverride string `json:"model_override,omitempty"`

	Messages   []Message        `json:"messages"`
	Tools      []ToolDefinition `json:"tools,omitempty"`
	ToolChoice ToolChoice       `json:"tool_choice,omitempty"`
	OutputMode OutputMode       `json:"output_mode,omitempty"`
	Limits     ResourceLimits   `json:"limits,omitempty"`

	// Metadata is an opaque string bag carried through to telemetry.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Stream selects the streaming entry point behavior for adapters that
	// distinguish the two at the wire level.
	Stream bool `json:"stream,omitempty"`
}

// RequiresTools reports whether the request offers or demands tool calls.
func (r *Request) RequiresTools() bool {
	return len(r.Tools) > 0 || r.ToolChoice == ToolChoiceRequired
}

// RequiresVision reports whether any message carries an image part.
func (r *Request) RequiresVision() bool {
	for _, m := range r.Messages {
		for _, p := range m.Parts {
			if p.Type == ContentPartImage {
				return true
			}
		}
	}
	return false
}

// RequiresJSONOutput reports whether JSON-constrained output was requested.
func (r *Request) RequiresJSONOutput() bool { return r.OutputMode == OutputModeJSON }
