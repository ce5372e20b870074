// Package normalize validates caller requests into canonical form.
//
// DESIGN: This is the single point before which no backend, credential, or
// network resource has been touched. Normalize is total and side-effect-free:
// every input yields either a CanonicalRequest or an invalid_request error,
// never a backend-specific error and never a panic.
package normalize

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/relaycore/inference-gateway/internal/canonical"
	"github.com/relaycore/inference-gateway/internal/gwerr"
)

// unsupportedSchemaKeywords are JSON-Schema keywords no supported dialect
// accepts in tool definitions. Requests using them are rejected up front so
// the failure is deterministic instead of provider-dependent.
var unsupportedSchemaKeywords = map[string]bool{
	"$ref":                  true,
	"$dynamicRef":           true,
	"$recursiveRef":         true,
	"unevaluatedProperties": true,
	"unevaluatedItems":      true,
}

// Normalize validates req and returns an immutable canonical copy with a
// request id assigned.
func Normalize(req *canonical.Request) (*canonical.Request, error) {
	if req == nil {
		return nil, gwerr.New(gwerr.KindInvalidRequest, "request is nil")
	}
	if len(req.Messages) == 0 {
		return nil, gwerr.New(gwerr.KindInvalidRequest, "message list is empty")
	}

	out := *req
	if strings.TrimSpace(out.ID) == "" {
		out.ID = uuid.New().String()
	}
	if out.ToolChoice == "" {
		out.ToolChoice = canonical.ToolChoiceAuto
	}
	if out.OutputMode == "" {
		out.OutputMode = canonical.OutputModeText
	}

	// Deep-copy message parts and tool schemas so the canonical request
	// shares no mutable memory with the caller's.
	out.Messages = append([]canonical.Message(nil), req.Messages...)
	for i := range out.Messages {
		m := &out.Messages[i]
		m.Parts = append([]canonical.ContentPart(nil), m.Parts...)
		for j := range m.Parts {
			if len(m.Parts[j].JSON) > 0 {
				m.Parts[j].JSON = append(json.RawMessage(nil), m.Parts[j].JSON...)
			}
		}
		if err := validateMessage(i, m); err != nil {
			return nil, err
		}
	}

	out.Tools = append([]canonical.ToolDefinition(nil), req.Tools...)
	for i := range out.Tools {
		if len(out.Tools[i].InputSchema) > 0 {
			out.Tools[i].InputSchema = append(json.RawMessage(nil), out.Tools[i].InputSchema...)
		}
		if err := validateTool(&out.Tools[i]); err != nil {
			return nil, err
		}
	}

	if out.Metadata != nil {
		md := make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			md[k] = v
		}
		out.Metadata = md
	}
	return &out, nil
}

func validateMessage(idx int, m *canonical.Message) error {
	if !m.Role.Valid() {
		return gwerr.Newf(gwerr.KindInvalidRequest, "message %d: unknown role %q", idx, m.Role)
	}
	if len(m.Parts) == 0 {
		return gwerr.Newf(gwerr.KindInvalidRequest, "message %d: no content parts", idx)
	}

	// Tool linkage invariant: tool_call_id/tool_name iff role=tool.
	if m.Role == canonical.RoleTool {
		if m.ToolCallID == "" || m.ToolName == "" {
			return gwerr.Newf(gwerr.KindInvalidRequest,
				"message %d: tool message requires tool_call_id and tool_name", idx)
		}
		for _, p := range m.Parts {
			if p.Type == canonical.ContentPartImage {
				return gwerr.Newf(gwerr.KindInvalidRequest,
					"message %d: tool message must not contain image parts", idx)
			}
		}
	} else if m.ToolCallID != "" || m.ToolName != "" {
		return gwerr.Newf(gwerr.KindInvalidRequest,
			"message %d: tool_call_id/tool_name only valid with role=tool", idx)
	}

	for j, p := range m.Parts {
		switch p.Type {
		case canonical.ContentPartText, canonical.ContentPartImage:
		case canonical.ContentPartJSON:
			if !gjson.ValidBytes(p.JSON) {
				return gwerr.Newf(gwerr.KindInvalidRequest,
					"message %d part %d: malformed json content", idx, j)
			}
		default:
			return gwerr.Newf(gwerr.KindInvalidRequest,
				"message %d part %d: unknown content type %q", idx, j, p.Type)
		}
	}
	return nil
}

func validateTool(t *canonical.ToolDefinition) error {
	if strings.TrimSpace(t.Name) == "" {
		return gwerr.New(gwerr.KindInvalidRequest, "tool definition missing name")
	}
	if len(t.InputSchema) == 0 {
		return nil
	}
	if !gjson.ValidBytes(t.InputSchema) {
		return gwerr.Newf(gwerr.KindInvalidRequest, "tool %q: malformed input schema", t.Name)
	}
	if kw := findUnsupportedKeyword(gjson.ParseBytes(t.InputSchema)); kw != "" {
		return gwerr.Newf(gwerr.KindInvalidRequest,
			"tool %q: unsupported schema keyword %q", t.Name, kw)
	}
	return nil
}

// findUnsupportedKeyword walks the schema tree and returns the first
// unsupported keyword encountered, or "".
func findUnsupportedKeyword(v gjson.Result) string {
	found := ""
	switch {
	case v.IsObject():
		v.ForEach(func(key, val gjson.Result) bool {
			if unsupportedSchemaKeywords[key.String()] {
				found = key.String()
				return false
			}
			if kw := findUnsupportedKeyword(val); kw != "" {
				found = kw
				return false
			}
			return true
		})
	case v.IsArray():
		for _, el := range v.Array() {
			if kw := findUnsupportedKeyword(el); kw != "" {
				return kw
			}
		}
	}
	return found
}
