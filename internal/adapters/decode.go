package adapters

import (
	"github.com/tidwall/gjson"
)

// DecodeChunk maps one OpenAI-compatible streaming chunk (chat.completions
// wire format, also spoken by Ollama and most self-hosted gateways) to raw
// events. Adapter implementations that talk this dialect feed each decoded
// SSE data payload through here instead of hand-parsing deltas.
//
// Unrecognized payloads decode to no events; the caller decides whether a
// silent chunk is tolerable for its dialect.
func DecodeChunk(payload []byte) []RawEvent {
	if !gjson.ValidBytes(payload) {
		return nil
	}
	root := gjson.ParseBytes(payload)
	var events []RawEvent

	choice := root.Get("choices.0")
	if choice.Exists() {
		delta := choice.Get("delta")
		if text := delta.Get("content"); text.Exists() && text.String() != "" {
			events = append(events, RawEvent{
				Kind:      RawTextDelta,
				TextDelta: text.String(),
				Payload:   payload,
			})
		}
		delta.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
			events = append(events, RawEvent{
				Kind:         RawToolCallDelta,
				ToolCallID:   tc.Get("id").String(),
				ToolCallName: tc.Get("function.name").String(),
				ToolCallArgs: tc.Get("function.arguments").String(),
				Payload:      payload,
			})
			return true
		})
		if fr := choice.Get("finish_reason"); fr.Exists() && fr.String() != "" {
			events = append(events, RawEvent{Kind: RawDone, Payload: payload})
		}
	}

	if in, out, ok := extractUsage(root); ok {
		// Usage before the done marker so the pump books it on this attempt.
		usage := RawEvent{Kind: RawUsage, InputTokens: in, OutputTokens: out, Payload: payload}
		if len(events) > 0 && events[len(events)-1].Kind == RawDone {
			events = append(events[:len(events)-1], usage, RawEvent{Kind: RawDone, Payload: payload})
		} else {
			events = append(events, usage)
		}
	}
	return events
}

// extractUsage reads token counts from the chunk. Ollama reports
// prompt_eval_count/eval_count at the top level; OpenAI-compatible servers
// report usage.prompt_tokens/usage.completion_tokens. Some Ollama versions
// return either, so both are tried.
func extractUsage(root gjson.Result) (in, out int, ok bool) {
	pe := root.Get("prompt_eval_count")
	ec := root.Get("eval_count")
	if pe.Exists() || ec.Exists() {
		if pe.Int() > 0 || ec.Int() > 0 {
			return int(pe.Int()), int(ec.Int()), true
		}
	}
	usage := root.Get("usage")
	if !usage.Exists() || usage.Type == gjson.Null {
		return 0, 0, false
	}
	in = int(usage.Get("prompt_tokens").Int())
	out = int(usage.Get("completion_tokens").Int())
	return in, out, in > 0 || out > 0
}
