// Package redact scrubs credential material before anything is logged or
// persisted. Telemetry sinks must pass raw provider payloads through Scrub.
package redact

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// sensitiveKeys are JSON paths deleted from raw payloads. Matched at the top
// level and one level under "headers"/"error".
var sensitiveKeys = []string{
	"api_key", "apikey", "authorization", "x-api-key", "access_token",
	"refresh_token", "secret", "credential",
}

// MaskKey masks an API key for safe logging (shows first 8 and last 4 chars).
func MaskKey(key string) string {
	if key == "" {
		return "(empty)"
	}
	if len(key) < 16 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

// Scrub removes known credential-bearing fields from a raw JSON payload.
// Non-JSON input is returned unchanged; it is the caller's job not to feed
// secrets through non-JSON channels.
func Scrub(raw []byte) []byte {
	if !gjson.ValidBytes(raw) {
		return raw
	}
	out := raw
	for _, key := range sensitiveKeys {
		for _, path := range []string{key, "headers." + key, "error." + key} {
			if gjson.GetBytes(out, path).Exists() {
				if cleaned, err := sjson.DeleteBytes(out, path); err == nil {
					out = cleaned
				}
			}
		}
	}
	return out
}
