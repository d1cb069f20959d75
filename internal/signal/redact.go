package signal

import "strings"

// sensitiveKeys is matched case-insensitively against payload keys on the
// return path of every wait; matching values are replaced, never the
// bus-resident payload itself.
var sensitiveKeys = map[string]struct{}{
	"openai_api_key": {},
	"api_key":        {},
	"token":          {},
	"authorization":  {},
	"password":       {},
	"secret":         {},
}

const redactedValue = "[REDACTED]"

func isSensitiveKey(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

// redactPayload returns a copy of payload with sensitive values replaced.
// Nested mappings are redacted recursively; the input is never mutated.
func redactPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if isSensitiveKey(k) {
			out[k] = redactedValue
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = redactPayload(nested)
			continue
		}
		out[k] = v
	}
	return out
}
