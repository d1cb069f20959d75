package redisstream

import "encoding/json"

// encodePayload serializes a message payload to the JSON string stored in
// the stream entry's payload field.
func encodePayload(payload map[string]any) (string, error) {
	if payload == nil {
		return "{}", nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodePayload is the inverse of encodePayload. raw may be any type
// go-redis hands back (string or []byte depending on the client config).
func decodePayload(raw any) (map[string]any, error) {
	var b []byte
	switch v := raw.(type) {
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return map[string]any{}, nil
	}
	out := map[string]any{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
