package gateway

// Config is the environment-driven configuration for cmd/gateway.
type Config struct {
	// Addr is the address the HTTP server listens on.
	Addr string `env:"GATEWAY_ADDR" env-default:":8080"`

	// SSEEventCap bounds how many events a single /stream connection emits
	// before closing, when the caller doesn't pass ?max_events. Zero means
	// unbounded.
	SSEEventCap int `env:"GATEWAY_SSE_EVENT_CAP" env-default:"0"`

	// PayloadCapBytes bounds the serialized size of a single stream event;
	// an oversized event is replaced with a model.TruncatedEvent before
	// being sent to the client.
	PayloadCapBytes int `env:"GATEWAY_PAYLOAD_CAP_BYTES" env-default:"65536" validate:"gt=0"`

	// RateLimitPerMinute bounds POST /send requests per client IP.
	RateLimitPerMinute int64 `env:"GATEWAY_RATE_LIMIT_PER_MINUTE" env-default:"120"`

	// MaxConcurrentStreams bounds open /stream connections; requests beyond
	// the bound get 503 rather than queueing. Zero means unbounded.
	MaxConcurrentStreams int64 `env:"GATEWAY_MAX_CONCURRENT_STREAMS" env-default:"0"`
}
