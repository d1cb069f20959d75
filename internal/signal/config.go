package signal

import "time"

// DefaultPayloadCapBytes is the compact-JSON payload cap applied when Config
// leaves PayloadCapBytes unset or set to a non-positive value.
const DefaultPayloadCapBytes = 65536

// pollInterval is the fixed polling cadence used once a wait falls through
// both the fast path and any native blocking primitive.
const pollInterval = 50 * time.Millisecond

// Config configures one Signaler.
type Config struct {
	// TopicPrefix, when non-empty, is required as a prefix of every topic
	// passed to Send/Wait/WaitAny/WaitAll. Empty means no policy.
	TopicPrefix string `env:"SIGNAL_TOPIC_PREFIX" env-default:""`

	// PayloadCapBytes bounds a Send payload's compact-JSON length.
	// Non-positive falls back to DefaultPayloadCapBytes.
	PayloadCapBytes int `env:"SIGNAL_PAYLOAD_CAP_BYTES" env-default:"65536"`

	// AutoChildSignalDone enables the worker's orchestrate.done_topic
	// convention: when true, a successful run whose inbound envelope names
	// a done topic emits an empty signal_send on it.
	AutoChildSignalDone bool `env:"SIGNAL_AUTO_CHILD_DONE" env-default:"true"`
}

func (c Config) payloadCap() int {
	if c.PayloadCapBytes <= 0 {
		return DefaultPayloadCapBytes
	}
	return c.PayloadCapBytes
}
