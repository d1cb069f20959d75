// Package bus defines the topic-addressed append-only log contract shared
// by every adapter (in-memory fake, Redis Streams) and decorator
// (resilient, instrumented) in this tree.
package bus

import (
	"context"
	"time"

	"github.com/chris-alexander-pop/agentfabric/internal/model"
)

// Bus is a topic-addressed append-only log with two read disciplines: tail
// reads (non-blocking and blocking, keyed by a last-seen id) and, when an
// adapter is constructed with a consumer group, at-least-once group reads.
type Bus interface {
	// Publish appends one message to topic and returns its canonical id.
	// When msg.ID is set, that id is canonical; Fails if the transport is
	// unreachable.
	Publish(ctx context.Context, topic string, msg model.BusMessage) (string, error)

	// Read returns up to limit messages strictly after lastID, or the most
	// recent limit messages if lastID is empty. Non-blocking; may return an
	// empty slice.
	Read(ctx context.Context, topic string, lastID string, limit int) ([]model.BusMessage, error)

	// ReadBlocking behaves like Read but blocks up to blockMs waiting for at
	// least one message. Returns an empty slice on timeout.
	ReadBlocking(ctx context.Context, topic string, lastID string, limit int, blockMs int) ([]model.BusMessage, error)
}

// ReadBlockingOne is implemented by buses that can block natively for a
// single message (Redis Streams XREAD with BLOCK). The signal layer's wait
// algorithm prefers this over polling when an adapter supports it.
type ReadBlockingOne interface {
	ReadBlockingOne(ctx context.Context, topic string, lastID string, blockMs int) (*model.BusMessage, error)
}

// ReadAnyBlocking is implemented by buses that can block natively across
// several topics at once (Redis Streams XREAD with multiple stream keys).
// Returns the topic the message arrived on.
type ReadAnyBlocking interface {
	ReadAnyBlocking(ctx context.Context, topics []string, cursors map[string]string, blockMs int) (string, *model.BusMessage, error)
}

// emulateReadBlockingOne implements the ReadBlockingOne contract over the
// required interface, for decorators whose inner bus lacks the native
// primitive.
func emulateReadBlockingOne(ctx context.Context, b Bus, topic string, lastID string, blockMs int) (*model.BusMessage, error) {
	msgs, err := b.ReadBlocking(ctx, topic, lastID, 1, blockMs)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	msg := msgs[0]
	return &msg, nil
}

// emulateReadAnyBlocking implements the ReadAnyBlocking contract as a
// bounded polling sweep over the required interface.
func emulateReadAnyBlocking(ctx context.Context, b Bus, topics []string, cursors map[string]string, blockMs int) (string, *model.BusMessage, error) {
	deadline := time.Now().Add(time.Duration(blockMs) * time.Millisecond)
	for {
		for _, t := range topics {
			msgs, err := b.Read(ctx, t, cursors[t], 1)
			if err != nil {
				return "", nil, err
			}
			if len(msgs) > 0 {
				msg := msgs[0]
				return t, &msg, nil
			}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 || ctx.Err() != nil {
			return "", nil, nil
		}
		sleepFor := 50 * time.Millisecond
		if remaining < sleepFor {
			sleepFor = remaining
		}
		time.Sleep(sleepFor)
	}
}

// Config is the environment-driven configuration for constructing a Bus.
type Config struct {
	// Driver selects the adapter: "memory" or "redis".
	Driver string `env:"BUS_DRIVER" env-default:"memory"`

	// RedisURL is used by the redis driver.
	RedisURL string `env:"BUS_REDIS_URL" env-default:"redis://localhost:6379/0"`

	// GroupName, when non-empty, puts the bus into consumer-group mode:
	// reads deliver only entries never yet delivered to the group, and the
	// bus acknowledges each message after conversion.
	GroupName string `env:"BUS_GROUP_NAME"`

	// ConsumerName identifies this consumer within GroupName. A random
	// value is generated when empty.
	ConsumerName string `env:"BUS_CONSUMER_NAME"`

	// StreamMaxLen, when positive, hints the transport to approximately cap
	// a topic's retained length on publish.
	StreamMaxLen int64 `env:"BUS_STREAM_MAXLEN" env-default:"0"`
}
