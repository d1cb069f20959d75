package bus

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chris-alexander-pop/agentfabric/internal/bus/adapters/memory"
	"github.com/chris-alexander-pop/agentfabric/internal/bus/adapters/redisstream"
)

// New constructs the configured Bus driver, wrapped with the resilient and
// instrumented decorators in that order (so a span covers a call including
// its retries). The returned close func releases the underlying transport
// (a no-op for the memory driver) and must be called on shutdown.
func New(cfg Config, resCfg ResilientConfig) (Bus, func() error, error) {
	consumer := cfg.ConsumerName
	if consumer == "" {
		consumer = uuid.New().String()
	}
	switch cfg.Driver {
	case "", "memory":
		m := memory.New()
		if cfg.GroupName != "" {
			m = m.WithGroup(cfg.GroupName, consumer)
		}
		return decorate(m, resCfg), func() error { return nil }, nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, InvalidTopic(fmt.Sprintf("invalid redis url: %v", err))
		}
		client := redis.NewClient(opts)

		var streamOpts []redisstream.Option
		if cfg.StreamMaxLen > 0 {
			streamOpts = append(streamOpts, redisstream.WithStreamMaxLen(cfg.StreamMaxLen))
		}
		adapter := redisstream.New(client, cfg.GroupName, consumer, streamOpts...)
		return decorate(adapter, resCfg), client.Close, nil
	default:
		return nil, nil, InvalidTopic(fmt.Sprintf("unknown bus driver %q", cfg.Driver))
	}
}

func decorate(b Bus, resCfg ResilientConfig) Bus {
	return NewInstrumented(NewResilient(b, resCfg))
}
