package bus

import (
	"context"
	"time"

	"github.com/chris-alexander-pop/agentfabric/internal/model"
	"github.com/chris-alexander-pop/agentfabric/pkg/resilience"
)

// ResilientConfig configures the resilient decorator.
type ResilientConfig struct {
	CircuitBreakerEnabled   bool          `env:"BUS_CB_ENABLED" env-default:"true"`
	CircuitBreakerThreshold int64         `env:"BUS_CB_THRESHOLD" env-default:"5"`
	CircuitBreakerTimeout   time.Duration `env:"BUS_CB_TIMEOUT" env-default:"30s"`

	RetryEnabled     bool          `env:"BUS_RETRY_ENABLED" env-default:"true"`
	RetryMaxAttempts int           `env:"BUS_RETRY_MAX" env-default:"3"`
	RetryBackoff     time.Duration `env:"BUS_RETRY_BACKOFF" env-default:"100ms"`
}

// Resilient wraps a Bus with circuit breaker and retry support on Publish
// and the non-blocking Read; ReadBlocking is left unwrapped since its own
// blockMs already bounds the call and retrying it would multiply the wait.
type Resilient struct {
	next     Bus
	cb       *resilience.CircuitBreaker
	retryCfg resilience.RetryConfig
}

// NewResilient wraps next with the configured resilience behavior.
func NewResilient(next Bus, cfg ResilientConfig) *Resilient {
	r := &Resilient{next: next}

	if cfg.CircuitBreakerEnabled {
		r.cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "bus",
			FailureThreshold: cfg.CircuitBreakerThreshold,
			SuccessThreshold: 2,
			Timeout:          cfg.CircuitBreakerTimeout,
		})
	}

	if cfg.RetryEnabled {
		r.retryCfg = resilience.RetryConfig{
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialBackoff: cfg.RetryBackoff,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2.0,
		}
	}

	return r
}

func (r *Resilient) execute(ctx context.Context, fn resilience.Executor) error {
	operation := fn
	if r.cb != nil {
		cbFn := operation
		operation = func(ctx context.Context) error {
			return r.cb.Execute(ctx, cbFn)
		}
	}
	if r.retryCfg.MaxAttempts > 0 {
		return resilience.Retry(ctx, r.retryCfg, operation)
	}
	return operation(ctx)
}

func (r *Resilient) Publish(ctx context.Context, topic string, msg model.BusMessage) (string, error) {
	var id string
	err := r.execute(ctx, func(ctx context.Context) error {
		var err error
		id, err = r.next.Publish(ctx, topic, msg)
		return err
	})
	return id, err
}

func (r *Resilient) Read(ctx context.Context, topic string, lastID string, limit int) ([]model.BusMessage, error) {
	var out []model.BusMessage
	err := r.execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.next.Read(ctx, topic, lastID, limit)
		return err
	})
	return out, err
}

func (r *Resilient) ReadBlocking(ctx context.Context, topic string, lastID string, limit int, blockMs int) ([]model.BusMessage, error) {
	return r.next.ReadBlocking(ctx, topic, lastID, limit, blockMs)
}

// ReadBlockingOne forwards to next when it supports the optional interface,
// so the decorator doesn't mask native blocking reads from the signal layer.
// An adapter without the native primitive is emulated via ReadBlocking, so
// the call still honors blockMs.
func (r *Resilient) ReadBlockingOne(ctx context.Context, topic string, lastID string, blockMs int) (*model.BusMessage, error) {
	if one, ok := r.next.(ReadBlockingOne); ok {
		return one.ReadBlockingOne(ctx, topic, lastID, blockMs)
	}
	return emulateReadBlockingOne(ctx, r.next, topic, lastID, blockMs)
}

// ReadAnyBlocking forwards to next when it supports the optional interface,
// emulating the multi-topic block with a bounded polling sweep otherwise.
func (r *Resilient) ReadAnyBlocking(ctx context.Context, topics []string, cursors map[string]string, blockMs int) (string, *model.BusMessage, error) {
	if any, ok := r.next.(ReadAnyBlocking); ok {
		return any.ReadAnyBlocking(ctx, topics, cursors, blockMs)
	}
	return emulateReadAnyBlocking(ctx, r.next, topics, cursors, blockMs)
}
