package bus

import (
	"context"

	"github.com/chris-alexander-pop/agentfabric/internal/model"
	"github.com/chris-alexander-pop/agentfabric/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Instrumented wraps a Bus with structured logging and tracing spans on
// every call.
type Instrumented struct {
	next   Bus
	tracer trace.Tracer
}

// NewInstrumented wraps next with logging/tracing.
func NewInstrumented(next Bus) *Instrumented {
	return &Instrumented{next: next, tracer: otel.Tracer("internal/bus")}
}

func (b *Instrumented) Publish(ctx context.Context, topic string, msg model.BusMessage) (string, error) {
	ctx, span := b.tracer.Start(ctx, "bus.Publish", trace.WithAttributes(
		attribute.String("bus.topic", topic),
	))
	defer span.End()

	id, err := b.next.Publish(ctx, topic, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "bus publish failed", "topic", topic, "error", err)
		return id, err
	}
	span.SetAttributes(attribute.String("bus.message_id", id))
	span.SetStatus(codes.Ok, "published")
	return id, nil
}

func (b *Instrumented) Read(ctx context.Context, topic string, lastID string, limit int) ([]model.BusMessage, error) {
	ctx, span := b.tracer.Start(ctx, "bus.Read", trace.WithAttributes(
		attribute.String("bus.topic", topic),
		attribute.Int("bus.limit", limit),
	))
	defer span.End()

	msgs, err := b.next.Read(ctx, topic, lastID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "bus read failed", "topic", topic, "error", err)
		return msgs, err
	}
	span.SetAttributes(attribute.Int("bus.returned", len(msgs)))
	return msgs, nil
}

func (b *Instrumented) ReadBlocking(ctx context.Context, topic string, lastID string, limit int, blockMs int) ([]model.BusMessage, error) {
	ctx, span := b.tracer.Start(ctx, "bus.ReadBlocking", trace.WithAttributes(
		attribute.String("bus.topic", topic),
		attribute.Int("bus.block_ms", blockMs),
	))
	defer span.End()

	msgs, err := b.next.ReadBlocking(ctx, topic, lastID, limit, blockMs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "bus read_blocking failed", "topic", topic, "error", err)
		return msgs, err
	}
	span.SetAttributes(attribute.Int("bus.returned", len(msgs)))
	return msgs, nil
}

func (b *Instrumented) ReadBlockingOne(ctx context.Context, topic string, lastID string, blockMs int) (*model.BusMessage, error) {
	ctx, span := b.tracer.Start(ctx, "bus.ReadBlockingOne", trace.WithAttributes(
		attribute.String("bus.topic", topic),
	))
	defer span.End()

	var msg *model.BusMessage
	var err error
	if one, ok := b.next.(ReadBlockingOne); ok {
		msg, err = one.ReadBlockingOne(ctx, topic, lastID, blockMs)
	} else {
		msg, err = emulateReadBlockingOne(ctx, b.next, topic, lastID, blockMs)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return msg, err
}

func (b *Instrumented) ReadAnyBlocking(ctx context.Context, topics []string, cursors map[string]string, blockMs int) (string, *model.BusMessage, error) {
	ctx, span := b.tracer.Start(ctx, "bus.ReadAnyBlocking", trace.WithAttributes(
		attribute.Int("bus.topic_count", len(topics)),
	))
	defer span.End()

	var topic string
	var msg *model.BusMessage
	var err error
	if any, ok := b.next.(ReadAnyBlocking); ok {
		topic, msg, err = any.ReadAnyBlocking(ctx, topics, cursors, blockMs)
	} else {
		topic, msg, err = emulateReadAnyBlocking(ctx, b.next, topics, cursors, blockMs)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return topic, msg, err
}
