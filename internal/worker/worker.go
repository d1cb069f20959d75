// Package worker consumes one agent's inbound topic with single-flight-
// per-conversation ordering, drives a Runner, and republishes its stream
// events on the conversation's stream topic.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/chris-alexander-pop/agentfabric/internal/bus"
	"github.com/chris-alexander-pop/agentfabric/internal/model"
	"github.com/chris-alexander-pop/agentfabric/internal/signal"
	"github.com/chris-alexander-pop/agentfabric/pkg/events"
	"github.com/chris-alexander-pop/agentfabric/pkg/logger"
)

const (
	minBackoff = 50 * time.Millisecond
	maxBackoff = 200 * time.Millisecond
)

// Worker drains one agent's inbound topic.
type Worker struct {
	bus           bus.Bus
	agentName     string
	runner        Runner
	signaler      *signal.Signaler
	events        events.Bus
	lastInboundID string

	malformedCount  int64
	runErroredCount int64
}

// New constructs a Worker for agentName. signaler may be nil when the
// worker doesn't need to emit child-done signals.
func New(b bus.Bus, agentName string, runner Runner, signaler *signal.Signaler) *Worker {
	return &Worker{bus: b, agentName: agentName, runner: runner, signaler: signaler}
}

// UseEvents attaches an in-process events.Bus that run_started/run_completed
// domain events are published to, for observer indexes such as
// internal/gateway/index to consume. Never set, the worker behaves exactly
// as before: publishing is best-effort and skipped entirely when nil.
func (w *Worker) UseEvents(eb events.Bus) {
	w.events = eb
}

// inboundTopic is the agent's own chat inbox.
func (w *Worker) inboundTopic() string {
	return "chat:" + w.agentName
}

// ProcessAvailable drains up to limit inbound messages, running at most one
// per conversation per call. Returns the number of envelopes actually run.
func (w *Worker) ProcessAvailable(ctx context.Context, limit int) (int, error) {
	msgs, err := w.bus.Read(ctx, w.inboundTopic(), w.lastInboundID, limit)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool)
	processed := 0
	watermark := w.lastInboundID

	for _, msg := range msgs {
		env, ok := parseEnvelope(msg)
		if !ok {
			w.malformedCount++
			logger.L().WarnContext(ctx, "worker dropped malformed envelope", "agent", w.agentName, "message_id", msg.ID)
			continue
		}

		if seen[env.ConversationID] {
			continue
		}
		seen[env.ConversationID] = true

		w.runOne(ctx, env)
		processed++
		watermark = msg.ID
	}

	w.lastInboundID = watermark
	return processed, nil
}

// Run drains continuously until ctx is cancelled, backing off between
// minBackoff and maxBackoff when a drain processes nothing and resetting
// to minBackoff as soon as a drain processes at least one envelope.
func (w *Worker) Run(ctx context.Context, limit int) {
	backoff := minBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := w.ProcessAvailable(ctx, limit)
		if err != nil {
			logger.L().ErrorContext(ctx, "worker drain failed", "agent", w.agentName, "error", err)
		}

		if processed > 0 {
			backoff = minBackoff
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// runOne assigns a fresh run id, drives the runner to completion, and
// republishes every event it emits. Runner errors are caught and logged;
// they never propagate out of ProcessAvailable.
func (w *Worker) runOne(ctx context.Context, env model.Envelope) {
	runID := uuid.New().String()
	streamTopic := "stream:" + env.ConversationID

	logger.L().InfoContext(ctx, "run_started",
		"run_id", runID, "conversation_id", env.ConversationID, "agent", w.agentName)
	w.publishDomainEvent(ctx, "run.started", env, runID)

	evCh := w.runner.StreamRun(ctx, env)
	errored := false

	for item := range evCh {
		if item.Err != nil {
			errored = true
			w.runErroredCount++
			logger.L().ErrorContext(ctx, "run_errored",
				"run_id", runID, "conversation_id", env.ConversationID, "agent", w.agentName, "error", item.Err)
			break
		}

		payload := toPayload(item.Event)
		if _, err := w.bus.Publish(ctx, streamTopic, model.BusMessage{Payload: payload}); err != nil {
			logger.L().WarnContext(ctx, "worker stream publish failed",
				"run_id", runID, "conversation_id", env.ConversationID, "error", err)
		}
	}

	if errored {
		return
	}

	logger.L().InfoContext(ctx, "run_completed",
		"run_id", runID, "conversation_id", env.ConversationID, "agent", w.agentName)
	w.publishDomainEvent(ctx, "run.completed", env, runID)

	if w.signaler == nil {
		return
	}
	doneTopic := env.OrchestrateDoneTopic()
	if doneTopic == "" {
		return
	}
	if err := w.signaler.SignalChildDone(ctx, env.ConversationID, doneTopic); err != nil {
		logger.L().WarnContext(ctx, "worker child-done signal failed",
			"run_id", runID, "conversation_id", env.ConversationID, "done_topic", doneTopic, "error", err)
	}
}

// publishDomainEvent is a best-effort notification to the in-process
// observer index; it never affects run outcome.
func (w *Worker) publishDomainEvent(ctx context.Context, eventType string, env model.Envelope, runID string) {
	if w.events == nil {
		return
	}
	err := w.events.Publish(ctx, "worker.runs", events.Event{
		Type:   eventType,
		Source: w.agentName,
		Payload: map[string]any{
			"run_id":          runID,
			"conversation_id": env.ConversationID,
			"agent":           w.agentName,
		},
	})
	if err != nil {
		logger.L().WarnContext(ctx, "worker domain event publish failed", "event_type", eventType, "error", err)
	}
}

// toPayload renders a RunEvent.Event as the map the bus stores.
func toPayload(event any) map[string]any {
	switch v := event.(type) {
	case model.StreamEvent:
		return v.AsMap()
	case map[string]any:
		return v
	default:
		return model.LogEvent("", "").AsMap()
	}
}

// parseEnvelope decodes a bus message's payload as a Message envelope,
// rejecting it if required fields are missing.
func parseEnvelope(msg model.BusMessage) (model.Envelope, bool) {
	encoded, err := json.Marshal(msg.Payload)
	if err != nil {
		return model.Envelope{}, false
	}
	var env model.Envelope
	if err := json.Unmarshal(encoded, &env); err != nil {
		return model.Envelope{}, false
	}
	if !env.Valid() {
		return model.Envelope{}, false
	}
	return env, true
}
