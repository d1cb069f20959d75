// Package signal implements the rendezvous API (send/wait/wait_any/wait_all)
// layered on top of internal/bus: cursor persistence, payload policy,
// topic-prefix policy, and return-path redaction.
package signal

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/chris-alexander-pop/agentfabric/internal/bus"
	"github.com/chris-alexander-pop/agentfabric/internal/model"
	pkgerrors "github.com/chris-alexander-pop/agentfabric/pkg/errors"
)

const signalEvent = "signal"

// Signaler is the process-wide rendezvous API over one Bus.
type Signaler struct {
	bus     bus.Bus
	cfg     Config
	cursors *cursorTable
}

// New constructs a Signaler. Its cursor table is private to this instance:
// two Signalers never see each other's cursors, so callers that share
// cursors share one Signaler.
func New(b bus.Bus, cfg Config) *Signaler {
	return &Signaler{bus: b, cfg: cfg, cursors: newCursorTable()}
}

// SendResult is returned by a successful Send.
type SendResult struct {
	Topic     string
	MessageID string
}

// WaitResult is returned by Wait. Message is nil on timeout.
type WaitResult struct {
	OK        bool
	Topic     string
	Message   map[string]any
	MessageID string
	TimeoutMs int
	LastID    string
}

// WaitAnyResult is returned by WaitAny. Topic/Message/MessageID are empty on
// timeout.
type WaitAnyResult struct {
	OK        bool
	Topic     string
	Message   map[string]any
	MessageID string
	TimeoutMs int
}

// WaitAllResult is returned by WaitAll.
type WaitAllResult struct {
	OK        bool
	Messages  map[string]map[string]any
	TimeoutMs int
}

// Send publishes payload as a signal message on topic, applying the
// topic-prefix and payload-cap policies first.
func (s *Signaler) Send(ctx context.Context, conversationID, topic string, payload map[string]any) (SendResult, error) {
	if err := s.checkPrefix(topic); err != nil {
		return SendResult{}, err
	}
	if err := s.checkPayloadCap(payload); err != nil {
		return SendResult{}, err
	}

	busPayload := wrapSignalPayload(payload)
	id, err := s.bus.Publish(ctx, topic, model.BusMessage{Payload: busPayload})
	if err != nil {
		return SendResult{}, pkgerrors.Unavailable("bus publish failed", err)
	}

	s.mirror(ctx, conversationID, model.SignalSendEvent(conversationID, topic, id, payloadLen(payload)))

	return SendResult{Topic: topic, MessageID: id}, nil
}

// Wait blocks (up to timeoutMs) for one message strictly after the
// resolved cursor on topic.
func (s *Signaler) Wait(ctx context.Context, conversationID, topic string, lastID string, timeoutMs int) (WaitResult, error) {
	if err := s.checkPrefix(topic); err != nil {
		return WaitResult{}, err
	}

	cursor := s.resolveCursor(conversationID, topic, lastID)
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	msgs, err := s.bus.Read(ctx, topic, cursor, 1)
	if err != nil {
		return WaitResult{}, pkgerrors.Unavailable("bus read failed", err)
	}
	if len(msgs) > 0 {
		return s.succeedWait(ctx, conversationID, topic, timeoutMs, msgs[0]), nil
	}

	if one, ok := s.bus.(bus.ReadBlockingOne); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return timeoutWaitResult(topic, timeoutMs, cursor), nil
		}
		msg, err := one.ReadBlockingOne(ctx, topic, cursor, int(remaining.Milliseconds()))
		if err != nil {
			return WaitResult{}, pkgerrors.Unavailable("bus read_blocking_one failed", err)
		}
		if msg != nil {
			return s.succeedWait(ctx, conversationID, topic, timeoutMs, *msg), nil
		}
		return timeoutWaitResult(topic, timeoutMs, cursor), nil
	}

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return timeoutWaitResult(topic, timeoutMs, cursor), nil
		}
		if ctx.Err() != nil {
			return timeoutWaitResult(topic, timeoutMs, cursor), nil
		}
		sleepFor := pollInterval
		if remaining < sleepFor {
			sleepFor = remaining
		}
		time.Sleep(sleepFor)

		msgs, err := s.bus.Read(ctx, topic, cursor, 1)
		if err != nil {
			return WaitResult{}, pkgerrors.Unavailable("bus read failed", err)
		}
		if len(msgs) > 0 {
			return s.succeedWait(ctx, conversationID, topic, timeoutMs, msgs[0]), nil
		}
	}
}

// WaitAny waits across topics in argument order, returning the first one
// to produce a message. Ties (simultaneous arrival) favor the earliest
// topic in topics.
func (s *Signaler) WaitAny(ctx context.Context, conversationID string, topics []string, lastIDs map[string]string, timeoutMs int) (WaitAnyResult, error) {
	for _, t := range topics {
		if err := s.checkPrefix(t); err != nil {
			return WaitAnyResult{}, err
		}
	}

	cursors := make(map[string]string, len(topics))
	for _, t := range topics {
		cursors[t] = s.resolveCursor(conversationID, t, lastIDs[t])
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	if topic, msg, ok, err := s.sweepAny(ctx, topics, cursors); err != nil {
		return WaitAnyResult{}, err
	} else if ok {
		return s.succeedWaitAny(ctx, conversationID, topic, timeoutMs, msg), nil
	}

	any, supportsAny := s.bus.(bus.ReadAnyBlocking)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 || ctx.Err() != nil {
			return WaitAnyResult{OK: false, TimeoutMs: timeoutMs}, nil
		}

		if supportsAny {
			topic, msg, err := any.ReadAnyBlocking(ctx, topics, cursors, int(remaining.Milliseconds()))
			if err != nil {
				return WaitAnyResult{}, pkgerrors.Unavailable("bus read_any_blocking failed", err)
			}
			if msg != nil {
				return s.succeedWaitAny(ctx, conversationID, topic, timeoutMs, *msg), nil
			}
			continue
		}

		sleepFor := pollInterval
		if remaining < sleepFor {
			sleepFor = remaining
		}
		time.Sleep(sleepFor)

		if topic, msg, ok, err := s.sweepAny(ctx, topics, cursors); err != nil {
			return WaitAnyResult{}, err
		} else if ok {
			return s.succeedWaitAny(ctx, conversationID, topic, timeoutMs, msg), nil
		}
	}
}

func (s *Signaler) sweepAny(ctx context.Context, topics []string, cursors map[string]string) (string, model.BusMessage, bool, error) {
	for _, t := range topics {
		msgs, err := s.bus.Read(ctx, t, cursors[t], 1)
		if err != nil {
			return "", model.BusMessage{}, false, pkgerrors.Unavailable("bus read failed", err)
		}
		if len(msgs) > 0 {
			return t, msgs[0], true, nil
		}
	}
	return "", model.BusMessage{}, false, nil
}

// WaitAll waits for one message on every topic, returning once all have
// produced one or the deadline passes.
func (s *Signaler) WaitAll(ctx context.Context, conversationID string, topics []string, lastIDs map[string]string, timeoutMs int) (WaitAllResult, error) {
	for _, t := range topics {
		if err := s.checkPrefix(t); err != nil {
			return WaitAllResult{}, err
		}
	}

	cursors := make(map[string]string, len(topics))
	for _, t := range topics {
		cursors[t] = s.resolveCursor(conversationID, t, lastIDs[t])
	}

	results := make(map[string]map[string]any, len(topics))
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	for {
		for _, t := range topics {
			if _, done := results[t]; done {
				continue
			}
			msgs, err := s.bus.Read(ctx, t, cursors[t], 1)
			if err != nil {
				return WaitAllResult{}, pkgerrors.Unavailable("bus read failed", err)
			}
			if len(msgs) > 0 {
				results[t] = s.finalizeWaitMessage(ctx, conversationID, t, msgs[0])
			}
		}

		if len(results) == len(topics) {
			return WaitAllResult{OK: true, Messages: results, TimeoutMs: timeoutMs}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 || ctx.Err() != nil {
			return WaitAllResult{OK: len(results) == len(topics), Messages: results, TimeoutMs: timeoutMs}, nil
		}

		var one bus.ReadBlockingOne
		if o, ok := s.bus.(bus.ReadBlockingOne); ok {
			one = o
		}

		progressed := false
		for _, t := range topics {
			if _, done := results[t]; done {
				continue
			}
			remaining = time.Until(deadline)
			if remaining <= 0 {
				break
			}
			blockMs := int(pollInterval.Milliseconds())
			if remaining < pollInterval {
				blockMs = int(remaining.Milliseconds())
			}
			if one != nil {
				msg, err := one.ReadBlockingOne(ctx, t, cursors[t], blockMs)
				if err != nil {
					return WaitAllResult{}, pkgerrors.Unavailable("bus read_blocking_one failed", err)
				}
				if msg != nil {
					results[t] = s.finalizeWaitMessage(ctx, conversationID, t, *msg)
					progressed = true
				}
			}
		}
		if one == nil && !progressed {
			time.Sleep(pollInterval)
		}
	}
}

func (s *Signaler) succeedWait(ctx context.Context, conversationID, topic string, timeoutMs int, msg model.BusMessage) WaitResult {
	message := s.finalizeWaitMessage(ctx, conversationID, topic, msg)
	return WaitResult{OK: true, Topic: topic, Message: message, MessageID: msg.ID, TimeoutMs: timeoutMs}
}

func (s *Signaler) succeedWaitAny(ctx context.Context, conversationID, topic string, timeoutMs int, msg model.BusMessage) WaitAnyResult {
	message := s.finalizeWaitMessage(ctx, conversationID, topic, msg)
	return WaitAnyResult{OK: true, Topic: topic, Message: message, MessageID: msg.ID, TimeoutMs: timeoutMs}
}

// finalizeWaitMessage persists the cursor, mirrors signal_recv, and renders
// the redacted message shape returned to the caller.
func (s *Signaler) finalizeWaitMessage(ctx context.Context, conversationID, topic string, msg model.BusMessage) map[string]any {
	s.cursors.set(conversationID, topic, msg.ID)
	s.mirror(ctx, conversationID, model.SignalRecvEvent(conversationID, topic, msg.ID, innerPayloadLen(msg.Payload)))
	return processReturnedMessage(msg)
}

func (s *Signaler) resolveCursor(conversationID, topic, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if persisted, ok := s.cursors.get(conversationID, topic); ok {
		return persisted
	}
	return ""
}

func (s *Signaler) checkPrefix(topic string) error {
	if s.cfg.TopicPrefix == "" {
		return nil
	}
	if !strings.HasPrefix(topic, s.cfg.TopicPrefix) {
		return pkgerrors.InvalidArgument("topic does not match the configured signal prefix", nil)
	}
	return nil
}

func (s *Signaler) checkPayloadCap(payload map[string]any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.InvalidArgument("payload is not JSON-serializable", err)
	}
	if len(encoded) > s.cfg.payloadCap() {
		return pkgerrors.InvalidArgument("payload exceeds the configured signal payload cap", nil)
	}
	return nil
}

// mirror publishes a diagnostic stream event when a conversation context is
// bound. Mirroring failures never propagate to the caller.
func (s *Signaler) mirror(ctx context.Context, conversationID string, event model.StreamEvent) {
	if conversationID == "" {
		return
	}
	_, _ = s.bus.Publish(ctx, "stream:"+conversationID, model.BusMessage{Payload: event.AsMap()})
}

func wrapSignalPayload(payload map[string]any) map[string]any {
	return map[string]any{"event": signalEvent, "payload": payload}
}

// processReturnedMessage renders the stored bus payload as the caller-
// visible message shape, redacting the inner payload only.
func processReturnedMessage(msg model.BusMessage) map[string]any {
	out := make(map[string]any, len(msg.Payload))
	for k, v := range msg.Payload {
		out[k] = v
	}
	if inner, ok := out["payload"].(map[string]any); ok {
		out["payload"] = redactPayload(inner)
	}
	return out
}

func timeoutWaitResult(topic string, timeoutMs int, cursor string) WaitResult {
	return WaitResult{OK: false, Topic: topic, TimeoutMs: timeoutMs, LastID: cursor}
}

func payloadLen(payload map[string]any) int {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0
	}
	return len(encoded)
}

func innerPayloadLen(busPayload map[string]any) int {
	inner, _ := busPayload["payload"].(map[string]any)
	return payloadLen(inner)
}
