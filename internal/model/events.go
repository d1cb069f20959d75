package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Stream event kinds. The set is closed for documentation purposes only:
// Unmarshal preserves any kind it doesn't recognize so a forward-compatible
// worker can relay it unchanged.
const (
	EventToken        = "token"
	EventToolStep     = "tool_step"
	EventOutput       = "output"
	EventUserMessage  = "user_message"
	EventLog          = "log"
	EventSignalSend   = "signal_send"
	EventSignalRecv   = "signal_recv"
	EventTruncated    = "truncated"
)

// StreamEvent is a tagged record published on a conversation's stream
// topic. Common fields (id, conversation_id, created_at, event) are typed;
// everything variant-specific lives in Fields and is merged flat into the
// JSON representation, so an unrecognized Event value round-trips without
// loss.
type StreamEvent struct {
	Event          string
	ID             string
	ConversationID string
	CreatedAt      time.Time
	Fields         map[string]any
}

func newStreamEvent(conversationID, event string, fields map[string]any) StreamEvent {
	return StreamEvent{
		Event:          event,
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		CreatedAt:      time.Now().UTC(),
		Fields:         fields,
	}
}

// TokenEvent reports one incremental token of model output.
func TokenEvent(conversationID, text string, index int) StreamEvent {
	return newStreamEvent(conversationID, EventToken, map[string]any{
		"text":  text,
		"index": index,
	})
}

// ToolStepOptions carries the optional tool_step fields.
type ToolStepOptions struct {
	ResultSummary string
	Status        string // "start" | "success" | "error"
	ToolCallID    string
	DurationMs    int64
	Error         string
}

// ToolStepEvent reports a tool invocation made during a run.
func ToolStepEvent(conversationID, name string, args map[string]any, opts ToolStepOptions) StreamEvent {
	fields := map[string]any{
		"name": name,
		"args": args,
	}
	if opts.ResultSummary != "" {
		fields["result_summary"] = opts.ResultSummary
	}
	if opts.Status != "" {
		fields["status"] = opts.Status
	}
	if opts.ToolCallID != "" {
		fields["tool_call_id"] = opts.ToolCallID
	}
	if opts.DurationMs != 0 {
		fields["duration_ms"] = opts.DurationMs
	}
	if opts.Error != "" {
		fields["error"] = opts.Error
	}
	return newStreamEvent(conversationID, EventToolStep, fields)
}

// OutputEvent reports the final answer of a run. At most one is considered
// final per run.
func OutputEvent(conversationID, text string, usage map[string]any) StreamEvent {
	fields := map[string]any{"text": text}
	if usage != nil {
		fields["usage"] = usage
	}
	return newStreamEvent(conversationID, EventOutput, fields)
}

// UserMessageEvent is synthesized by the routing layer only, mirroring an
// inbound send back onto the stream so subscribers can render it.
func UserMessageEvent(conversationID, sender, text string) StreamEvent {
	return newStreamEvent(conversationID, EventUserMessage, map[string]any{
		"sender": sender,
		"text":   text,
	})
}

// LogEvent carries a diagnostic message onto the stream.
func LogEvent(conversationID, message string) StreamEvent {
	return newStreamEvent(conversationID, EventLog, map[string]any{"message": message})
}

// SignalSendEvent mirrors a signal send for SSE observers.
func SignalSendEvent(conversationID, topic, messageID string, payloadLen int) StreamEvent {
	return newStreamEvent(conversationID, EventSignalSend, map[string]any{
		"topic":       topic,
		"message_id":  messageID,
		"payload_len": payloadLen,
	})
}

// SignalRecvEvent mirrors a successful signal wait for SSE observers.
func SignalRecvEvent(conversationID, topic, messageID string, payloadLen int) StreamEvent {
	return newStreamEvent(conversationID, EventSignalRecv, map[string]any{
		"topic":       topic,
		"message_id":  messageID,
		"payload_len": payloadLen,
	})
}

// TruncatedEvent replaces a stream event whose serialized payload exceeds
// the gateway's per-event cap.
func TruncatedEvent(conversationID string) StreamEvent {
	return newStreamEvent(conversationID, EventTruncated, map[string]any{"truncated": true})
}

// MarshalJSON flattens Fields alongside the common envelope so the wire
// shape matches a plain tagged object rather than a nested struct.
func (s StreamEvent) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Fields)+4)
	for k, v := range s.Fields {
		out[k] = v
	}
	out["event"] = s.Event
	out["id"] = s.ID
	out["conversation_id"] = s.ConversationID
	out["created_at"] = s.CreatedAt.Format(time.RFC3339Nano)
	return json.Marshal(out)
}

// UnmarshalJSON splits the common fields out of an arbitrary tagged
// object, keeping everything else (including kinds this build doesn't
// know about) in Fields.
func (s *StreamEvent) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["event"].(string); ok {
		s.Event = v
		delete(raw, "event")
	}
	if v, ok := raw["id"].(string); ok {
		s.ID = v
		delete(raw, "id")
	}
	if v, ok := raw["conversation_id"].(string); ok {
		s.ConversationID = v
		delete(raw, "conversation_id")
	}
	if v, ok := raw["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			s.CreatedAt = t
		}
		delete(raw, "created_at")
	}
	s.Fields = raw
	return nil
}

// AsMap renders the event as a plain map, the shape the worker publishes
// when a runner already hands back a mapping instead of a typed event.
func (s StreamEvent) AsMap() map[string]any {
	out := make(map[string]any, len(s.Fields)+4)
	for k, v := range s.Fields {
		out[k] = v
	}
	out["event"] = s.Event
	out["id"] = s.ID
	out["conversation_id"] = s.ConversationID
	out["created_at"] = s.CreatedAt.Format(time.RFC3339Nano)
	return out
}

// BusMessage is what the bus stores: a topic, an opaque JSON payload, and
// an id. When a caller supplies an id, it is the canonical id; otherwise
// the bus generates one.
type BusMessage struct {
	Topic   string
	Payload map[string]any
	ID      string
}

// NewBusMessage builds a BusMessage with a freshly generated ID.
func NewBusMessage(topic string, payload map[string]any) BusMessage {
	return BusMessage{Topic: topic, Payload: payload, ID: uuid.New().String()}
}
