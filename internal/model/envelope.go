// Package model defines the wire types shared across the bus, routing,
// worker, signal, and gateway packages: the message envelope, the bus's
// own storage record, and the tagged stream-event variants a runner emits.
package model

import (
	"time"

	"github.com/google/uuid"
)

// EnvelopeType distinguishes a user-visible chat message from an internal
// control message (used for orchestration signaling and similar plumbing).
type EnvelopeType string

const (
	EnvelopeMessage EnvelopeType = "message"
	EnvelopeControl EnvelopeType = "control"
)

// Envelope is the transport-agnostic message record that flows through
// topics. It is immutable once published: nothing downstream of the bus
// mutates an envelope's fields.
type Envelope struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Sender         string         `json:"sender"`
	Recipient      string         `json:"recipient"`
	Type           EnvelopeType   `json:"type"`
	Content        string         `json:"content,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// NewEnvelope builds an envelope with a freshly generated ID and a UTC
// CreatedAt of the current time.
func NewEnvelope(conversationID, sender, recipient string, typ EnvelopeType, content string, metadata map[string]any) Envelope {
	return Envelope{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Sender:         sender,
		Recipient:      recipient,
		Type:           typ,
		Content:        content,
		Metadata:       metadata,
		CreatedAt:      time.Now().UTC(),
	}
}

// Valid reports whether the required fields are present, per the envelope
// invariant: id, conversation_id, sender, and recipient must be non-empty,
// and type must be "message" or "control".
func (e Envelope) Valid() bool {
	return e.ID != "" && e.ConversationID != "" && e.Sender != "" && e.Recipient != "" && (e.Type == EnvelopeMessage || e.Type == EnvelopeControl)
}

// OrchestrateDoneTopic reads the optional metadata.orchestrate.done_topic
// convention used by child-subtask signaling. Returns "" if absent or
// malformed.
func (e Envelope) OrchestrateDoneTopic() string {
	raw, ok := e.Metadata["orchestrate"]
	if !ok {
		return ""
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return ""
	}
	topic, _ := m["done_topic"].(string)
	return topic
}
