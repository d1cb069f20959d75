package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamEventMarshalFlattensFieldsAlongsideCommonEnvelope(t *testing.T) {
	se := TokenEvent("c1", "hel", 0)

	encoded, err := json.Marshal(se)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(encoded, &raw))
	assert.Equal(t, "token", raw["event"])
	assert.Equal(t, "c1", raw["conversation_id"])
	assert.Equal(t, "hel", raw["text"])
	assert.Equal(t, float64(0), raw["index"])
	assert.NotEmpty(t, raw["id"])
	assert.NotEmpty(t, raw["created_at"])
}

func TestStreamEventUnmarshalPreservesUnknownKinds(t *testing.T) {
	encoded := []byte(`{"event":"hologram","id":"x1","conversation_id":"c1","created_at":"2026-01-02T03:04:05Z","shape":"cube","sides":6}`)

	var se StreamEvent
	require.NoError(t, json.Unmarshal(encoded, &se))
	assert.Equal(t, "hologram", se.Event)
	assert.Equal(t, "x1", se.ID)
	assert.Equal(t, "c1", se.ConversationID)
	assert.Equal(t, "cube", se.Fields["shape"])

	// Re-encoding carries the unknown kind and its fields through unchanged.
	reencoded, err := json.Marshal(se)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(reencoded, &raw))
	assert.Equal(t, "hologram", raw["event"])
	assert.Equal(t, "cube", raw["shape"])
	assert.Equal(t, float64(6), raw["sides"])
}

func TestToolStepEventOmitsUnsetOptionalFields(t *testing.T) {
	se := ToolStepEvent("c1", "terminal.run", map[string]any{"cmd": "ls"}, ToolStepOptions{Status: "start"})

	assert.Equal(t, "terminal.run", se.Fields["name"])
	assert.Equal(t, "start", se.Fields["status"])
	_, hasResult := se.Fields["result_summary"]
	assert.False(t, hasResult)
	_, hasError := se.Fields["error"]
	assert.False(t, hasError)
}

func TestEnvelopeValidRequiresAllMandatoryFields(t *testing.T) {
	env := NewEnvelope("c1", "user:alice", "agent:Dev", EnvelopeMessage, "hi", nil)
	assert.True(t, env.Valid())

	missing := env
	missing.ConversationID = ""
	assert.False(t, missing.Valid())

	badType := env
	badType.Type = "telegram"
	assert.False(t, badType.Valid())
}

func TestOrchestrateDoneTopicReadsNestedMetadata(t *testing.T) {
	env := NewEnvelope("c1", "user:alice", "agent:Dev", EnvelopeMessage, "", map[string]any{
		"orchestrate": map[string]any{"done_topic": "signal:conv-child/done"},
	})
	assert.Equal(t, "signal:conv-child/done", env.OrchestrateDoneTopic())

	noMeta := NewEnvelope("c1", "user:alice", "agent:Dev", EnvelopeMessage, "", nil)
	assert.Empty(t, noMeta.OrchestrateDoneTopic())

	malformed := NewEnvelope("c1", "user:alice", "agent:Dev", EnvelopeMessage, "", map[string]any{
		"orchestrate": "not-a-mapping",
	})
	assert.Empty(t, malformed.OrchestrateDoneTopic())
}
