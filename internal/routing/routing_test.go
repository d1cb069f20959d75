package routing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-alexander-pop/agentfabric/internal/bus/adapters/memory"
	"github.com/chris-alexander-pop/agentfabric/internal/model"
	"github.com/chris-alexander-pop/agentfabric/internal/registry"
	"github.com/chris-alexander-pop/agentfabric/internal/routing"
)

func TestRoute_ChatRecipientPublishesOnlyToConversationTopic(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	_, err := routing.Route(ctx, b, routing.SendRequest{
		ConversationID: "c1",
		Sender:         "user:alice",
		Recipient:      "chat:c1",
		Type:           model.EnvelopeMessage,
		Content:        "hi",
	})
	require.NoError(t, err)

	chatMsgs, err := b.Read(ctx, "chat:c1", "", 10)
	require.NoError(t, err)
	assert.Len(t, chatMsgs, 1)

	streamMsgs, err := b.Read(ctx, "stream:c1", "", 10)
	require.NoError(t, err)
	require.Len(t, streamMsgs, 1)
	assert.Equal(t, "user_message", streamMsgs[0].Payload["event"])
	assert.Equal(t, "hi", streamMsgs[0].Payload["text"])
}

func TestRoute_AgentRecipientPublishesToBothConversationAndAgentTopics(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	_, err := routing.Route(ctx, b, routing.SendRequest{
		ConversationID: "c1",
		Sender:         "user:alice",
		Recipient:      "agent:Dev",
		Type:           model.EnvelopeMessage,
		Content:        "hi",
	})
	require.NoError(t, err)

	chatMsgs, err := b.Read(ctx, "chat:c1", "", 10)
	require.NoError(t, err)
	require.Len(t, chatMsgs, 1)

	agentMsgs, err := b.Read(ctx, "chat:Dev", "", 10)
	require.NoError(t, err)
	require.Len(t, agentMsgs, 1)
	assert.Equal(t, chatMsgs[0].Payload, agentMsgs[0].Payload)
}

func TestRoute_MissingRequiredFieldFailsValidation(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	_, err := routing.Route(ctx, b, routing.SendRequest{
		Sender:    "user:alice",
		Recipient: "chat:c1",
		Type:      model.EnvelopeMessage,
	})
	assert.Error(t, err)
}

func TestRouteWithRoster_RejectsUnknownAgentBeforePublishing(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	roster := registry.New()
	roster.Register(registry.Agent{Name: "Dev", Team: "eng"})

	_, err := routing.RouteWithRoster(ctx, b, roster, routing.SendRequest{
		ConversationID: "c1",
		Sender:         "user:alice",
		Recipient:      "agent:Ghost",
		Type:           model.EnvelopeMessage,
	})
	require.Error(t, err)

	msgs, err := b.Read(ctx, "chat:c1", "", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs, "a rejected send publishes nothing")
}

func TestRouteWithRoster_EmptyRosterAllowsAnyAgent(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	_, err := routing.RouteWithRoster(ctx, b, registry.New(), routing.SendRequest{
		ConversationID: "c1",
		Sender:         "user:alice",
		Recipient:      "agent:Dev",
		Type:           model.EnvelopeMessage,
	})
	require.NoError(t, err)

	msgs, err := b.Read(ctx, "chat:Dev", "", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestRoute_BareAgentPrefixWithNoNameDoesNotRouteToAgentTopic(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	_, err := routing.Route(ctx, b, routing.SendRequest{
		ConversationID: "c1",
		Sender:         "user:alice",
		Recipient:      "agent:",
		Type:           model.EnvelopeMessage,
	})
	require.NoError(t, err)

	msgs, err := b.Read(ctx, "chat:", "", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
