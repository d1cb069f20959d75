package index_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-alexander-pop/agentfabric/internal/gateway/index"
	"github.com/chris-alexander-pop/agentfabric/pkg/events"
	"github.com/chris-alexander-pop/agentfabric/pkg/events/adapters/memory"
)

func TestSubscribeRecordsConversationsAndAgentsFromDomainEvents(t *testing.T) {
	eb := memory.New()
	ix := index.New()
	ctx := context.Background()

	require.NoError(t, ix.Subscribe(ctx, eb, "worker.runs"))

	require.NoError(t, eb.Publish(ctx, "worker.runs", events.Event{
		Type:    "run.started",
		Payload: map[string]any{"conversation_id": "c1", "agent": "Dev"},
	}))
	require.NoError(t, eb.Publish(ctx, "worker.runs", events.Event{
		Type:    "run.completed",
		Payload: map[string]any{"conversation_id": "c1", "agent": "Dev"},
	}))

	convs := ix.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "c1", convs[0].ConversationID)
	assert.Equal(t, []string{"Dev"}, convs[0].Agents)
	assert.Equal(t, 1, convs[0].RunCount)

	g, ok := ix.GraphFor("c1")
	require.True(t, ok)
	assert.Equal(t, []string{"Dev"}, g.Agents)

	assert.Equal(t, []string{"Dev"}, ix.Agents())
}

func TestGraphForUnknownConversationReturnsFalse(t *testing.T) {
	ix := index.New()
	_, ok := ix.GraphFor("ghost")
	assert.False(t, ok)
}

func TestRecordTracksMultipleAgentsInFirstSeenOrder(t *testing.T) {
	ix := index.New()
	ix.Record("c1", "Dev", time.Now())
	ix.Record("c1", "Reviewer", time.Now())
	ix.Record("c1", "Dev", time.Now())

	g, ok := ix.GraphFor("c1")
	require.True(t, ok)
	assert.Equal(t, []string{"Dev", "Reviewer"}, g.Agents)
}
