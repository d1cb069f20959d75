package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-alexander-pop/agentfabric/pkg/events"
	"github.com/chris-alexander-pop/agentfabric/pkg/events/adapters/memory"
)

func TestPublishDeliversToSubscribersOfTheSameTopic(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	var got events.Event
	require.NoError(t, b.Subscribe(ctx, "conversations", func(_ context.Context, e events.Event) error {
		got = e
		return nil
	}))

	require.NoError(t, b.Publish(ctx, "conversations", events.Event{Type: "conversation.created", Payload: "c1"}))
	assert.Equal(t, "conversation.created", got.Type)
	assert.Equal(t, "c1", got.Payload)
}

func TestPublishDoesNotDeliverToOtherTopics(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	called := false
	require.NoError(t, b.Subscribe(ctx, "agents", func(_ context.Context, e events.Event) error {
		called = true
		return nil
	}))

	require.NoError(t, b.Publish(ctx, "conversations", events.Event{Type: "conversation.created"}))
	assert.False(t, called)
}

func TestPublishContinuesAfterAHandlerError(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	secondCalled := false
	require.NoError(t, b.Subscribe(ctx, "t", func(context.Context, events.Event) error {
		return errors.New("boom")
	}))
	require.NoError(t, b.Subscribe(ctx, "t", func(context.Context, events.Event) error {
		secondCalled = true
		return nil
	}))

	require.NoError(t, b.Publish(ctx, "t", events.Event{Type: "x"}))
	assert.True(t, secondCalled)
}

func TestCloseRejectsFurtherPublishAndSubscribe(t *testing.T) {
	b := memory.New()
	ctx := context.Background()
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(ctx, "t", events.Event{}), events.ErrClosed)
	assert.ErrorIs(t, b.Subscribe(ctx, "t", func(context.Context, events.Event) error { return nil }), events.ErrClosed)
}
