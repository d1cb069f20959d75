package worker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-alexander-pop/agentfabric/internal/bus/adapters/memory"
	"github.com/chris-alexander-pop/agentfabric/internal/model"
	"github.com/chris-alexander-pop/agentfabric/internal/signal"
	"github.com/chris-alexander-pop/agentfabric/internal/worker"
	"github.com/chris-alexander-pop/agentfabric/pkg/events"
	memoryevents "github.com/chris-alexander-pop/agentfabric/pkg/events/adapters/memory"
)

type echoRunner struct{}

func (echoRunner) StreamRun(ctx context.Context, env model.Envelope) <-chan worker.RunEvent {
	ch := make(chan worker.RunEvent, 2)
	ch <- worker.RunEvent{Event: model.TokenEvent(env.ConversationID, env.Content, 0)}
	ch <- worker.RunEvent{Event: model.OutputEvent(env.ConversationID, env.Content, nil)}
	close(ch)
	return ch
}

type erroringRunner struct{}

func (erroringRunner) StreamRun(ctx context.Context, env model.Envelope) <-chan worker.RunEvent {
	ch := make(chan worker.RunEvent, 1)
	ch <- worker.RunEvent{Err: assertError{}}
	close(ch)
	return ch
}

type assertError struct{}

func (assertError) Error() string { return "runner exploded" }

func publishEnvelope(t *testing.T, b *memory.Bus, topic string, env model.Envelope) {
	t.Helper()
	payload := map[string]any{
		"id":              env.ID,
		"conversation_id": env.ConversationID,
		"sender":          env.Sender,
		"recipient":       env.Recipient,
		"type":            string(env.Type),
		"content":         env.Content,
		"metadata":        env.Metadata,
	}
	_, err := b.Publish(context.Background(), topic, model.BusMessage{ID: env.ID, Payload: payload})
	require.NoError(t, err)
}

func TestProcessAvailable_RunsOneEnvelopeAndRepublishesItsEvents(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	env := model.NewEnvelope("c1", "user:alice", "agent:Dev", model.EnvelopeMessage, "hi", nil)
	publishEnvelope(t, b, "chat:Dev", env)

	w := worker.New(b, "Dev", echoRunner{}, nil)
	processed, err := w.ProcessAvailable(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	streamMsgs, err := b.Read(ctx, "stream:c1", "", 10)
	require.NoError(t, err)
	require.Len(t, streamMsgs, 2)
	assert.Equal(t, "token", streamMsgs[0].Payload["event"])
	assert.Equal(t, "output", streamMsgs[1].Payload["event"])
}

func TestProcessAvailable_SingleFlightPerConversation(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	env1 := model.NewEnvelope("c", "user:alice", "agent:Dev", model.EnvelopeMessage, "first", nil)
	env2 := model.NewEnvelope("c", "user:alice", "agent:Dev", model.EnvelopeMessage, "second", nil)
	publishEnvelope(t, b, "chat:Dev", env1)
	publishEnvelope(t, b, "chat:Dev", env2)

	w := worker.New(b, "Dev", echoRunner{}, nil)

	processed, err := w.ProcessAvailable(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed, "only one run per conversation per drain")

	processed, err = w.ProcessAvailable(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed, "the skipped envelope remains eligible for the next drain")
}

func TestProcessAvailable_RunnerErrorStopsRunWithoutPropagating(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	env := model.NewEnvelope("c1", "user:alice", "agent:Dev", model.EnvelopeMessage, "hi", nil)
	publishEnvelope(t, b, "chat:Dev", env)

	w := worker.New(b, "Dev", erroringRunner{}, nil)
	processed, err := w.ProcessAvailable(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	streamMsgs, err := b.Read(ctx, "stream:c1", "", 10)
	require.NoError(t, err)
	assert.Empty(t, streamMsgs, "a runner error publishes nothing to the stream topic")
}

func TestProcessAvailable_ChildDoneSignalEmittedAfterSuccessfulRun(t *testing.T) {
	b := memory.New()
	ctx := context.Background()
	s := signal.New(b, signal.Config{AutoChildSignalDone: true})

	env := model.NewEnvelope("c1", "user:alice", "agent:Dev", model.EnvelopeMessage, "hi", map[string]any{
		"orchestrate": map[string]any{"done_topic": "signal:conv-child/done"},
	})
	publishEnvelope(t, b, "chat:Dev", env)

	w := worker.New(b, "Dev", echoRunner{}, s)
	processed, err := w.ProcessAvailable(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	res, err := s.Wait(ctx, "c1", "signal:conv-child/done", "", 100)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestProcessAvailable_PublishesRunStartedAndCompletedDomainEvents(t *testing.T) {
	b := memory.New()
	ctx := context.Background()
	eb := memoryevents.New()

	var seen []string
	require.NoError(t, eb.Subscribe(ctx, "worker.runs", func(_ context.Context, e events.Event) error {
		seen = append(seen, e.Type)
		return nil
	}))

	env := model.NewEnvelope("c1", "user:alice", "agent:Dev", model.EnvelopeMessage, "hi", nil)
	publishEnvelope(t, b, "chat:Dev", env)

	w := worker.New(b, "Dev", echoRunner{}, nil)
	w.UseEvents(eb)

	processed, err := w.ProcessAvailable(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, []string{"run.started", "run.completed"}, seen)
}
