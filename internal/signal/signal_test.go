package signal_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-alexander-pop/agentfabric/internal/bus/adapters/memory"
	"github.com/chris-alexander-pop/agentfabric/internal/signal"
)

func TestSendThenWaitReturnsMessageAndAdvancesCursor(t *testing.T) {
	s := signal.New(memory.New(), signal.Config{})
	ctx := context.Background()

	_, err := s.Send(ctx, "c1", "signal:s", map[string]any{"n": 1})
	require.NoError(t, err)

	res, err := s.Wait(ctx, "c1", "signal:s", "", 100)
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, float64(1), res.Message["payload"].(map[string]any)["n"])

	_, err = s.Send(ctx, "c1", "signal:s", map[string]any{"n": 2})
	require.NoError(t, err)

	res2, err := s.Wait(ctx, "c1", "signal:s", "", 100)
	require.NoError(t, err)
	require.True(t, res2.OK)
	assert.Equal(t, float64(2), res2.Message["payload"].(map[string]any)["n"])
}

func TestWaitTimesOutWhenNothingPublished(t *testing.T) {
	s := signal.New(memory.New(), signal.Config{})
	ctx := context.Background()

	res, err := s.Wait(ctx, "c1", "signal:empty", "", 50)
	require.NoError(t, err)
	assert.False(t, res.OK)
}

func TestTopicPrefixPolicyRejectsMismatchedTopic(t *testing.T) {
	s := signal.New(memory.New(), signal.Config{TopicPrefix: "signal:teamA/"})
	ctx := context.Background()

	_, err := s.Send(ctx, "c1", "signal:teamB/x", map[string]any{})
	assert.Error(t, err)

	_, err = s.Send(ctx, "c1", "signal:teamA/x", map[string]any{})
	assert.NoError(t, err)
}

func TestPayloadCapPolicy(t *testing.T) {
	s := signal.New(memory.New(), signal.Config{PayloadCapBytes: 16})
	ctx := context.Background()

	_, err := s.Send(ctx, "c1", "t", map[string]any{"a": strings.Repeat("x", 100)})
	assert.Error(t, err)

	sDefault := signal.New(memory.New(), signal.Config{})
	_, err = sDefault.Send(ctx, "c1", "t", map[string]any{"a": strings.Repeat("x", 100)})
	assert.NoError(t, err)
}

func TestRedactionAppliesOnlyToInnerPayloadOnReturn(t *testing.T) {
	s := signal.New(memory.New(), signal.Config{})
	ctx := context.Background()

	_, err := s.Send(ctx, "c1", "signal:s", map[string]any{"token": "abc", "n": 1})
	require.NoError(t, err)

	res, err := s.Wait(ctx, "c1", "signal:s", "", 100)
	require.NoError(t, err)
	require.True(t, res.OK)
	payload := res.Message["payload"].(map[string]any)
	assert.Equal(t, "[REDACTED]", payload["token"])
	assert.Equal(t, float64(1), payload["n"])
}

func TestWaitAnyReturnsTheTopicWithAPendingMessage(t *testing.T) {
	b := memory.New()
	s := signal.New(b, signal.Config{})
	ctx := context.Background()

	_, err := s.Send(ctx, "c1", "signal:b", map[string]any{"n": 1})
	require.NoError(t, err)

	res, err := s.WaitAny(ctx, "c1", []string{"signal:a", "signal:b"}, nil, 100)
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, "signal:b", res.Topic)
}

func TestWaitAllReturnsAllPendingEntriesKeyedByTopic(t *testing.T) {
	s := signal.New(memory.New(), signal.Config{})
	ctx := context.Background()

	_, err := s.Send(ctx, "c1", "signal:a/a", map[string]any{"a": 1})
	require.NoError(t, err)
	_, err = s.Send(ctx, "c1", "signal:a/b", map[string]any{"b": 2})
	require.NoError(t, err)

	res, err := s.WaitAll(ctx, "c1", []string{"signal:a/a", "signal:a/b"}, nil, 100)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Len(t, res.Messages, 2)
}

func TestSendMirrorsSignalSendOnStreamTopic(t *testing.T) {
	b := memory.New()
	s := signal.New(b, signal.Config{})
	ctx := context.Background()

	_, err := s.Send(ctx, "c1", "signal:s", map[string]any{"n": 1})
	require.NoError(t, err)

	msgs, err := b.Read(ctx, "stream:c1", "", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "signal_send", msgs[0].Payload["event"])
}
