// Package bustest provides a conformance suite that any internal/bus.Bus
// implementation should pass, run against both the memory and redisstream
// adapters.
package bustest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-alexander-pop/agentfabric/internal/bus"
	"github.com/chris-alexander-pop/agentfabric/internal/model"
)

// Factory builds a fresh, empty Bus for a single test to exercise. Group
// variants (Bus values configured with a non-empty consumer group) are
// constructed by the caller via Grouped, which may be left nil if the
// implementation under test doesn't support group reads the way this
// suite needs; the group cases are then skipped.
type Factory struct {
	New     func() bus.Bus
	Grouped func(group, consumer string) bus.Bus
}

// Run executes the full conformance suite against f.
func Run(t *testing.T, f Factory) {
	t.Run("publish_then_tail_read_returns_message", func(t *testing.T) { testPublishTailRead(t, f) })
	t.Run("read_after_cursor_returns_only_new_messages", func(t *testing.T) { testReadAfterCursor(t, f) })
	t.Run("read_blocking_returns_immediately_when_messages_present", func(t *testing.T) { testReadBlockingImmediate(t, f) })
	t.Run("read_blocking_times_out_with_no_messages", func(t *testing.T) { testReadBlockingTimeout(t, f) })
	t.Run("read_blocking_wakes_on_publish", func(t *testing.T) { testReadBlockingWakes(t, f) })
	t.Run("unresolvable_cursor_reads_empty_then_tails_from_now", func(t *testing.T) { testUnresolvableCursor(t, f) })
	t.Run("group_read_advances_shared_offset", func(t *testing.T) { testGroupRead(t, f) })
	t.Run("distinct_topics_are_isolated", func(t *testing.T) { testTopicIsolation(t, f) })
}

func testPublishTailRead(t *testing.T, f Factory) {
	b := f.New()
	ctx := context.Background()

	id, err := b.Publish(ctx, "chat:publish-tail", model.NewBusMessage("chat:publish-tail", map[string]any{"n": 1}))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs, err := b.Read(ctx, "chat:publish-tail", "", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, float64(1), toFloat(msgs[0].Payload["n"]))
}

func testReadAfterCursor(t *testing.T, f Factory) {
	b := f.New()
	ctx := context.Background()

	id1, err := b.Publish(ctx, "chat:after-cursor", model.NewBusMessage("chat:after-cursor", map[string]any{"n": 1}))
	require.NoError(t, err)
	_, err = b.Publish(ctx, "chat:after-cursor", model.NewBusMessage("chat:after-cursor", map[string]any{"n": 2}))
	require.NoError(t, err)

	msgs, err := b.Read(ctx, "chat:after-cursor", id1, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, float64(2), toFloat(msgs[0].Payload["n"]))
}

func testReadBlockingImmediate(t *testing.T, f Factory) {
	b := f.New()
	ctx := context.Background()

	_, err := b.Publish(ctx, "chat:blocking-immediate", model.NewBusMessage("chat:blocking-immediate", map[string]any{"n": 1}))
	require.NoError(t, err)

	start := time.Now()
	msgs, err := b.ReadBlocking(ctx, "chat:blocking-immediate", "", 10, 2000)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Less(t, time.Since(start), 1*time.Second)
}

func testReadBlockingTimeout(t *testing.T, f Factory) {
	b := f.New()
	ctx := context.Background()

	start := time.Now()
	msgs, err := b.ReadBlocking(ctx, "chat:empty", "", 10, 150)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func testReadBlockingWakes(t *testing.T, f Factory) {
	b := f.New()
	ctx := context.Background()

	done := make(chan []model.BusMessage, 1)
	go func() {
		msgs, err := b.ReadBlocking(ctx, "chat:wake", "", 10, 3000)
		assert.NoError(t, err)
		done <- msgs
	}()

	time.Sleep(50 * time.Millisecond)
	_, err := b.Publish(ctx, "chat:wake", model.NewBusMessage("chat:wake", map[string]any{"n": 1}))
	require.NoError(t, err)

	select {
	case msgs := <-done:
		require.Len(t, msgs, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("read_blocking did not wake on publish")
	}
}

func testUnresolvableCursor(t *testing.T, f Factory) {
	b := f.New()
	ctx := context.Background()
	const ghost = "00000000-0000-0000-0000-000000000000"

	_, err := b.Publish(ctx, "chat:unresolved", model.NewBusMessage("chat:unresolved", map[string]any{"n": 1}))
	require.NoError(t, err)

	// Non-blocking: a uuid that matches no entry yields an empty read.
	msgs, err := b.Read(ctx, "chat:unresolved", ghost, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// Blocking: the same cursor tails from now, so the pre-existing entry
	// is skipped but one appended during the wait is observed.
	done := make(chan []model.BusMessage, 1)
	go func() {
		msgs, err := b.ReadBlocking(ctx, "chat:unresolved", ghost, 10, 3000)
		assert.NoError(t, err)
		done <- msgs
	}()

	time.Sleep(50 * time.Millisecond)
	_, err = b.Publish(ctx, "chat:unresolved", model.NewBusMessage("chat:unresolved", map[string]any{"n": 2}))
	require.NoError(t, err)

	select {
	case got := <-done:
		require.Len(t, got, 1)
		assert.Equal(t, float64(2), toFloat(got[0].Payload["n"]))
	case <-time.After(2 * time.Second):
		t.Fatal("read_blocking with an unresolvable cursor did not tail from now")
	}
}

func testGroupRead(t *testing.T, f Factory) {
	if f.Grouped == nil {
		t.Skip("adapter does not support consumer groups")
	}
	ctx := context.Background()
	root := f.New()

	_, err := root.Publish(ctx, "chat:group", model.NewBusMessage("chat:group", map[string]any{"n": 1}))
	require.NoError(t, err)

	consumerA := f.Grouped("g1", "a")
	consumerB := f.Grouped("g1", "b")

	msgsA, err := consumerA.Read(ctx, "chat:group", "", 10)
	require.NoError(t, err)
	require.Len(t, msgsA, 1)

	msgsB, err := consumerB.Read(ctx, "chat:group", "", 10)
	require.NoError(t, err)
	assert.Empty(t, msgsB, "a second consumer in the same group should not redeliver an already-claimed message")
}

func testTopicIsolation(t *testing.T, f Factory) {
	b := f.New()
	ctx := context.Background()

	_, err := b.Publish(ctx, "chat:a", model.NewBusMessage("chat:a", map[string]any{"topic": "a"}))
	require.NoError(t, err)
	_, err = b.Publish(ctx, "chat:b", model.NewBusMessage("chat:b", map[string]any{"topic": "b"}))
	require.NoError(t, err)

	msgs, err := b.Read(ctx, "chat:a", "", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", msgs[0].Payload["topic"])
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return -1
	}
}
