package bus_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-alexander-pop/agentfabric/internal/bus"
	"github.com/chris-alexander-pop/agentfabric/internal/model"
)

func TestNewDefaultsToTheMemoryDriver(t *testing.T) {
	b, closeFn, err := bus.New(bus.Config{}, bus.ResilientConfig{})
	require.NoError(t, err)
	defer closeFn()

	_, err = b.Publish(context.Background(), "t", model.BusMessage{Payload: map[string]any{"a": 1}})
	assert.NoError(t, err)
}

func TestNewConstructsTheRedisDriver(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	b, closeFn, err := bus.New(bus.Config{
		Driver:       "redis",
		RedisURL:     "redis://" + s.Addr(),
		StreamMaxLen: 10,
	}, bus.ResilientConfig{})
	require.NoError(t, err)
	defer closeFn()

	ctx := context.Background()
	id, err := b.Publish(ctx, "t", model.BusMessage{Payload: map[string]any{"a": 1}})
	require.NoError(t, err)

	msgs, err := b.Read(ctx, "t", "", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
}

func TestNewRejectsAnUnknownDriver(t *testing.T) {
	_, _, err := bus.New(bus.Config{Driver: "carrier-pigeon"}, bus.ResilientConfig{})
	assert.Error(t, err)
}
