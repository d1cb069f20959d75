// Package redisstream implements internal/bus.Bus on top of Redis Streams:
// XADD for publish, XRANGE/XREVRANGE for tail reads, XREAD for the blocking
// non-group path, and XREADGROUP/XACK for consumer-group reads.
package redisstream

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chris-alexander-pop/agentfabric/internal/bus"
	"github.com/chris-alexander-pop/agentfabric/internal/model"
	"github.com/chris-alexander-pop/agentfabric/pkg/logger"
)

const payloadField = "payload"

// Bus is a Redis Streams-backed internal/bus.Bus. When Group is set, Read
// and ReadBlocking dispatch to the consumer-group path (XREADGROUP, with an
// XACK on successful delivery); otherwise they scan the raw stream.
type Bus struct {
	client   *redis.Client
	group    string
	consumer string
	maxLen   int64
}

// Option configures a Bus.
type Option func(*Bus)

// WithStreamMaxLen hints Redis to approximately cap each stream's retained
// length on publish (XADD MAXLEN ~). The actual retained length may exceed
// the cap by Redis's trimming slack.
func WithStreamMaxLen(n int64) Option {
	return func(b *Bus) { b.maxLen = n }
}

// New constructs a Bus over an existing client. Group/consumer name an empty
// string to run in plain (non-group) mode.
func New(client *redis.Client, group, consumer string, opts ...Option) *Bus {
	b := &Bus{client: client, group: group, consumer: consumer}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Publish(ctx context.Context, topic string, msg model.BusMessage) (string, error) {
	if msg.ID == "" {
		msg = model.NewBusMessage(topic, msg.Payload)
	}
	encoded, err := encodePayload(msg.Payload)
	if err != nil {
		return "", bus.TransportUnavailable("failed to encode bus message payload", err)
	}
	args := &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{
			"uuid":       msg.ID,
			payloadField: encoded,
		},
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}
	if _, err := b.client.XAdd(ctx, args).Result(); err != nil {
		return "", bus.TransportUnavailable("redis xadd failed", err)
	}
	return msg.ID, nil
}

func (b *Bus) Read(ctx context.Context, topic string, lastID string, limit int) ([]model.BusMessage, error) {
	if b.group != "" {
		return b.readWithGroup(ctx, topic, limit, 0)
	}
	return b.readWithoutGroup(ctx, topic, lastID, limit)
}

func (b *Bus) ReadBlocking(ctx context.Context, topic string, lastID string, limit int, blockMs int) ([]model.BusMessage, error) {
	if b.group != "" {
		return b.readBlockingWithGroup(ctx, topic, limit, blockMs)
	}
	return b.readBlockingWithoutGroup(ctx, topic, lastID, limit, blockMs)
}

// ReadBlockingOne satisfies the optional bus.ReadBlockingOne interface using
// a single-stream XREAD BLOCK COUNT 1, which is cheaper than the generic
// path's full scan-and-filter for the common wait-for-one-message case.
func (b *Bus) ReadBlockingOne(ctx context.Context, topic string, lastID string, blockMs int) (*model.BusMessage, error) {
	start := lastID
	if start == "" {
		start = "$"
	} else {
		resolved, err := b.resolveCursor(ctx, topic, lastID)
		if err != nil {
			return nil, err
		}
		start = xreadCursor(resolved)
	}

	res, err := b.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{topic, start},
		Count:   1,
		Block:   time.Duration(blockMs) * time.Millisecond,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, bus.TransportUnavailable("redis xread failed", err)
	}
	for _, stream := range res {
		for _, entry := range stream.Messages {
			msg := toBusMessage(entry)
			return &msg, nil
		}
	}
	return nil, nil
}

// ReadAnyBlocking satisfies the optional bus.ReadAnyBlocking interface,
// issuing one XREAD across every topic so the signal layer's wait_for_any
// can block natively instead of polling each topic in turn.
func (b *Bus) ReadAnyBlocking(ctx context.Context, topics []string, cursors map[string]string, blockMs int) (string, *model.BusMessage, error) {
	streams := make([]string, 0, len(topics)*2)
	for _, t := range topics {
		streams = append(streams, t)
	}
	ids := make([]string, 0, len(topics))
	for _, t := range topics {
		cursor := cursors[t]
		if cursor == "" {
			ids = append(ids, "$")
			continue
		}
		resolved, err := b.resolveCursor(ctx, t, cursor)
		if err != nil {
			return "", nil, err
		}
		ids = append(ids, xreadCursor(resolved))
	}
	streams = append(streams, ids...)

	res, err := b.client.XRead(ctx, &redis.XReadArgs{
		Streams: streams,
		Count:   1,
		Block:   time.Duration(blockMs) * time.Millisecond,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, bus.TransportUnavailable("redis xread failed", err)
	}
	for _, stream := range res {
		for _, entry := range stream.Messages {
			msg := toBusMessage(entry)
			return stream.Stream, &msg, nil
		}
	}
	return "", nil, nil
}

func (b *Bus) readWithoutGroup(ctx context.Context, topic string, lastID string, limit int) ([]model.BusMessage, error) {
	if lastID == "" {
		return b.tailMessages(ctx, topic, limit)
	}
	start, err := b.resolveCursor(ctx, topic, lastID)
	if err != nil {
		return nil, err
	}
	return b.collectAfter(ctx, topic, start, limit)
}

// tailMessages returns the most recent limit entries via XREVRANGE,
// reversed back into forward order.
func (b *Bus) tailMessages(ctx context.Context, topic string, limit int) ([]model.BusMessage, error) {
	entries, err := b.client.XRevRangeN(ctx, topic, "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, bus.TransportUnavailable("redis xrevrange failed", err)
	}
	out := make([]model.BusMessage, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = toBusMessage(e)
	}
	return out, nil
}

// resolveCursor turns a uuid-valued cursor (the id callers actually hold)
// into the native Redis entry id XRANGE needs to resume from, by scanning
// the stream in bounded chunks until the uuid is found. The scan as a whole
// has no upper bound: it starts at the oldest entry and may walk the whole
// stream, so its cost is O(n) in the stream's length.
func (b *Bus) resolveCursor(ctx context.Context, topic string, lastID string) (string, error) {
	if isNativeEntryID(lastID) {
		return lastID, nil
	}

	const chunk = 200
	cursor := "-"
	for {
		entries, err := b.client.XRangeN(ctx, topic, cursor, "+", chunk+1).Result()
		if err != nil {
			return "", bus.TransportUnavailable("redis xrange failed", err)
		}
		if len(entries) == 0 {
			return "+", nil // not found: equivalent to "nothing after this cursor"
		}
		for _, e := range entries {
			if e.Values["uuid"] == lastID {
				return e.ID, nil
			}
		}
		if len(entries) <= chunk {
			return "+", nil
		}
		cursor = "(" + entries[len(entries)-1].ID
	}
}

func (b *Bus) collectAfter(ctx context.Context, topic string, startID string, limit int) ([]model.BusMessage, error) {
	if startID == "+" {
		return nil, nil
	}
	after := startID
	if isNativeEntryID(after) && !strings.HasPrefix(after, "(") {
		after = "(" + after
	}
	entries, err := b.client.XRangeN(ctx, topic, after, "+", int64(limit)).Result()
	if err != nil {
		return nil, bus.TransportUnavailable("redis xrange failed", err)
	}
	out := make([]model.BusMessage, len(entries))
	for i, e := range entries {
		out[i] = toBusMessage(e)
	}
	return out, nil
}

func (b *Bus) readBlockingWithoutGroup(ctx context.Context, topic string, lastID string, limit int, blockMs int) ([]model.BusMessage, error) {
	msgs, err := b.readWithoutGroup(ctx, topic, lastID, limit)
	if err != nil || len(msgs) > 0 {
		return msgs, err
	}

	start := lastID
	if start == "" {
		start = "$"
	} else {
		resolved, rerr := b.resolveCursor(ctx, topic, lastID)
		if rerr != nil {
			return nil, rerr
		}
		start = xreadCursor(resolved)
	}

	res, err := b.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{topic, start},
		Count:   int64(limit),
		Block:   time.Duration(blockMs) * time.Millisecond,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, bus.TransportUnavailable("redis xread failed", err)
	}
	var out []model.BusMessage
	for _, stream := range res {
		for _, entry := range stream.Messages {
			out = append(out, toBusMessage(entry))
		}
	}
	return out, nil
}

func (b *Bus) readWithGroup(ctx context.Context, topic string, limit int, blockMs int) ([]model.BusMessage, error) {
	if err := b.ensureGroup(ctx, topic); err != nil {
		return nil, err
	}

	args := &redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: b.consumer,
		Streams:  []string{topic, ">"},
		Count:    int64(limit),
	}
	if blockMs > 0 {
		args.Block = time.Duration(blockMs) * time.Millisecond
	}

	res, err := b.client.XReadGroup(ctx, args).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, bus.TransportUnavailable("redis xreadgroup failed", err)
	}

	var out []model.BusMessage
	for _, stream := range res {
		ids := make([]string, 0, len(stream.Messages))
		for _, entry := range stream.Messages {
			out = append(out, toBusMessage(entry))
			ids = append(ids, entry.ID)
		}
		if len(ids) > 0 {
			if err := b.client.XAck(ctx, topic, b.group, ids...).Err(); err != nil {
				logger.L().WarnContext(ctx, "redis xack failed", "topic", topic, "group", b.group, "error", err)
			}
		}
	}
	return out, nil
}

func (b *Bus) readBlockingWithGroup(ctx context.Context, topic string, limit int, blockMs int) ([]model.BusMessage, error) {
	return b.readWithGroup(ctx, topic, limit, blockMs)
}

// ensureGroup creates the consumer group at the start of the stream if it
// doesn't exist yet, tolerating the race where a concurrent caller created
// it first (Redis reports that as BUSYGROUP).
func (b *Bus) ensureGroup(ctx context.Context, topic string) error {
	err := b.client.XGroupCreateMkStream(ctx, topic, b.group, "0").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return bus.TransportUnavailable("redis xgroup create failed", err)
}

// xreadCursor maps a resolveCursor result onto the sentinels XREAD
// accepts: "+" (an unresolved uuid, nothing after it in XRANGE terms) is
// not a legal XREAD id, and an unresolvable cursor tails from now there.
func xreadCursor(resolved string) string {
	if resolved == "+" {
		return "$"
	}
	return resolved
}

func isNativeEntryID(id string) bool {
	parts := strings.SplitN(id, "-", 2)
	if len(parts) != 2 {
		return false
	}
	_, err1 := strconv.ParseInt(parts[0], 10, 64)
	_, err2 := strconv.ParseInt(parts[1], 10, 64)
	return err1 == nil && err2 == nil
}

func toBusMessage(entry redis.XMessage) model.BusMessage {
	id, _ := entry.Values["uuid"].(string)
	if id == "" {
		id = uuid.New().String()
	}
	payload, err := decodePayload(entry.Values[payloadField])
	if err != nil {
		logger.L().Warn("malformed bus message payload, substituting empty payload", "entry_id", entry.ID, "error", err)
		payload = map[string]any{}
	}
	return model.BusMessage{ID: id, Payload: payload}
}
