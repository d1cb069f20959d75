// Package memory provides an in-process Bus implementation: a fake for
// tests and for single-process deployments that don't need durability
// across restarts.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/chris-alexander-pop/agentfabric/internal/model"
)

type store struct {
	mu           sync.Mutex
	cond         *sync.Cond
	topics       map[string][]model.BusMessage
	groupOffsets map[string]map[string]int // group -> topic -> next undelivered index
}

func newStore() *store {
	s := &store{
		topics:       make(map[string][]model.BusMessage),
		groupOffsets: make(map[string]map[string]int),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Bus is an in-memory Bus. Multiple Bus values constructed with WithGroup
// against the same root share the same topic log, so their group offsets
// cooperate the way a Redis consumer group's would: whichever consumer
// reads first advances the shared per-(group,topic) offset.
type Bus struct {
	store    *store
	group    string
	consumer string
}

// New creates a standalone in-memory bus with no consumer group.
func New() *Bus {
	return &Bus{store: newStore()}
}

// WithGroup returns a view over the same underlying log that reads in
// consumer-group mode.
func (b *Bus) WithGroup(group, consumer string) *Bus {
	return &Bus{store: b.store, group: group, consumer: consumer}
}

func (b *Bus) Publish(ctx context.Context, topic string, msg model.BusMessage) (string, error) {
	if msg.ID == "" {
		msg = model.NewBusMessage(topic, msg.Payload)
	}
	b.store.mu.Lock()
	b.store.topics[topic] = append(b.store.topics[topic], msg)
	b.store.mu.Unlock()
	b.store.cond.Broadcast()
	return msg.ID, nil
}

func (b *Bus) Read(ctx context.Context, topic string, lastID string, limit int) ([]model.BusMessage, error) {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	return b.readLocked(topic, lastID, limit)
}

func (b *Bus) readLocked(topic string, lastID string, limit int) ([]model.BusMessage, error) {
	if b.group != "" {
		return b.readGroupLocked(topic, limit), nil
	}

	entries := b.store.topics[topic]
	if lastID == "" {
		return tail(entries, limit), nil
	}

	idx := indexOf(entries, lastID)
	if idx < 0 {
		// uuid matched no entry: behaves as an empty read, same as the
		// Redis adapter's unresolved-scan outcome.
		return nil, nil
	}
	return collectAfter(entries, idx, limit), nil
}

func (b *Bus) readGroupLocked(topic string, limit int) []model.BusMessage {
	entries := b.store.topics[topic]
	offsets, ok := b.store.groupOffsets[b.group]
	if !ok {
		offsets = make(map[string]int)
		b.store.groupOffsets[b.group] = offsets
	}
	start := offsets[topic]
	if start >= len(entries) {
		return nil
	}
	end := start + limit
	if end > len(entries) {
		end = len(entries)
	}
	out := make([]model.BusMessage, end-start)
	copy(out, entries[start:end])
	offsets[topic] = end
	return out
}

func (b *Bus) ReadBlocking(ctx context.Context, topic string, lastID string, limit int, blockMs int) ([]model.BusMessage, error) {
	deadline := time.Now().Add(time.Duration(blockMs) * time.Millisecond)

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	// A uuid cursor that matches no entry tails from now: resolved once,
	// before the wait, to the current end, so entries appended during the
	// block window are observed.
	tailFrom := b.unresolvedTailLocked(topic, lastID)

	for {
		var msgs []model.BusMessage
		var err error
		if tailFrom >= 0 {
			msgs = collectAfter(b.store.topics[topic], tailFrom-1, limit)
		} else {
			msgs, err = b.readLocked(topic, lastID, limit)
		}
		if err != nil || len(msgs) > 0 {
			return msgs, err
		}
		if ctx.Err() != nil {
			return nil, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		waitOnCond(b.store, remaining)
	}
}

// unresolvedTailLocked reports the current log length when lastID is a
// uuid that matches no entry (the caller's effective start point), or -1
// when lastID resolves normally or doesn't apply (empty, or group mode).
func (b *Bus) unresolvedTailLocked(topic string, lastID string) int {
	if b.group != "" || lastID == "" {
		return -1
	}
	if indexOf(b.store.topics[topic], lastID) >= 0 {
		return -1
	}
	return len(b.store.topics[topic])
}

// ReadBlockingOne satisfies the optional bus.ReadBlockingOne interface so the
// signal layer's wait path blocks on the store's condition variable instead
// of falling back to polling.
func (b *Bus) ReadBlockingOne(ctx context.Context, topic string, lastID string, blockMs int) (*model.BusMessage, error) {
	msgs, err := b.ReadBlocking(ctx, topic, lastID, 1, blockMs)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	msg := msgs[0]
	return &msg, nil
}

// ReadAnyBlocking satisfies the optional bus.ReadAnyBlocking interface:
// a single cond-driven wait across every topic, with ties resolved in
// argument order.
func (b *Bus) ReadAnyBlocking(ctx context.Context, topics []string, cursors map[string]string, blockMs int) (string, *model.BusMessage, error) {
	deadline := time.Now().Add(time.Duration(blockMs) * time.Millisecond)

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	tailFrom := make(map[string]int, len(topics))
	for _, t := range topics {
		tailFrom[t] = b.unresolvedTailLocked(t, cursors[t])
	}

	for {
		for _, t := range topics {
			var msgs []model.BusMessage
			var err error
			if tailFrom[t] >= 0 {
				msgs = collectAfter(b.store.topics[t], tailFrom[t]-1, 1)
			} else {
				msgs, err = b.readLocked(t, cursors[t], 1)
			}
			if err != nil {
				return "", nil, err
			}
			if len(msgs) > 0 {
				msg := msgs[0]
				return t, &msg, nil
			}
		}
		if ctx.Err() != nil {
			return "", nil, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", nil, nil
		}
		waitOnCond(b.store, remaining)
	}
}

// waitOnCond wakes on either a publish broadcast or the remaining timeout,
// whichever comes first. sync.Cond has no timed Wait, so a timer goroutine
// drives a Broadcast when it fires.
func waitOnCond(s *store, d time.Duration) {
	timer := time.AfterFunc(d, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()
	s.cond.Wait()
}

func tail(entries []model.BusMessage, limit int) []model.BusMessage {
	if len(entries) <= limit {
		out := make([]model.BusMessage, len(entries))
		copy(out, entries)
		return out
	}
	out := make([]model.BusMessage, limit)
	copy(out, entries[len(entries)-limit:])
	return out
}

func collectAfter(entries []model.BusMessage, idx int, limit int) []model.BusMessage {
	start := idx + 1
	if start >= len(entries) {
		return nil
	}
	end := start + limit
	if end > len(entries) {
		end = len(entries)
	}
	out := make([]model.BusMessage, end-start)
	copy(out, entries[start:end])
	return out
}

func indexOf(entries []model.BusMessage, id string) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}
