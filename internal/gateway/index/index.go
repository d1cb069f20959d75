// Package index maintains an in-process observer view of active
// conversations, built entirely from worker.runs domain events published
// on a pkg/events.Bus. It backs the gateway's optional /conversations and
// /graph/<id> endpoints (/agents is served from the registry roster) and
// carries no durability: restart
// the process and the index is empty until new runs repopulate it.
package index

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chris-alexander-pop/agentfabric/pkg/events"
)

// ConversationSummary is one row of GET /conversations.
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	Agents         []string  `json:"agents"`
	RunCount       int       `json:"run_count"`
	LastActivity   time.Time `json:"last_activity"`
}

// Graph is the response shape for GET /graph/<conversation_id>: the set of
// agents observed participating in the conversation, in first-seen order.
type Graph struct {
	ConversationID string   `json:"conversation_id"`
	Agents         []string `json:"agents"`
}

type conversationState struct {
	agentOrder []string
	agentSeen  map[string]bool
	runCount   int
	lastSeen   time.Time
}

// Index is a concurrency-safe observer index.
type Index struct {
	mu            sync.RWMutex
	conversations map[string]*conversationState
}

// New constructs an empty Index.
func New() *Index {
	return &Index{conversations: make(map[string]*conversationState)}
}

// Record ingests the start of one run: its conversation_id and agent.
func (ix *Index) Record(conversationID, agent string, at time.Time) {
	ix.record(conversationID, agent, at, true)
}

// Touch updates a conversation's participants and last-activity time
// without counting a new run (run.completed events land here).
func (ix *Index) Touch(conversationID, agent string, at time.Time) {
	ix.record(conversationID, agent, at, false)
}

func (ix *Index) record(conversationID, agent string, at time.Time, countRun bool) {
	if conversationID == "" {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	cs, ok := ix.conversations[conversationID]
	if !ok {
		cs = &conversationState{agentSeen: make(map[string]bool)}
		ix.conversations[conversationID] = cs
	}
	if agent != "" && !cs.agentSeen[agent] {
		cs.agentSeen[agent] = true
		cs.agentOrder = append(cs.agentOrder, agent)
	}
	if countRun {
		cs.runCount++
	}
	if at.After(cs.lastSeen) {
		cs.lastSeen = at
	}
}

// Conversations returns every observed conversation, ordered by
// conversation id.
func (ix *Index) Conversations() []ConversationSummary {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]ConversationSummary, 0, len(ix.conversations))
	for id, cs := range ix.conversations {
		agents := make([]string, len(cs.agentOrder))
		copy(agents, cs.agentOrder)
		out = append(out, ConversationSummary{
			ConversationID: id,
			Agents:         agents,
			RunCount:       cs.runCount,
			LastActivity:   cs.lastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConversationID < out[j].ConversationID })
	return out
}

// GraphFor returns the participant graph for conversationID, reporting
// false if the conversation hasn't been observed yet.
func (ix *Index) GraphFor(conversationID string) (Graph, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	cs, ok := ix.conversations[conversationID]
	if !ok {
		return Graph{}, false
	}
	agents := make([]string, len(cs.agentOrder))
	copy(agents, cs.agentOrder)
	return Graph{ConversationID: conversationID, Agents: agents}, true
}

// Agents returns the distinct set of agent names seen across every
// conversation, ordered alphabetically.
func (ix *Index) Agents() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	seen := make(map[string]bool)
	for _, cs := range ix.conversations {
		for _, a := range cs.agentOrder {
			seen[a] = true
		}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Subscribe registers the index as a handler on eb for topic. run.started
// events count a new run; anything else only refreshes participants and
// last-activity time.
func (ix *Index) Subscribe(ctx context.Context, eb events.Bus, topic string) error {
	return eb.Subscribe(ctx, topic, func(_ context.Context, e events.Event) error {
		m, ok := e.Payload.(map[string]any)
		if !ok {
			return nil
		}
		convID, _ := m["conversation_id"].(string)
		agent, _ := m["agent"].(string)
		if e.Type == "run.started" {
			ix.Record(convID, agent, time.Now().UTC())
		} else {
			ix.Touch(convID, agent, time.Now().UTC())
		}
		return nil
	})
}
