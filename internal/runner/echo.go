// Package runner provides worker.Runner implementations: a deterministic
// echo runner for local demos and tests, and an LLM-backed runner that
// bridges pkg/ai/genai/llm's non-streaming Client to the worker's
// streamed-event protocol.
package runner

import (
	"context"

	"github.com/chris-alexander-pop/agentfabric/internal/model"
	"github.com/chris-alexander-pop/agentfabric/internal/worker"
)

// Echo is a deterministic runner that makes no external calls: it emits a
// single output event echoing the envelope's content. It exists for local
// demos and for tests that need a Runner double with real event framing.
type Echo struct{}

// StreamRun implements worker.Runner.
func (Echo) StreamRun(ctx context.Context, env model.Envelope) <-chan worker.RunEvent {
	ch := make(chan worker.RunEvent, 1)
	ch <- worker.RunEvent{Event: model.OutputEvent(env.ConversationID, env.Content, nil)}
	close(ch)
	return ch
}

var _ worker.Runner = Echo{}
