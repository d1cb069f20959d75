package runner

import (
	"context"
	"encoding/json"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chris-alexander-pop/agentfabric/internal/model"
	"github.com/chris-alexander-pop/agentfabric/internal/worker"
	"github.com/chris-alexander-pop/agentfabric/pkg/ai/genai/llm"
	"github.com/chris-alexander-pop/agentfabric/pkg/logger"
)

const (
	defaultSessionLimit = 256
	defaultQueueSize    = 1024
)

// LLM bridges pkg/ai/genai/llm.Client's single blocking Chat call to the
// worker's streamed-event protocol. Because llm.Client has no real
// streaming method, a run produces at most one token frame per word of
// the response, synthesized after the call returns (token frames are
// dropped when the event channel is full), followed by one output event. Per-conversation history is kept in a bounded LRU so
// later turns in the same conversation see their own prior turns.
type LLM struct {
	client      llm.Client
	model       string
	temperature float64
	queueSize   int
	sessions    *lru.Cache[string, []llm.Message]
}

// Option configures an LLM runner.
type Option func(*LLM)

// WithModel selects the model passed to every Chat call.
func WithModel(model string) Option {
	return func(r *LLM) { r.model = model }
}

// WithTemperature sets the sampling temperature passed to every Chat call.
func WithTemperature(temp float64) Option {
	return func(r *LLM) { r.temperature = temp }
}

// WithQueueSize overrides the bounded event channel's capacity.
func WithQueueSize(n int) Option {
	return func(r *LLM) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithSessionLimit overrides how many conversations' histories are kept
// before the least-recently-used one is evicted.
func WithSessionLimit(n int) Option {
	return func(r *LLM) {
		if n <= 0 {
			n = defaultSessionLimit
		}
		cache, err := lru.New[string, []llm.Message](n)
		if err == nil {
			r.sessions = cache
		}
	}
}

// New constructs an LLM runner over client.
func New(client llm.Client, opts ...Option) *LLM {
	sessions, _ := lru.New[string, []llm.Message](defaultSessionLimit)
	r := &LLM{client: client, queueSize: defaultQueueSize, sessions: sessions}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StreamRun implements worker.Runner.
func (r *LLM) StreamRun(ctx context.Context, env model.Envelope) <-chan worker.RunEvent {
	ch := make(chan worker.RunEvent, r.queueSize)
	go r.run(ctx, env, ch)
	return ch
}

func (r *LLM) run(ctx context.Context, env model.Envelope, ch chan<- worker.RunEvent) {
	defer close(ch)

	history := r.history(env.ConversationID)
	messages := append(append([]llm.Message{}, history...), llm.Message{
		Role:    llm.RoleUser,
		Content: env.Content,
	})

	var opts []llm.GenerateOption
	if r.model != "" {
		opts = append(opts, llm.WithModel(r.model))
	}
	if r.temperature != 0 {
		opts = append(opts, llm.WithTemperature(r.temperature))
	}

	gen, err := r.client.Chat(ctx, messages, opts...)
	if err != nil {
		r.send(ctx, ch, worker.RunEvent{Err: err})
		return
	}

	text := gen.Message.Content
	for i, word := range tokenize(text) {
		dropOnFull(ch, worker.RunEvent{Event: model.TokenEvent(env.ConversationID, word, i)})
	}

	// Tool invocations requested by the model are reported as tool_step
	// frames. Unlike token frames they are never dropped: a subscriber that
	// misses tokens still sees every tool the model asked for.
	for _, tc := range gen.Message.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			args = map[string]any{"raw": tc.Function.Arguments}
		}
		r.send(ctx, ch, worker.RunEvent{Event: model.ToolStepEvent(env.ConversationID, tc.Function.Name, args, model.ToolStepOptions{
			Status:     "start",
			ToolCallID: tc.ID,
		})})
	}

	usage := map[string]any{
		"prompt_tokens":     gen.Usage.PromptTokens,
		"completion_tokens": gen.Usage.CompletionTokens,
		"total_tokens":      gen.Usage.TotalTokens,
	}
	r.send(ctx, ch, worker.RunEvent{Event: model.OutputEvent(env.ConversationID, text, usage)})

	r.remember(env.ConversationID, append(messages, gen.Message))
}

// send delivers ev, blocking (unlike token frames) so the run's final
// event is never silently dropped under backpressure.
func (r *LLM) send(ctx context.Context, ch chan<- worker.RunEvent, ev worker.RunEvent) {
	select {
	case ch <- ev:
	case <-ctx.Done():
		logger.L().WarnContext(ctx, "llm runner context cancelled before final event delivered")
	}
}

// dropOnFull is the token-frame backpressure policy: a slow consumer loses
// intermediate tokens rather than stalling the run, since the final output
// event still carries the complete text.
func dropOnFull(ch chan<- worker.RunEvent, ev worker.RunEvent) {
	select {
	case ch <- ev:
	default:
	}
}

func (r *LLM) history(conversationID string) []llm.Message {
	if r.sessions == nil {
		return nil
	}
	msgs, ok := r.sessions.Get(conversationID)
	if !ok {
		return nil
	}
	return msgs
}

func (r *LLM) remember(conversationID string, msgs []llm.Message) {
	if r.sessions == nil {
		return
	}
	r.sessions.Add(conversationID, msgs)
}

// tokenize splits generated text into the chunks synthesized as token
// events. Splitting on whitespace gives a stable, if coarse, approximation
// of the provider's real token boundaries, which this client never sees.
func tokenize(text string) []string {
	return strings.Fields(text)
}

var _ worker.Runner = (*LLM)(nil)
