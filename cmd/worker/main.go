// Command worker drains one or more agents' inbound topics, driving either
// the deterministic echo runner or an LLM-backed runner depending on config.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chris-alexander-pop/agentfabric/internal/bus"
	"github.com/chris-alexander-pop/agentfabric/internal/runner"
	signalpkg "github.com/chris-alexander-pop/agentfabric/internal/signal"
	"github.com/chris-alexander-pop/agentfabric/internal/worker"
	"github.com/chris-alexander-pop/agentfabric/pkg/ai/genai/llm"
	"github.com/chris-alexander-pop/agentfabric/pkg/ai/genai/llm/adapters/anthropic"
	"github.com/chris-alexander-pop/agentfabric/pkg/concurrency"
	"github.com/chris-alexander-pop/agentfabric/pkg/config"
	eventsmemory "github.com/chris-alexander-pop/agentfabric/pkg/events/adapters/memory"
	"github.com/chris-alexander-pop/agentfabric/pkg/logger"
	"github.com/chris-alexander-pop/agentfabric/pkg/telemetry"
)

// appConfig embeds the worker's own settings plus the shared bus, signal,
// logger, and telemetry sections.
type appConfig struct {
	Bus       bus.Config
	Signal    signalpkg.Config
	Logger    logger.Config
	Telemetry telemetry.Config

	// AgentNames is the comma-separated list of agents this process drains;
	// each agent gets its own loop over chat:<name>.
	AgentNames string `env:"WORKER_AGENT_NAMES" env-default:"Dev" validate:"required"`

	// DrainLimit bounds how many envelopes one ProcessAvailable call reads.
	DrainLimit int `env:"WORKER_DRAIN_LIMIT" env-default:"32" validate:"gt=0"`

	// AnthropicAPIKey selects the LLM runner when set; the echo runner is
	// used otherwise, which makes this process runnable with no external
	// credentials for local demos and integration tests.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`

	// LLMModel is passed to every Chat call when the LLM runner is active.
	LLMModel string `env:"WORKER_LLM_MODEL"`
}

func main() {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}

	logger.Init(cfg.Logger)
	shutdownTracing, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		logger.L().Warn("telemetry init failed, continuing without tracing", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer shutdownTracing(context.Background())

	b, closeBus, err := bus.New(cfg.Bus, bus.ResilientConfig{})
	if err != nil {
		logger.L().Error("bus construction failed", "error", err)
		os.Exit(1)
	}
	defer closeBus()

	var r worker.Runner
	if cfg.AnthropicAPIKey != "" {
		client := llm.NewInstrumentedClient(anthropic.New(cfg.AnthropicAPIKey))
		var opts []runner.Option
		if cfg.LLMModel != "" {
			opts = append(opts, runner.WithModel(cfg.LLMModel))
		}
		r = runner.New(client, opts...)
	} else {
		r = runner.Echo{}
	}

	agents := splitAgents(cfg.AgentNames)
	if len(agents) == 0 {
		logger.L().Error("no agent names configured")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	signaler := signalpkg.New(b, cfg.Signal)
	eb := eventsmemory.New()

	pool := concurrency.NewWorkerPool(len(agents), len(agents))
	pool.Start(ctx)
	for _, name := range agents {
		w := worker.New(b, name, r, signaler)
		w.UseEvents(eb)
		pool.Submit(func(ctx context.Context) {
			logger.L().Info("worker draining", "agent", name)
			w.Run(ctx, cfg.DrainLimit)
			logger.L().Info("worker stopped", "agent", name)
		})
	}
	pool.Stop()
}

func splitAgents(raw string) []string {
	var agents []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			agents = append(agents, name)
		}
	}
	return agents
}
