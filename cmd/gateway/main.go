// Command gateway runs the HTTP/SSE front door: POST /send, GET
// /stream/:conversation_id, and the observer endpoints backed by an
// in-process events index.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chris-alexander-pop/agentfabric/internal/bus"
	"github.com/chris-alexander-pop/agentfabric/internal/gateway"
	"github.com/chris-alexander-pop/agentfabric/internal/gateway/index"
	"github.com/chris-alexander-pop/agentfabric/internal/registry"
	"github.com/chris-alexander-pop/agentfabric/pkg/cache"
	cachememory "github.com/chris-alexander-pop/agentfabric/pkg/cache/adapters/memory"
	cacheredis "github.com/chris-alexander-pop/agentfabric/pkg/cache/adapters/redis"
	"github.com/chris-alexander-pop/agentfabric/pkg/concurrency"
	"github.com/chris-alexander-pop/agentfabric/pkg/config"
	eventsmemory "github.com/chris-alexander-pop/agentfabric/pkg/events/adapters/memory"
	"github.com/chris-alexander-pop/agentfabric/pkg/logger"
	"github.com/chris-alexander-pop/agentfabric/pkg/telemetry"
	"github.com/chris-alexander-pop/agentfabric/pkg/validator"
)

// appConfig embeds every section this process needs: its own HTTP/SSE
// settings plus the shared bus, logger, and telemetry sections.
type appConfig struct {
	gateway.Config
	Bus       bus.Config
	Cache     cache.Config
	Logger    logger.Config
	Telemetry telemetry.Config

	// AgentNames is the comma-separated roster of known agents. When set,
	// /send rejects agent: recipients outside it and /agents lists it;
	// empty leaves the roster unenforced.
	AgentNames string `env:"GATEWAY_AGENT_NAMES"`
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

	rateStore, err := newCache(cfg.Cache)
	if err != nil {
		logger.L().Error("cache construction failed", "error", err)
		os.Exit(1)
	}
	defer rateStore.Close()

	roster := registry.Default()
	for _, part := range strings.Split(cfg.AgentNames, ",") {
		if name := strings.TrimSpace(part); name != "" {
			roster.Register(registry.Agent{Name: name})
		}
	}

	eb := eventsmemory.New()
	ix := index.New()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := ix.Subscribe(ctx, eb, "worker.runs"); err != nil {
		logger.L().Warn("observer index subscribe failed; /conversations and /graph will stay empty", "error", err)
	}

	e := gateway.New(gateway.Deps{
		Bus:      b,
		Registry: roster,
		Index:    ix,
		Validate: validator.New(),
		Cache:    rateStore,
		Config:   cfg.Config,
	})

	srv := &http.Server{Addr: cfg.Config.Addr, Handler: e}

	concurrency.SafeGo(ctx, func() {
		logger.L().Info("gateway listening", "addr", cfg.Config.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L().Error("gateway server failed", "error", err)
			os.Exit(1)
		}
	})

	<-ctx.Done()
	logger.L().Info("gateway shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L().Error("gateway graceful shutdown failed", "error", err)
	}
}

// newCache builds the rate-limit counter store the gateway's /send
// throttling middleware uses; redis keeps counters shared across replicas
// and gets the same resilient+instrumented wrapping the bus client does.
func newCache(cfg cache.Config) (cache.Cache, error) {
	if cfg.Driver != "redis" {
		return cachememory.New(), nil
	}
	c, err := cacheredis.New(cfg)
	if err != nil {
		return nil, err
	}
	resilient := cache.NewResilientCache(c, cache.ResilientConfig{
		CircuitBreakerEnabled:   true,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		RetryEnabled:            true,
		RetryMaxAttempts:        2,
		RetryBackoff:            50 * time.Millisecond,
	})
	return cache.NewInstrumentedCache(resilient), nil
}
