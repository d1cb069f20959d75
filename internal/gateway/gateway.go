// Package gateway is the HTTP/SSE front door onto the bus: POST /send
// publishes an envelope via internal/routing, GET /stream/:id tails a
// conversation's stream topic as Server-Sent Events, and a handful of
// read-only endpoints expose liveness and the optional observer index.
package gateway

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/chris-alexander-pop/agentfabric/internal/bus"
	"github.com/chris-alexander-pop/agentfabric/internal/gateway/index"
	"github.com/chris-alexander-pop/agentfabric/internal/registry"
	pkgmiddleware "github.com/chris-alexander-pop/agentfabric/pkg/api/middleware"
	"github.com/chris-alexander-pop/agentfabric/pkg/api/ratelimit"
	"github.com/chris-alexander-pop/agentfabric/pkg/cache"
	"github.com/chris-alexander-pop/agentfabric/pkg/concurrency"
	pkgerrors "github.com/chris-alexander-pop/agentfabric/pkg/errors"
	"github.com/chris-alexander-pop/agentfabric/pkg/validator"
)

// Deps are the collaborators a Gateway dispatches to. Index and Registry
// may be nil, in which case the observer endpoints respond 404/empty
// rather than panicking.
type Deps struct {
	Bus      bus.Bus
	Registry *registry.Registry
	Index    *index.Index
	Validate *validator.Validator
	Cache    cache.Cache
	Config   Config
}

// New builds the echo router for all of the gateway's endpoints.
func New(deps Deps) *echo.Echo {
	if deps.Validate == nil {
		deps.Validate = validator.New()
	}
	if deps.Config.PayloadCapBytes <= 0 {
		deps.Config.PayloadCapBytes = 65536
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = errorHandler

	e.Use(otelecho.Middleware("gateway"))
	e.Use(echo.WrapMiddleware(pkgmiddleware.RequestIDMiddleware()))
	if deps.Cache != nil && deps.Config.RateLimitPerMinute > 0 {
		limiter := ratelimit.New(deps.Cache, ratelimit.StrategyFixedWindow)
		e.Use(echo.WrapMiddleware(pkgmiddleware.RateLimitMiddleware(limiter, deps.Config.RateLimitPerMinute, time.Minute)))
	}

	h := &handlers{deps: deps}
	if deps.Config.MaxConcurrentStreams > 0 {
		h.streamSlots = concurrency.NewSemaphore(deps.Config.MaxConcurrentStreams)
	}
	e.GET("/health", h.health)
	e.GET("/ready", h.ready)
	e.POST("/send", h.send)
	e.GET("/stream/:conversation_id", h.stream)
	e.GET("/conversations", h.conversations)
	e.GET("/agents", h.agents)
	e.GET("/graph/:conversation_id", h.graph)

	return e
}

// errorHandler renders an *pkgerrors.AppError (or any error) as a JSON body
// with the status pkgerrors.HTTPStatus maps it to.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := statusFor(err)
	_ = c.JSON(status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return pkgerrors.HTTPStatus(err)
}
