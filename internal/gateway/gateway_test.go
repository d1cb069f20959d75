package gateway_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	busmemory "github.com/chris-alexander-pop/agentfabric/internal/bus/adapters/memory"
	"github.com/chris-alexander-pop/agentfabric/internal/gateway"
	"github.com/chris-alexander-pop/agentfabric/internal/gateway/index"
	"github.com/chris-alexander-pop/agentfabric/internal/model"
	"github.com/chris-alexander-pop/agentfabric/internal/registry"
)

func TestHealthReturnsOK(t *testing.T) {
	e := gateway.New(gateway.Deps{Bus: busmemory.New()})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestReadyReturns503WhenBusUnavailable(t *testing.T) {
	e := gateway.New(gateway.Deps{Bus: failingBus{}})
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSendPublishesToChatAndStreamTopics(t *testing.T) {
	b := busmemory.New()
	e := gateway.New(gateway.Deps{Bus: b})

	body := `{"conversation_id":"c1","sender":"user:alice","recipient":"agent:Dev","content":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"topic":"chat:c1"`)

	msgs, err := b.Read(context.Background(), "chat:Dev", "", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	streamMsgs, err := b.Read(context.Background(), "stream:c1", "", 10)
	require.NoError(t, err)
	require.Len(t, streamMsgs, 1)
}

func TestSendRejectsMissingRequiredFields(t *testing.T) {
	e := gateway.New(gateway.Deps{Bus: busmemory.New()})

	body := `{"conversation_id":"c1"}`
	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAgentsListsTheRegisteredRoster(t *testing.T) {
	reg := registry.New()
	reg.Register(registry.Agent{Name: "Dev", Team: "eng"})
	e := gateway.New(gateway.Deps{Bus: busmemory.New(), Registry: reg})

	req := httptest.NewRequest(http.MethodGet, "/agents", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Dev"`)
}

func TestSendRejectsAnAgentOutsideTheConfiguredRoster(t *testing.T) {
	reg := registry.New()
	reg.Register(registry.Agent{Name: "Dev", Team: "eng"})
	e := gateway.New(gateway.Deps{Bus: busmemory.New(), Registry: reg})

	body := `{"conversation_id":"c1","sender":"user:alice","recipient":"agent:Ghost","content":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGraphReturnsAnEmptyStructureWhenTheIndexIsInactive(t *testing.T) {
	e := gateway.New(gateway.Deps{Bus: busmemory.New()})

	req := httptest.NewRequest(http.MethodGet, "/graph/ghost", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"agents":[]`)
}

func TestGraphReturns404ForAnUnobservedConversation(t *testing.T) {
	e := gateway.New(gateway.Deps{Bus: busmemory.New(), Index: index.New()})

	req := httptest.NewRequest(http.MethodGet, "/graph/ghost", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamEmitsOnlyTheFirstTokenEventThenPassesOutputThrough(t *testing.T) {
	b := busmemory.New()
	ctx := context.Background()

	publish := func(se model.StreamEvent) {
		_, err := b.Publish(ctx, "stream:c1", model.BusMessage{Payload: se.AsMap()})
		require.NoError(t, err)
	}
	publish(model.TokenEvent("c1", "hel", 0))
	publish(model.TokenEvent("c1", "lo", 1))
	publish(model.OutputEvent("c1", "hello", nil))

	e := gateway.New(gateway.Deps{Bus: b})
	req := httptest.NewRequest(http.MethodGet, "/stream/c1?max_events=2", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Equal(t, 1, strings.Count(body, `"event":"token"`))
	assert.Equal(t, 1, strings.Count(body, `"event":"output"`))
}

type failingBus struct{}

func (failingBus) Read(ctx context.Context, topic string, lastID string, limit int) ([]model.BusMessage, error) {
	return nil, assertError{}
}

func (failingBus) Publish(ctx context.Context, topic string, msg model.BusMessage) (string, error) {
	return "", assertError{}
}

func (failingBus) ReadBlocking(ctx context.Context, topic string, lastID string, limit int, blockMs int) ([]model.BusMessage, error) {
	return nil, assertError{}
}

type assertError struct{}

func (assertError) Error() string { return "bus unavailable" }
