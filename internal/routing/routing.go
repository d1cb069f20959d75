// Package routing translates a user send request into the set of bus
// publications that make an envelope visible to its conversation, its
// recipient agent, and any stream subscribers.
package routing

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/chris-alexander-pop/agentfabric/internal/bus"
	"github.com/chris-alexander-pop/agentfabric/internal/model"
	pkgerrors "github.com/chris-alexander-pop/agentfabric/pkg/errors"
	"github.com/chris-alexander-pop/agentfabric/pkg/validator"
)

const agentPrefix = "agent:"

var validate = validator.New()

// SendRequest is the inbound shape routing operates on; ID is optional and
// is generated when empty.
type SendRequest struct {
	ID             string
	ConversationID string             `validate:"required"`
	Sender         string             `validate:"required"`
	Recipient      string             `validate:"required"`
	Type           model.EnvelopeType `validate:"required,oneof=message control"`
	Content        string
	Metadata       map[string]any
}

// Roster validates agent recipients before routing. internal/registry's
// Registry implements it; a nil Roster disables the check.
type Roster interface {
	// Allows reports whether name may receive agent-addressed envelopes.
	Allows(name string) bool
}

// Result reports what Route actually published, mirroring the gateway's
// POST /send response shape.
type Result struct {
	Topic    string
	Envelope model.Envelope
}

// Route validates req, builds its envelope, and publishes it to every topic
// its recipient implies, in deterministic order. The first publish failure
// is fatal for the whole send.
func Route(ctx context.Context, b bus.Bus, req SendRequest) (Result, error) {
	return RouteWithRoster(ctx, b, nil, req)
}

// RouteWithRoster behaves like Route but additionally rejects an
// agent-addressed recipient whose name the roster doesn't allow, before
// anything is published.
func RouteWithRoster(ctx context.Context, b bus.Bus, roster Roster, req SendRequest) (Result, error) {
	env, err := buildEnvelope(req)
	if err != nil {
		return Result{}, err
	}

	agentName, toAgent := agentRecipient(env.Recipient)
	if toAgent && roster != nil && !roster.Allows(agentName) {
		return Result{}, pkgerrors.InvalidArgument("unknown agent: "+agentName, nil)
	}

	chatTopic := "chat:" + env.ConversationID
	payload, err := envelopePayload(env)
	if err != nil {
		return Result{}, pkgerrors.InvalidArgument("failed to encode envelope", err)
	}

	if _, err := b.Publish(ctx, chatTopic, model.BusMessage{ID: env.ID, Payload: payload}); err != nil {
		return Result{}, pkgerrors.Unavailable("bus publish failed", err)
	}

	if toAgent {
		agentTopic := "chat:" + agentName
		if _, err := b.Publish(ctx, agentTopic, model.BusMessage{ID: env.ID, Payload: payload}); err != nil {
			return Result{}, pkgerrors.Unavailable("bus publish failed", err)
		}
	}

	streamTopic := "stream:" + env.ConversationID
	event := model.UserMessageEvent(env.ConversationID, env.Sender, env.Content)
	if _, err := b.Publish(ctx, streamTopic, model.BusMessage{Payload: event.AsMap()}); err != nil {
		return Result{}, pkgerrors.Unavailable("bus publish failed", err)
	}

	return Result{Topic: chatTopic, Envelope: env}, nil
}

func buildEnvelope(req SendRequest) (model.Envelope, error) {
	if err := validate.ValidateStruct(req); err != nil {
		return model.Envelope{}, pkgerrors.InvalidArgument("send request failed validation", err)
	}

	env := model.NewEnvelope(req.ConversationID, req.Sender, req.Recipient, req.Type, req.Content, req.Metadata)
	if req.ID != "" {
		env.ID = req.ID
	}
	return env, nil
}

// envelopePayload renders env as the bus's payload shape via a JSON
// round-trip, keeping this the single place that couples the two.
func envelopePayload(env model.Envelope) (map[string]any, error) {
	encoded, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// agentRecipient reports whether recipient addresses an agent inbox and, if
// so, the agent name to route to.
func agentRecipient(recipient string) (string, bool) {
	if !strings.HasPrefix(recipient, agentPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(recipient, agentPrefix)
	if name == "" {
		return "", false
	}
	return name, true
}
