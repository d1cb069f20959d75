package gateway

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chris-alexander-pop/agentfabric/internal/gateway/index"
	"github.com/chris-alexander-pop/agentfabric/internal/model"
	"github.com/chris-alexander-pop/agentfabric/internal/routing"
	"github.com/chris-alexander-pop/agentfabric/pkg/concurrency"
	pkgerrors "github.com/chris-alexander-pop/agentfabric/pkg/errors"
)

type handlers struct {
	deps Deps

	// streamSlots bounds open /stream connections when configured; nil
	// means unbounded.
	streamSlots *concurrency.Semaphore
}

// sendRequest is the JSON body POST /send accepts.
type sendRequest struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id" validate:"required"`
	Sender         string         `json:"sender" validate:"required"`
	Recipient      string         `json:"recipient" validate:"required"`
	Type           string         `json:"type"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func (h *handlers) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) ready(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := h.deps.Bus.Read(ctx, "ready:probe", "", 1); err != nil {
		return pkgerrors.Unavailable("bus not ready", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) send(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return pkgerrors.InvalidArgument("malformed request body", err)
	}
	if req.Type == "" {
		req.Type = string(model.EnvelopeMessage)
	}
	if err := h.deps.Validate.ValidateStruct(req); err != nil {
		return pkgerrors.InvalidArgument("request failed validation", err)
	}

	var roster routing.Roster
	if h.deps.Registry != nil {
		roster = h.deps.Registry
	}

	ctx := c.Request().Context()
	result, err := routing.RouteWithRoster(ctx, h.deps.Bus, roster, routing.SendRequest{
		ID:             req.ID,
		ConversationID: req.ConversationID,
		Sender:         req.Sender,
		Recipient:      req.Recipient,
		Type:           model.EnvelopeType(req.Type),
		Content:        req.Content,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "topic": result.Topic})
}

func (h *handlers) conversations(c echo.Context) error {
	if h.deps.Index == nil {
		return c.JSON(http.StatusOK, []any{})
	}
	return c.JSON(http.StatusOK, h.deps.Index.Conversations())
}

func (h *handlers) agents(c echo.Context) error {
	if h.deps.Registry == nil {
		return c.JSON(http.StatusOK, []any{})
	}
	return c.JSON(http.StatusOK, h.deps.Registry.List())
}

func (h *handlers) graph(c echo.Context) error {
	id := c.Param("conversation_id")
	if h.deps.Index == nil {
		return c.JSON(http.StatusOK, index.Graph{ConversationID: id, Agents: []string{}})
	}
	g, ok := h.deps.Index.GraphFor(id)
	if !ok {
		return pkgerrors.NotFound("conversation not observed", nil)
	}
	return c.JSON(http.StatusOK, g)
}
