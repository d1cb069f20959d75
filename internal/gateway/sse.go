package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chris-alexander-pop/agentfabric/internal/model"
	pkgerrors "github.com/chris-alexander-pop/agentfabric/pkg/errors"
)

const pollInterval = 20 * time.Millisecond

// stream implements GET /stream/:conversation_id. It polls the
// conversation's stream topic and relays each entry as an SSE frame,
// resuming from the Last-Event-ID request header (or ?last_id=) when
// present, filtering to the first token event only, and replacing any
// event whose encoded payload exceeds the configured cap with a
// model.TruncatedEvent.
func (h *handlers) stream(c echo.Context) error {
	if h.streamSlots != nil {
		if !h.streamSlots.TryAcquire(1) {
			return pkgerrors.Unavailable("stream capacity exhausted", nil)
		}
		defer h.streamSlots.Release(1)
	}

	ctx := c.Request().Context()
	conversationID := c.Param("conversation_id")
	topic := "stream:" + conversationID

	lastID := c.Request().Header.Get("Last-Event-ID")
	if lastID == "" {
		lastID = c.QueryParam("last_id")
	}

	maxEvents := h.deps.Config.SSEEventCap
	if raw := c.QueryParam("max_events"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			maxEvents = n
		}
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, canFlush := resp.Writer.(http.Flusher)

	firstTokenSent := false
	sent := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := h.deps.Bus.Read(ctx, topic, lastID, 100)
		if err != nil {
			return nil
		}
		if len(msgs) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollInterval):
			}
			continue
		}

		for _, msg := range msgs {
			lastID = msg.ID

			if kind, _ := msg.Payload["event"].(string); kind == model.EventToken {
				if firstTokenSent {
					continue
				}
				firstTokenSent = true
			}

			encoded, err := json.Marshal(msg.Payload)
			if err != nil {
				continue
			}
			if len(encoded) > h.deps.Config.PayloadCapBytes {
				encoded, err = json.Marshal(model.TruncatedEvent(conversationID).AsMap())
				if err != nil {
					continue
				}
			}

			if _, err := resp.Write([]byte("id: " + msg.ID + "\n")); err != nil {
				return nil
			}
			if _, err := resp.Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err := resp.Write(encoded); err != nil {
				return nil
			}
			if _, err := resp.Write([]byte("\n\n")); err != nil {
				return nil
			}
			if canFlush {
				flusher.Flush()
			}

			sent++
			if maxEvents > 0 && sent >= maxEvents {
				return nil
			}
		}
	}
}
