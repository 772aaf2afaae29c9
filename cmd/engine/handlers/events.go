package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/weavegraph/core/internal/bootstrap"
)

// EventsHandler streams a workflow's browser_state/plan_updated/
// node_executed events over SSE, fed by observability.Bus.Subscribe.
type EventsHandler struct {
	components *bootstrap.Components
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(components *bootstrap.Components) *EventsHandler {
	return &EventsHandler{components: components}
}

// Stream handles GET /workflows/:id/events.
func (h *EventsHandler) Stream(c echo.Context) error {
	id := workflowID(c)
	events, unsubscribe := h.components.Bus.Subscribe(id)
	defer unsubscribe()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			raw, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", evt.Type, raw); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
