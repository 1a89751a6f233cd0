package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-food-rescue/internal/notifier"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 25 * time.Second

// StreamHandler serves the live change feed over Server-Sent Events.
type StreamHandler struct {
	Notifier *notifier.Notifier
}

// NewStreamHandler constructs a StreamHandler.
func NewStreamHandler(n *notifier.Notifier) *StreamHandler {
	if n == nil {
		panic("nil notifier passed to NewStreamHandler")
	}
	return &StreamHandler{Notifier: n}
}

// Events handles GET /v1/events.  Public.  Every listing state change is
// written as an SSE event named after its kind with the full ChangeEvent
// as JSON data.  Delivery is best-effort: clients that fall behind miss
// events and are expected to re-fetch /v1/listings on reconnect.
// Disconnecting cancels the subscription deterministically.
func (h *StreamHandler) Events(c echo.Context) error {
	sub := h.Notifier.Subscribe()
	defer sub.Cancel()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ctx := c.Request().Context()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return nil
			}
			w.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
