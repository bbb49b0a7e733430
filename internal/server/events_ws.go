package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/astrolabe-io/astrolabe/internal/events"
)

const (
	// eventBuffer is the per-connection channel depth; slow clients drop
	// events past this instead of stalling publishers
	eventBuffer = 128

	writeTimeout = 5 * time.Second
)

// EventsHandler streams bus events to websocket clients
type EventsHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewEventsHandler creates the websocket event stream handler
func NewEventsHandler(bus *events.Bus, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		bus: bus,
		log: log.With().Str("handler", "events").Logger(),
	}
}

// Serve upgrades the connection and forwards events until the client
// disconnects or the bus closes
// GET /api/events/ws
func (h *EventsHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Browsers on other origins may subscribe; events are read-only
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	id, ch := h.bus.Subscribe(eventBuffer)
	defer h.bus.Unsubscribe(id)

	h.log.Debug().Int("subscriber", id).Msg("Event stream connected")

	// Reads only matter for detecting disconnect; discard everything
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Int("subscriber", id).Msg("Event stream disconnected")
			return

		case evt, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if err := h.write(ctx, conn, evt); err != nil {
				h.log.Debug().Err(err).Int("subscriber", id).Msg("Event stream write failed")
				return
			}
		}
	}
}

func (h *EventsHandler) write(ctx context.Context, conn *websocket.Conn, evt events.Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, evt)
}
