package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/events"
)

const (
	streamBufferSize = 100
	writeTimeout     = 5 * time.Second
)

// EventsStreamHandler streams bus events to websocket clients.
type EventsStreamHandler struct {
	bus            *events.Bus
	originPatterns []string
	log            zerolog.Logger
}

// NewEventsStreamHandler creates a stream handler accepting connections from
// the given CORS origins.
func NewEventsStreamHandler(bus *events.Bus, allowedOrigins []string, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		bus:            bus,
		originPatterns: originPatterns(allowedOrigins),
		log:            log.With().Str("component", "events_stream").Logger(),
	}
}

// originPatterns turns origins such as http://localhost:3000 into the host
// patterns the websocket handshake matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}

// ServeHTTP handles GET /api/v1/events/ws.
// Query parameters: format=json|msgpack, types=TYPE_A,TYPE_B.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "msgpack" {
		apiutil.WriteDetail(w, http.StatusBadRequest, "format must be json or msgpack")
		return
	}
	types := parseTypes(r.URL.Query().Get("types"))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket handshake failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	sub := h.bus.Subscribe(streamBufferSize, types...)
	defer sub.Unsubscribe()

	// Clients only listen; CloseRead handles their close frames.
	ctx := conn.CloseRead(r.Context())

	h.log.Info().
		Int64("user_id", auth.UserID(r.Context())).
		Str("format", format).
		Int("types", len(types)).
		Msg("Client connected to event stream")

	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Int64("dropped", sub.Dropped()).Msg("Client disconnected from event stream")
			return
		case ev, ok := <-sub.Events():
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := h.write(ctx, conn, format, ev); err != nil {
				h.log.Debug().Err(err).Msg("Event stream write failed")
				return
			}
		}
	}
}

func (h *EventsStreamHandler) write(ctx context.Context, conn *websocket.Conn, format string, ev events.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if format == "msgpack" {
		payload, err := msgpack.Marshal(&ev)
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageBinary, payload)
	}
	return wsjson.Write(ctx, conn, ev)
}

func parseTypes(raw string) []events.EventType {
	var out []events.EventType
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, events.EventType(strings.ToUpper(t)))
		}
	}
	return out
}
