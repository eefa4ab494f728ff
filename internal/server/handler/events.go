package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	rediscache "github.com/fxarena/fxarena/internal/cache/redis"
)

// EventReader replays recent events from a stream's retained history.
// Implemented by the redis EventBus.
type EventReader interface {
	ReadAfter(ctx context.Context, stream, lastID string, count int) ([]rediscache.StreamMessage, error)
}

// EventsHandler serves historical settlement events so clients that missed
// the live broadcast can catch up.
type EventsHandler struct {
	reader EventReader
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler backed by the given reader.
func NewEventsHandler(reader EventReader, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		reader: reader,
		logger: logger,
	}
}

// eventResponse is one replayed event. Payload is passed through verbatim
// since events are published as JSON.
type eventResponse struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// listEventsResponse wraps the replay output. The last entry's ID is the
// cursor for the next request.
type listEventsResponse struct {
	Stream string          `json:"stream"`
	Events []eventResponse `json:"events"`
}

// allowedStreams limits replay to streams this service actually publishes.
var allowedStreams = map[string]bool{
	"settlement": true,
}

// ListEvents replays events from a stream, starting after the given cursor.
// GET /api/events/{stream}?after=0&limit=100
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	stream := pathParam(r, "stream")
	if !allowedStreams[stream] {
		writeError(w, http.StatusNotFound, "unknown event stream")
		return
	}

	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	limit := queryInt(r, "limit", 100)
	if limit > 1000 {
		limit = 1000
	}

	messages, err := h.reader.ReadAfter(r.Context(), stream, after, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: event replay failed",
			slog.String("stream", stream),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}

	resp := listEventsResponse{
		Stream: stream,
		Events: make([]eventResponse, 0, len(messages)),
	}
	for _, msg := range messages {
		resp.Events = append(resp.Events, eventResponse{
			ID:      msg.ID,
			Payload: json.RawMessage(msg.Payload),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
