package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/http/middleware"
	"truck-dispatch/internal/logx"
)

const heartbeatInterval = 15 * time.Second

// EventsHandler streams fanout events to the caller's rooms as server-sent events.
type EventsHandler struct {
	logger    logx.Logger
	sub       eventSubscriber
	heartbeat time.Duration
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(logger logx.Logger, sub eventSubscriber) *EventsHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &EventsHandler{logger: logger, sub: sub, heartbeat: heartbeatInterval}
}

// Stream handles GET /v1/events.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rooms := middleware.CallerFrom(r.Context()).Rooms()
	if len(rooms) == 0 {
		writeError(h.logger, w, r, http.StatusUnauthorized, "identity required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(h.logger, w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	sub, err := h.sub.Subscribe(ctx, rooms...)
	if err != nil {
		h.logger.Warn("event subscription failed",
			logx.Strings("rooms", rooms),
			logx.Err(err),
		)
		w.Header().Set("Retry-After", retryAfter)
		writeError(h.logger, w, r, http.StatusServiceUnavailable, "events unavailable, please try again")
		return
	}
	defer func() { _ = sub.Close() }()

	// the stream outlives the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeEvent(w, e); err != nil {
				h.logger.Debug("event stream closed",
					logx.String("request_id", reqID(ctx)),
					logx.Err(err),
				)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, e domain.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, payload)
	return err
}
