package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/mcoot/gamesync/internal/api/apierr"
	"github.com/mcoot/gamesync/internal/api/response"
	"github.com/mcoot/gamesync/internal/model"
)

const (
	// Time between keepalive comments
	pingPeriod = 15 * time.Second

	// Snapshots buffered for a slow reader
	sendBufferSize = 16
)

// writeEvent writes one server-sent event
func writeEvent(w http.ResponseWriter, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}

// Events handles GET /api/v1/rooms/{code}/events. Every room snapshot is sent
// as a "room" event until the client goes away or the watch fails.
func (h *RoomHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, apierr.NewInternalError())
		return
	}

	code := model.RoomCode(mux.Vars(r)["code"])
	session, _, err := h.rooms.Open(r.Context(), code)
	if err != nil {
		WriteError(w, err)
		return
	}
	defer session.Leave()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates := make(chan *model.Room, sendBufferSize)
	failed := make(chan error, 1)
	var failOnce sync.Once
	err = session.OnUpdate(ctx, func(room *model.Room, err error) {
		if err != nil {
			failOnce.Do(func() { failed <- err })
			return
		}
		select {
		case updates <- room:
		case <-ctx.Done():
		}
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case room := <-updates:
			if err := writeEvent(w, "room", response.RoomFromModel(room)); err != nil {
				return
			}
			flusher.Flush()

		case err := <-failed:
			_ = writeEvent(w, "error", apierr.ErrorResponse{Error: apierr.APIError{
				Code:    apierr.CodeStoreUnavailable,
				Message: err.Error(),
			}})
			flusher.Flush()
			return

		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case <-ctx.Done():
			return
		}
	}
}
