package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/gamesync/internal/api/response"
	"github.com/mcoot/gamesync/internal/model"
	"github.com/mcoot/gamesync/internal/services/room"
)

// RoomHandler serves read-only room snapshots
type RoomHandler struct {
	rooms *room.Service
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(rooms *room.Service) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

// Get handles GET /api/v1/rooms/{code}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := model.RoomCode(mux.Vars(r)["code"])

	snapshot, err := h.rooms.Get(r.Context(), code)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.OK(w, response.RoomFromModel(snapshot))
}
