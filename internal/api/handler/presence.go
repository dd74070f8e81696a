package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/gamesync/internal/api/apierr"
	"github.com/mcoot/gamesync/internal/api/response"
	"github.com/mcoot/gamesync/internal/services/presence"
)

// PresenceHandler serves online status
type PresenceHandler struct {
	presence *presence.Service
}

// NewPresenceHandler creates a new presence handler
func NewPresenceHandler(p *presence.Service) *PresenceHandler {
	return &PresenceHandler{presence: p}
}

// Get handles GET /api/v1/presence/{uid}
func (h *PresenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]

	p, err := h.presence.Get(r.Context(), uid)
	if err != nil {
		WriteError(w, err)
		return
	}
	if p == nil {
		WriteError(w, apierr.NewNotFoundError("User has never been online"))
		return
	}

	response.OK(w, response.Presence{UID: uid, Online: p.Online, LastSeen: p.LastSeen})
}
