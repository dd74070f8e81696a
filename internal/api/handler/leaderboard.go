package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mcoot/gamesync/internal/api/response"
	"github.com/mcoot/gamesync/internal/services/leaderboard"
)

// LeaderboardHandler serves game standings
type LeaderboardHandler struct {
	leaderboard *leaderboard.Service
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(lb *leaderboard.Service) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboard: lb}
}

// Top handles GET /api/v1/leaderboards/{game_id}?limit=N
func (h *LeaderboardHandler) Top(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["game_id"]

	limit := leaderboard.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(w, NewInvalidRequestError("limit must be a positive integer"))
			return
		}
		limit = n
	}

	stats, err := h.leaderboard.Top(r.Context(), gameID, limit)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.OK(w, response.LeaderboardFromModel(gameID, stats))
}
