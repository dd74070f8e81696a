package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/gamesync/internal/api/handler"
	"github.com/mcoot/gamesync/internal/api/middleware"
	logmw "github.com/mcoot/gamesync/internal/middleware"
	"github.com/mcoot/gamesync/internal/services/janitor"
	"github.com/mcoot/gamesync/internal/services/leaderboard"
	"github.com/mcoot/gamesync/internal/services/presence"
	"github.com/mcoot/gamesync/internal/services/room"
	"github.com/mcoot/gamesync/internal/store"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	Store       store.Store
	Janitor     *janitor.Service
	Rooms       *room.Service
	Leaderboard *leaderboard.Service
	Presence    *presence.Service
}

// NewRouter creates the operations API router. Everything except the manual
// sweep is read-only; clients never write through it.
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	janitorHandler := handler.NewJanitorHandler(cfg.Janitor, cfg.Store, cfg.Logger)
	roomHandler := handler.NewRoomHandler(cfg.Rooms)
	leaderboardHandler := handler.NewLeaderboardHandler(cfg.Leaderboard)
	presenceHandler := handler.NewPresenceHandler(cfg.Presence)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Recovery(cfg.Logger))
	api.Use(logmw.Logging(cfg.Logger))

	api.HandleFunc("/health", janitorHandler.Health).Methods(http.MethodGet)
	api.HandleFunc("/janitor", janitorHandler.Stats).Methods(http.MethodGet)
	api.HandleFunc("/janitor/sweep", janitorHandler.Sweep).Methods(http.MethodPost)

	api.HandleFunc("/rooms/{code}", roomHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{code}/events", roomHandler.Events).Methods(http.MethodGet)
	api.HandleFunc("/leaderboards/{game_id}", leaderboardHandler.Top).Methods(http.MethodGet)
	api.HandleFunc("/presence/{uid}", presenceHandler.Get).Methods(http.MethodGet)

	return r
}
