package response

import (
	"github.com/mcoot/gamesync/internal/model"
)

// Health is the response for the health endpoint
type Health struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// Sweep is the response for a manual sweep
type Sweep struct {
	Applied int `json:"applied"`
}

// Room is a room snapshot as served by the API
type Room struct {
	Code      string `json:"code"`
	GameID    string `json:"game_id"`
	Status    string `json:"status"`
	Host      string `json:"host"`
	HostName  string `json:"host_name"`
	Guest     string `json:"guest,omitempty"`
	GuestName string `json:"guest_name,omitempty"`
	MoveID    int    `json:"move_id"`
	LastMove  any    `json:"last_move,omitempty"`
	State     any    `json:"state,omitempty"`
	Winner    string `json:"winner,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// RoomFromModel converts a model.Room to a response Room
func RoomFromModel(r *model.Room) Room {
	resp := Room{
		Code:      string(r.Code),
		GameID:    r.GameID,
		Status:    string(r.Status),
		Host:      r.Host,
		HostName:  r.HostName,
		MoveID:    r.MoveID,
		LastMove:  r.LastMove,
		Winner:    r.Winner,
		CreatedAt: r.CreatedAt,
	}
	if r.HasGuest() {
		resp.Guest = r.Guest
		resp.GuestName = r.GuestName
	}
	if len(r.State) > 0 {
		resp.State = r.State
	}
	return resp
}

// LeaderboardEntry is one ranked row
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UID    string `json:"uid"`
	Name   string `json:"name"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
	Draws  int    `json:"draws"`
	Games  int    `json:"games"`
}

// Leaderboard is the response for a game's standings
type Leaderboard struct {
	GameID  string             `json:"game_id"`
	Entries []LeaderboardEntry `json:"entries"`
}

// LeaderboardFromModel ranks stats in the order given
func LeaderboardFromModel(gameID string, stats []model.PlayerStats) Leaderboard {
	entries := make([]LeaderboardEntry, len(stats))
	for i, s := range stats {
		entries[i] = LeaderboardEntry{
			Rank:   i + 1,
			UID:    s.UID,
			Name:   s.Name,
			Wins:   s.Wins,
			Losses: s.Losses,
			Draws:  s.Draws,
			Games:  s.Games,
		}
	}
	return Leaderboard{GameID: gameID, Entries: entries}
}

// Presence is a user's online status
type Presence struct {
	UID      string `json:"uid"`
	Online   bool   `json:"online"`
	LastSeen int64  `json:"last_seen"`
}
