package model

// User is a resolved identity as reported by an identity provider
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Anonymous bool   `json:"anonymous,omitempty"`
}

// Presence is the online flag published for a user
type Presence struct {
	Online   bool  `json:"online"`
	LastSeen int64 `json:"lastSeen"`
}

// GameResult is the outcome of a finished game from one player's perspective
type GameResult string

const (
	ResultWin  GameResult = "win"
	ResultLoss GameResult = "loss"
	ResultDraw GameResult = "draw"
)

// Valid reports whether the result is one of the known outcomes
func (r GameResult) Valid() bool {
	return r == ResultWin || r == ResultLoss || r == ResultDraw
}

// PlayerStats is a user's aggregate record for one game
type PlayerStats struct {
	UID        string `json:"uid,omitempty"`
	Name       string `json:"name"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
	Draws      int    `json:"draws"`
	Games      int    `json:"games"`
	LastPlayed int64  `json:"lastPlayed,omitempty"`
}
