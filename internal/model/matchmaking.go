package model

// MatchmakingEntry is a queue record published by a client seeking an opponent
type MatchmakingEntry struct {
	Key      string   `json:"key"`
	UID      string   `json:"uid"`
	Name     string   `json:"name"`
	TS       int64    `json:"ts"`
	RoomCode RoomCode `json:"roomCode,omitempty"`
}

// Consumed reports whether a pairing decision has already claimed this entry
func (e *MatchmakingEntry) Consumed() bool {
	return e.RoomCode != ""
}
