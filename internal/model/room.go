package model

// RoomCode is the short human-readable identifier of a room
type RoomCode string

// RoomStatus represents the lifecycle stage of a room
type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "waiting"  // Host present, no guest yet
	RoomStatusPlaying  RoomStatus = "playing"  // Guest joined
	RoomStatusFinished RoomStatus = "finished" // Winner recorded
)

// PlayerIndex identifies a participant's seat in a room
type PlayerIndex int

const (
	PlayerHost  PlayerIndex = 0
	PlayerGuest PlayerIndex = 1
)

// AnonymousParticipant is recorded as host/guest when no identity is signed in
const AnonymousParticipant = "anonymous"

// emptyGuest is a legacy placeholder some clients write instead of omitting the guest
const emptyGuest = "empty"

// Room is the persisted record of a single match
type Room struct {
	Code      RoomCode       `json:"code"`
	GameID    string         `json:"gameId"`
	Host      string         `json:"host"`
	HostName  string         `json:"hostName"`
	Guest     string         `json:"guest,omitempty"`
	GuestName string         `json:"guestName,omitempty"`
	State     map[string]any `json:"state,omitempty"`
	MoveID    int            `json:"moveId"`
	LastMove  any            `json:"lastMove,omitempty"`
	Status    RoomStatus     `json:"status"`
	Winner    string         `json:"winner,omitempty"`
	CreatedAt int64          `json:"createdAt"`
}

// HasGuest reports whether the guest seat is occupied
func (r *Room) HasGuest() bool {
	return r.Guest != "" && r.Guest != emptyGuest
}

// CanTransition reports whether the room may move to the given status.
// Only waiting -> playing and playing -> finished are permitted.
func (r *Room) CanTransition(to RoomStatus) bool {
	switch r.Status {
	case RoomStatusWaiting:
		return to == RoomStatusPlaying
	case RoomStatusPlaying:
		return to == RoomStatusFinished
	default:
		return false
	}
}
