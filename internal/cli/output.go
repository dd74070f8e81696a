package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mcoot/gamesync/internal/model"
	"github.com/mcoot/gamesync/internal/services/janitor"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
}

// NewOutput creates a new Output formatter
func NewOutput(format string) *Output {
	return &Output{format: format}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Println(string(data))
	} else {
		fmt.Println(msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case *model.User:
		o.printUser(v)
	case *model.Room:
		o.printRoom(v)
	case MatchResult:
		o.printMatch(v)
	case Standings:
		o.printStandings(v)
	case PresenceResult:
		o.printPresence(v)
	case janitor.Stats:
		o.printJanitorStats(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// MatchResult is the outcome of a matchmake command
type MatchResult struct {
	State  string `json:"state"`
	Code   string `json:"code,omitempty"`
	Player string `json:"player,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Standings is a game's leaderboard
type Standings struct {
	GameID  string              `json:"gameId"`
	Entries []model.PlayerStats `json:"entries"`
}

// PresenceResult is a user's online status
type PresenceResult struct {
	UID string `json:"uid"`
	*model.Presence
}

func seatName(p model.PlayerIndex) string {
	if p == model.PlayerGuest {
		return "guest"
	}
	return "host"
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format(time.RFC3339)
}

func (o *Output) printUser(u *model.User) {
	if u == nil {
		fmt.Println("Not signed in")
		return
	}
	fmt.Printf("User: %s (%s)\n", u.Name, u.ID)
	if u.Anonymous {
		fmt.Println("Anonymous: yes")
	}
}

func (o *Output) printRoom(r *model.Room) {
	fmt.Printf("Room: %s\n", r.Code)
	fmt.Printf("Game: %s\n", r.GameID)
	fmt.Printf("Status: %s\n", r.Status)
	fmt.Printf("Host: %s (%s)\n", r.HostName, r.Host)
	if r.HasGuest() {
		fmt.Printf("Guest: %s (%s)\n", r.GuestName, r.Guest)
	} else {
		fmt.Println("Guest: (waiting)")
	}
	fmt.Printf("Moves: %d\n", r.MoveID)
	if r.LastMove != nil {
		data, _ := json.Marshal(r.LastMove)
		fmt.Printf("Last Move: %s\n", data)
	}
	if len(r.State) > 0 {
		data, _ := json.Marshal(r.State)
		fmt.Printf("State: %s\n", data)
	}
	if r.Winner != "" {
		fmt.Printf("Winner: %s\n", r.Winner)
	}
	fmt.Printf("Created: %s\n", formatMillis(r.CreatedAt))
}

func (o *Output) printMatch(m MatchResult) {
	if m.Code == "" {
		fmt.Printf("No match: %s\n", m.Reason)
		return
	}
	fmt.Printf("Matched in room %s as %s\n", m.Code, m.Player)
}

func (o *Output) printStandings(s Standings) {
	if len(s.Entries) == 0 {
		fmt.Printf("No results recorded for %s\n", s.GameID)
		return
	}
	fmt.Printf("Leaderboard: %s\n", s.GameID)
	for i, e := range s.Entries {
		fmt.Printf("  %2d. %-20s W %d  L %d  D %d  (%d games)\n",
			i+1, e.Name, e.Wins, e.Losses, e.Draws, e.Games)
	}
}

func (o *Output) printPresence(p PresenceResult) {
	if p.Presence == nil {
		fmt.Printf("%s: never seen\n", p.UID)
		return
	}
	state := "offline"
	if p.Online {
		state = "online"
	}
	fmt.Printf("%s: %s (last seen %s)\n", p.UID, state, formatMillis(p.LastSeen))
}

func (o *Output) printJanitorStats(s janitor.Stats) {
	fmt.Printf("Sweeps: %d\n", s.Sweeps)
	fmt.Printf("Sessions swept: %d\n", s.Applied)
	fmt.Printf("Failures: %d\n", s.Failures)
	if s.LastError != "" {
		fmt.Printf("Last error: %s\n", s.LastError)
	}
}
