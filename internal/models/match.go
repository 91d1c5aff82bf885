// internal/models/match.go
package models

// SlotsPerTeam is the fixed width of a durable team row. Modes with a
// smaller per-team capacity simply never fill the trailing slots.
const SlotsPerTeam = 4

// Status is the durable winner/status code stored on a match row.
type Status int

const (
	StatusLive  Status = -1 // in progress
	StatusLobby Status = 0  // waiting to start
	StatusWonA  Status = 1  // over, team A won
	StatusWonB  Status = 2  // over, team B won
)

// Terminal reports whether the match has a reported winner.
func (s Status) Terminal() bool {
	return s == StatusWonA || s == StatusWonB
}

func (s Status) String() string {
	switch s {
	case StatusLive:
		return "live"
	case StatusLobby:
		return "lobby"
	case StatusWonA:
		return "won_a"
	case StatusWonB:
		return "won_b"
	}
	return "unknown"
}

// Team identifies one side of a match. The numeric value doubles as the
// winner code written when that team wins.
type Team int

const (
	TeamA Team = 1
	TeamB Team = 2
)

// Valid reports whether t names one of the two teams.
func (t Team) Valid() bool {
	return t == TeamA || t == TeamB
}

// TeamSlots is one durable team row. Empty strings are empty slots.
type TeamSlots [SlotsPerTeam]string

// MatchRecord represents a row in the matches table.
type MatchRecord struct {
	ID     int64  `json:"id"`
	Mode   string `json:"mode"`
	HostID string `json:"host_id"`
	Winner Status `json:"winner"`
}

// RecentMatch is a resolved match along with the players on the winning team.
type RecentMatch struct {
	MatchRecord
	Winners []string `json:"winners"`
}
