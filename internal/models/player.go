package models

// DefaultHandle is stored for players that have not picked an in-game handle.
const DefaultHandle = "UNK"

// PlayerRecord holds the durable stats for one player.
type PlayerRecord struct {
	ID      string `json:"id"`
	Handle  string `json:"handle"`
	Matches int    `json:"matches"`
	Wins    int    `json:"wins"`
	Ruins   int    `json:"ruins"`
}

// Losses counts every non-winning match, ruined ones included.
func (p PlayerRecord) Losses() int {
	return p.Matches - p.Wins
}

// ClampLimit bounds leaderboard style queries. Anything outside 1..10 falls
// back to 5.
func ClampLimit(limit int) int {
	if limit < 1 || limit > 10 {
		return 5
	}
	return limit
}
