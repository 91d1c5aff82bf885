package rating

import (
	"sort"

	"github.com/jason-s-yu/pugbot/internal/models"
)

// Power is the leaderboard score: (m*w)/(m-w+1) in integer arithmetic, so
// it rewards both volume and win rate. It matches the ORDER BY expression
// the SQL stores use.
func Power(matches, wins int) int {
	return (matches * wins) / (matches - wins + 1)
}

// Ratio is wins over losses. A player without losses gets their win count.
func Ratio(wins, losses int) float64 {
	if losses <= 0 {
		return float64(wins)
	}
	return float64(wins) / float64(losses)
}

// Rank orders players for the leaderboard: highest power first, then fewest
// ruined matches, then id for a stable result.
func Rank(players []models.PlayerRecord) {
	sort.SliceStable(players, func(i, j int) bool {
		pi := Power(players[i].Matches, players[i].Wins)
		pj := Power(players[j].Matches, players[j].Wins)
		if pi != pj {
			return pi > pj
		}
		if players[i].Ruins != players[j].Ruins {
			return players[i].Ruins < players[j].Ruins
		}
		return players[i].ID < players[j].ID
	})
}
