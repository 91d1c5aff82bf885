package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jason-s-yu/pugbot/internal/models"
)

func TestPower(t *testing.T) {
	assert.Equal(t, 0, Power(0, 0))
	assert.Equal(t, 100, Power(10, 10), "10 wins from 10 matches")
	assert.Equal(t, 8, Power(10, 5))
	assert.Equal(t, 0, Power(10, 0))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 3.0, Ratio(3, 0))
	assert.Equal(t, 0.5, Ratio(2, 4))
}

func TestRank(t *testing.T) {
	players := []models.PlayerRecord{
		{ID: "c", Matches: 10, Wins: 5, Ruins: 2},
		{ID: "a", Matches: 10, Wins: 10},
		{ID: "b", Matches: 10, Wins: 5, Ruins: 0},
		{ID: "d", Matches: 1, Wins: 0},
	}
	Rank(players)

	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
}
