package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/pugbot/internal/command"
	"github.com/jason-s-yu/pugbot/internal/models"
	"github.com/jason-s-yu/pugbot/internal/rating"
)

// PlayerStats is a player record with derived figures.
type PlayerStats struct {
	models.PlayerRecord
	Losses int     `json:"losses"`
	Ratio  float64 `json:"ratio"`
	Power  int     `json:"power"`
}

func statsOf(p models.PlayerRecord) PlayerStats {
	return PlayerStats{
		PlayerRecord: p,
		Losses:       p.Losses(),
		Ratio:        rating.Ratio(p.Wins, p.Losses()),
		Power:        rating.Power(p.Matches, p.Wins),
	}
}

// PlayerStatsHandler serves GET /stats/player/{id}.
func PlayerStatsHandler(logger *logrus.Logger, reports command.Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" {
			http.Error(w, "missing player id", http.StatusBadRequest)
			return
		}
		rec, ok, err := reports.GetPlayerRecord(r.Context(), id)
		if err != nil {
			logger.WithError(err).WithField("player", id).Error("failed to load player record")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "no record", http.StatusNotFound)
			return
		}
		writeJSON(logger, w, statsOf(rec))
	}
}

// TopPlayersHandler serves GET /stats/top?limit=n.
func TopPlayersHandler(logger *logrus.Logger, reports command.Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := limitParam(r)
		if !ok {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		players, err := reports.GetTopPlayers(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to load top players")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		out := make([]PlayerStats, 0, len(players))
		for _, p := range players {
			out = append(out, statsOf(p))
		}
		writeJSON(logger, w, out)
	}
}

// RecentMatchesHandler serves GET /stats/recent?limit=n.
func RecentMatchesHandler(logger *logrus.Logger, reports command.Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := limitParam(r)
		if !ok {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		matches, err := reports.GetRecentMatches(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to load recent matches")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if matches == nil {
			matches = []models.RecentMatch{}
		}
		writeJSON(logger, w, matches)
	}
}
