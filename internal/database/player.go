package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jason-s-yu/pugbot/internal/models"
)

// powerExpr mirrors rating.Power.
const powerExpr = `(matches * wins) / (matches - wins + 1)`

// RecordResult counts one finished match for the player. Unknown players are
// left alone.
func (s *Store) RecordResult(ctx context.Context, playerID string, won bool) error {
	win := 0
	if won {
		win = 1
	}
	return s.tx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE players SET matches = matches + 1, wins = wins + $2 WHERE id = $1`,
			playerID, win)
		return err
	})
}

func (s *Store) RecordRuinedMatch(ctx context.Context, playerID string) error {
	return s.tx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE players SET matches = matches + 1, ruins = ruins + 1 WHERE id = $1`,
			playerID)
		return err
	})
}

func (s *Store) EnsurePlayer(ctx context.Context, playerID, defaultHandle string) error {
	return s.tx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO players (id, handle) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
			playerID, defaultHandle)
		return err
	})
}

// SetHandle changes a player's handle, creating the record if needed.
func (s *Store) SetHandle(ctx context.Context, playerID, handle string) error {
	err := s.tx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO players (id, handle) VALUES ($1, $2)
			 ON CONFLICT (id) DO UPDATE SET handle = EXCLUDED.handle`,
			playerID, handle)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to set handle for %s: %w", playerID, err)
	}
	return nil
}

func (s *Store) GetPlayerRecord(ctx context.Context, playerID string) (models.PlayerRecord, bool, error) {
	var p models.PlayerRecord
	err := s.db.QueryRow(ctx,
		`SELECT id, handle, matches, wins, ruins FROM players WHERE id = $1`, playerID,
	).Scan(&p.ID, &p.Handle, &p.Matches, &p.Wins, &p.Ruins)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PlayerRecord{}, false, nil
	}
	if err != nil {
		return models.PlayerRecord{}, false, err
	}
	return p, true, nil
}

func (s *Store) GetTopPlayers(ctx context.Context, limit int) ([]models.PlayerRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, handle, matches, wins, ruins FROM players
		 ORDER BY `+powerExpr+` DESC, ruins ASC, id ASC
		 LIMIT $1`, models.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query top players: %w", err)
	}
	defer rows.Close()

	var out []models.PlayerRecord
	for rows.Next() {
		var p models.PlayerRecord
		if err := rows.Scan(&p.ID, &p.Handle, &p.Matches, &p.Wins, &p.Ruins); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetRecentMatches lists the latest resolved matches with their winning
// roster.
func (s *Store) GetRecentMatches(ctx context.Context, limit int) ([]models.RecentMatch, error) {
	rows, err := s.db.Query(ctx,
		`SELECT m.id, m.mode, m.host_id, m.winner, t.slot0, t.slot1, t.slot2, t.slot3
		 FROM matches m
		 JOIN match_teams t ON t.match_id = m.id AND t.team = m.winner
		 WHERE m.winner > 0
		 ORDER BY m.id DESC
		 LIMIT $1`, models.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent matches: %w", err)
	}
	defer rows.Close()

	var out []models.RecentMatch
	for rows.Next() {
		var rm models.RecentMatch
		var slots [models.SlotsPerTeam]*string
		if err := rows.Scan(&rm.ID, &rm.Mode, &rm.HostID, &rm.Winner,
			&slots[0], &slots[1], &slots[2], &slots[3]); err != nil {
			return nil, err
		}
		for _, p := range slots {
			if p != nil && *p != "" {
				rm.Winners = append(rm.Winners, *p)
			}
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}
