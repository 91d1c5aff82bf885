package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jason-s-yu/pugbot/internal/models"
)

// CreateMatch inserts the match row and both team rows, seating the host in
// the first slot of team A.
func (s *Store) CreateMatch(ctx context.Context, hostID, mode string) (int64, error) {
	var id int64
	err := s.tx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO matches (mode, host_id) VALUES ($1, $2) RETURNING id`,
			mode, hostID,
		).Scan(&id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO match_teams (match_id, team, slot0) VALUES ($1, 1, $2), ($1, 2, NULL)`,
			id, hostID,
		); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert match: %w", err)
	}
	return id, nil
}

func (s *Store) FetchMatch(ctx context.Context, matchID int64) (models.MatchRecord, bool, error) {
	var m models.MatchRecord
	err := s.db.QueryRow(ctx,
		`SELECT id, mode, host_id, winner FROM matches WHERE id = $1`, matchID,
	).Scan(&m.ID, &m.Mode, &m.HostID, &m.Winner)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.MatchRecord{}, false, nil
	}
	if err != nil {
		return models.MatchRecord{}, false, fmt.Errorf("failed to fetch match %d: %w", matchID, err)
	}
	return m, true, nil
}

func (s *Store) ListActiveMatches(ctx context.Context) ([]models.MatchRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, mode, host_id, winner FROM matches WHERE winner < 1 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active matches: %w", err)
	}
	defer rows.Close()

	var out []models.MatchRecord
	for rows.Next() {
		var m models.MatchRecord
		if err := rows.Scan(&m.ID, &m.Mode, &m.HostID, &m.Winner); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) DeleteMatch(ctx context.Context, matchID int64) error {
	return s.tx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM matches WHERE id = $1`, matchID)
		return err
	})
}

// SetWinner never overwrites a reported winner.
func (s *Store) SetWinner(ctx context.Context, matchID int64, code models.Status) error {
	return s.tx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE matches SET winner = $1 WHERE id = $2 AND winner < 1`, int(code), matchID)
		return err
	})
}

func (s *Store) SetHost(ctx context.Context, matchID int64, playerID string) error {
	return s.tx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE matches SET host_id = $1 WHERE id = $2`, playerID, matchID)
		return err
	})
}

func (s *Store) FetchTeamSlots(ctx context.Context, matchID int64, team models.Team) (models.TeamSlots, error) {
	return fetchTeam(ctx, s.db, matchID, team)
}

func (s *Store) WriteTeamSlots(ctx context.Context, matchID int64, team models.Team, slots models.TeamSlots) error {
	return s.tx(ctx, func(tx pgx.Tx) error {
		return writeTeam(ctx, tx, matchID, team, slots)
	})
}

// AddPlayerToTeam seats playerID in the first free slot of team below
// capacity. It returns -1 when the team is full or the player is already in
// the match.
func (s *Store) AddPlayerToTeam(ctx context.Context, matchID int64, playerID string, team models.Team, capacity int) (int, error) {
	slot := -1
	err := s.tx(ctx, func(tx pgx.Tx) error {
		var a, b models.TeamSlots
		var err error
		if a, err = fetchTeamForUpdate(ctx, tx, matchID, models.TeamA); err != nil {
			return err
		}
		if b, err = fetchTeamForUpdate(ctx, tx, matchID, models.TeamB); err != nil {
			return err
		}
		for _, p := range append(a[:], b[:]...) {
			if p == playerID {
				return nil
			}
		}

		row := a
		if team == models.TeamB {
			row = b
		}
		for i := 0; i < capacity && i < models.SlotsPerTeam; i++ {
			if row[i] == "" {
				row[i] = playerID
				slot = i
				return writeTeam(ctx, tx, matchID, team, row)
			}
		}
		return nil
	})
	if err != nil {
		return -1, fmt.Errorf("failed to add player %s to match %d: %w", playerID, matchID, err)
	}
	return slot, nil
}

func (s *Store) RemovePlayer(ctx context.Context, matchID int64, playerID string) (bool, error) {
	removed := false
	err := s.tx(ctx, func(tx pgx.Tx) error {
		for _, t := range []models.Team{models.TeamA, models.TeamB} {
			row, err := fetchTeamForUpdate(ctx, tx, matchID, t)
			if err != nil {
				return err
			}
			for i, p := range row {
				if p == playerID {
					row[i] = ""
					removed = true
					return writeTeam(ctx, tx, matchID, t, row)
				}
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to remove player %s from match %d: %w", playerID, matchID, err)
	}
	return removed, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func fetchTeam(ctx context.Context, q querier, matchID int64, team models.Team) (models.TeamSlots, error) {
	return scanTeam(q.QueryRow(ctx,
		`SELECT slot0, slot1, slot2, slot3 FROM match_teams WHERE match_id = $1 AND team = $2`,
		matchID, int(team)))
}

func fetchTeamForUpdate(ctx context.Context, tx pgx.Tx, matchID int64, team models.Team) (models.TeamSlots, error) {
	return scanTeam(tx.QueryRow(ctx,
		`SELECT slot0, slot1, slot2, slot3 FROM match_teams WHERE match_id = $1 AND team = $2 FOR UPDATE`,
		matchID, int(team)))
}

func scanTeam(row pgx.Row) (models.TeamSlots, error) {
	var raw [models.SlotsPerTeam]*string
	if err := row.Scan(&raw[0], &raw[1], &raw[2], &raw[3]); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.TeamSlots{}, nil
		}
		return models.TeamSlots{}, err
	}
	var ts models.TeamSlots
	for i, p := range raw {
		if p != nil {
			ts[i] = *p
		}
	}
	return ts, nil
}

func writeTeam(ctx context.Context, tx pgx.Tx, matchID int64, team models.Team, slots models.TeamSlots) error {
	var args [models.SlotsPerTeam]*string
	for i := range slots {
		if slots[i] != "" {
			p := slots[i]
			args[i] = &p
		}
	}
	_, err := tx.Exec(ctx,
		`UPDATE match_teams SET slot0 = $3, slot1 = $4, slot2 = $5, slot3 = $6 WHERE match_id = $1 AND team = $2`,
		matchID, int(team), args[0], args[1], args[2], args[3])
	return err
}
