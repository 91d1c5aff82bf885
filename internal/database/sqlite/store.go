// Package sqlite is a single-file record store for small communities that do
// not run Postgres.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/jason-s-yu/pugbot/internal/models"
)

//go:embed schema.sql
var schema string

// powerExpr mirrors rating.Power.
const powerExpr = `(matches * wins) / (matches - wins + 1)`

// conn is satisfied by both *sql.DB and *sql.Tx.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Store is the SQLite record store. Inside Atomic, q and txn are the open
// transaction and every method joins it.
type Store struct {
	db  *sql.DB
	q   conn
	txn *sql.Tx
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps the read-modify-write slot updates serialised.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, q: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.txn != nil {
		return fn(s.txn)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Atomic runs fn in one transaction. Every write fn makes through tx
// commits together or not at all.
func (s *Store) Atomic(ctx context.Context, fn func(tx models.RecordStore) error) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		return fn(&Store{db: s.db, q: tx, txn: tx})
	})
}

func (s *Store) CreateMatch(ctx context.Context, hostID, mode string) (int64, error) {
	var id int64
	err := s.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO matches (mode, host_id) VALUES (?, ?)`, mode, hostID)
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO match_teams (match_id, team, slot0) VALUES (?, 1, ?), (?, 2, NULL)`,
			id, hostID, id)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert match: %w", err)
	}
	return id, nil
}

func (s *Store) FetchMatch(ctx context.Context, matchID int64) (models.MatchRecord, bool, error) {
	var m models.MatchRecord
	var winner int
	err := s.q.QueryRowContext(ctx,
		`SELECT id, mode, host_id, winner FROM matches WHERE id = ?`, matchID,
	).Scan(&m.ID, &m.Mode, &m.HostID, &winner)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MatchRecord{}, false, nil
	}
	if err != nil {
		return models.MatchRecord{}, false, fmt.Errorf("fetch match %d: %w", matchID, err)
	}
	m.Winner = models.Status(winner)
	return m, true, nil
}

func (s *Store) ListActiveMatches(ctx context.Context) ([]models.MatchRecord, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, mode, host_id, winner FROM matches WHERE winner < 1 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active matches: %w", err)
	}
	defer rows.Close()

	var out []models.MatchRecord
	for rows.Next() {
		var m models.MatchRecord
		var winner int
		if err := rows.Scan(&m.ID, &m.Mode, &m.HostID, &winner); err != nil {
			return nil, err
		}
		m.Winner = models.Status(winner)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) DeleteMatch(ctx context.Context, matchID int64) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM matches WHERE id = ?`, matchID)
	return err
}

func (s *Store) SetWinner(ctx context.Context, matchID int64, code models.Status) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE matches SET winner = ? WHERE id = ? AND winner < 1`, int(code), matchID)
	return err
}

func (s *Store) SetHost(ctx context.Context, matchID int64, playerID string) error {
	_, err := s.q.ExecContext(ctx, `UPDATE matches SET host_id = ? WHERE id = ?`, playerID, matchID)
	return err
}

func (s *Store) FetchTeamSlots(ctx context.Context, matchID int64, team models.Team) (models.TeamSlots, error) {
	return fetchTeam(ctx, s.q, matchID, team)
}

func (s *Store) WriteTeamSlots(ctx context.Context, matchID int64, team models.Team, slots models.TeamSlots) error {
	return writeTeam(ctx, s.q, matchID, team, slots)
}

func (s *Store) AddPlayerToTeam(ctx context.Context, matchID int64, playerID string, team models.Team, capacity int) (int, error) {
	slot := -1
	err := s.tx(ctx, func(tx *sql.Tx) error {
		a, err := fetchTeam(ctx, tx, matchID, models.TeamA)
		if err != nil {
			return err
		}
		b, err := fetchTeam(ctx, tx, matchID, models.TeamB)
		if err != nil {
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
		return -1, fmt.Errorf("add player %s to match %d: %w", playerID, matchID, err)
	}
	return slot, nil
}

func (s *Store) RemovePlayer(ctx context.Context, matchID int64, playerID string) (bool, error) {
	removed := false
	err := s.tx(ctx, func(tx *sql.Tx) error {
		for _, t := range []models.Team{models.TeamA, models.TeamB} {
			row, err := fetchTeam(ctx, tx, matchID, t)
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
		return false, fmt.Errorf("remove player %s from match %d: %w", playerID, matchID, err)
	}
	return removed, nil
}

func (s *Store) RecordResult(ctx context.Context, playerID string, won bool) error {
	win := 0
	if won {
		win = 1
	}
	_, err := s.q.ExecContext(ctx,
		`UPDATE players SET matches = matches + 1, wins = wins + ? WHERE id = ?`, win, playerID)
	return err
}

func (s *Store) RecordRuinedMatch(ctx context.Context, playerID string) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE players SET matches = matches + 1, ruins = ruins + 1 WHERE id = ?`, playerID)
	return err
}

func (s *Store) EnsurePlayer(ctx context.Context, playerID, defaultHandle string) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO players (id, handle) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`,
		playerID, defaultHandle)
	return err
}

func (s *Store) SetHandle(ctx context.Context, playerID, handle string) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO players (id, handle) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET handle = excluded.handle`,
		playerID, handle)
	if err != nil {
		return fmt.Errorf("set handle for %s: %w", playerID, err)
	}
	return nil
}

func (s *Store) GetPlayerRecord(ctx context.Context, playerID string) (models.PlayerRecord, bool, error) {
	var p models.PlayerRecord
	err := s.q.QueryRowContext(ctx,
		`SELECT id, handle, matches, wins, ruins FROM players WHERE id = ?`, playerID,
	).Scan(&p.ID, &p.Handle, &p.Matches, &p.Wins, &p.Ruins)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PlayerRecord{}, false, nil
	}
	if err != nil {
		return models.PlayerRecord{}, false, err
	}
	return p, true, nil
}

func (s *Store) GetTopPlayers(ctx context.Context, limit int) ([]models.PlayerRecord, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, handle, matches, wins, ruins FROM players
		 ORDER BY `+powerExpr+` DESC, ruins ASC, id ASC
		 LIMIT ?`, models.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query top players: %w", err)
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

func (s *Store) GetRecentMatches(ctx context.Context, limit int) ([]models.RecentMatch, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT m.id, m.mode, m.host_id, m.winner, t.slot0, t.slot1, t.slot2, t.slot3
		 FROM matches m
		 JOIN match_teams t ON t.match_id = m.id AND t.team = m.winner
		 WHERE m.winner > 0
		 ORDER BY m.id DESC
		 LIMIT ?`, models.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query recent matches: %w", err)
	}
	defer rows.Close()

	var out []models.RecentMatch
	for rows.Next() {
		var rm models.RecentMatch
		var winner int
		var slots [models.SlotsPerTeam]sql.NullString
		if err := rows.Scan(&rm.ID, &rm.Mode, &rm.HostID, &winner,
			&slots[0], &slots[1], &slots[2], &slots[3]); err != nil {
			return nil, err
		}
		rm.Winner = models.Status(winner)
		for _, p := range slots {
			if p.Valid && p.String != "" {
				rm.Winners = append(rm.Winners, p.String)
			}
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

// InsertEvents stores events with their payload as JSON text.
func (s *Store) InsertEvents(ctx context.Context, events []models.LobbyEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO lobby_events (id, match_id, type, actor_id, payload, created_at)
			 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, ev := range events {
			payload, err := json.Marshal(ev.Payload)
			if err != nil {
				return fmt.Errorf("encode payload for event %s: %w", ev.ID, err)
			}
			if _, err := stmt.ExecContext(ctx,
				ev.ID.String(), ev.MatchID, ev.Type, ev.ActorID, string(payload), ev.Timestamp,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func fetchTeam(ctx context.Context, q queryer, matchID int64, team models.Team) (models.TeamSlots, error) {
	var raw [models.SlotsPerTeam]sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT slot0, slot1, slot2, slot3 FROM match_teams WHERE match_id = ? AND team = ?`,
		matchID, int(team),
	).Scan(&raw[0], &raw[1], &raw[2], &raw[3])
	if errors.Is(err, sql.ErrNoRows) {
		return models.TeamSlots{}, nil
	}
	if err != nil {
		return models.TeamSlots{}, err
	}
	var ts models.TeamSlots
	for i, p := range raw {
		ts[i] = p.String
	}
	return ts, nil
}

func writeTeam(ctx context.Context, e execer, matchID int64, team models.Team, slots models.TeamSlots) error {
	var args [models.SlotsPerTeam]sql.NullString
	for i, p := range slots {
		args[i] = sql.NullString{String: p, Valid: p != ""}
	}
	_, err := e.ExecContext(ctx,
		`UPDATE match_teams SET slot0 = ?, slot1 = ?, slot2 = ?, slot3 = ? WHERE match_id = ? AND team = ?`,
		args[0], args[1], args[2], args[3], matchID, int(team))
	return err
}
