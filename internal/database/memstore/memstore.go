// Package memstore is an in-process record store for development runs and
// tests. Nothing survives a restart.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/jason-s-yu/pugbot/internal/models"
	"github.com/jason-s-yu/pugbot/internal/rating"
)

type Store struct {
	mu      sync.Mutex
	nextID  int64
	matches map[int64]models.MatchRecord
	teams   map[int64]*[2]models.TeamSlots
	players map[string]models.PlayerRecord
	events  []models.LobbyEvent
}

func New() *Store {
	return &Store{
		matches: make(map[int64]models.MatchRecord),
		teams:   make(map[int64]*[2]models.TeamSlots),
		players: make(map[string]models.PlayerRecord),
	}
}

func (s *Store) CreateMatch(_ context.Context, hostID, mode string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.matches[id] = models.MatchRecord{ID: id, Mode: mode, HostID: hostID}
	teams := &[2]models.TeamSlots{}
	teams[0][0] = hostID
	s.teams[id] = teams
	return id, nil
}

func (s *Store) FetchMatch(_ context.Context, matchID int64) (models.MatchRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.matches[matchID]
	return rec, ok, nil
}

func (s *Store) ListActiveMatches(_ context.Context) ([]models.MatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MatchRecord
	for _, rec := range s.matches {
		if rec.Winner < models.StatusWonA {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteMatch(_ context.Context, matchID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matches, matchID)
	delete(s.teams, matchID)
	return nil
}

// SetWinner only updates a match that has no winner yet.
func (s *Store) SetWinner(_ context.Context, matchID int64, code models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.matches[matchID]
	if !ok || rec.Winner >= models.StatusWonA {
		return nil
	}
	rec.Winner = code
	s.matches[matchID] = rec
	return nil
}

func (s *Store) SetHost(_ context.Context, matchID int64, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.matches[matchID]
	if !ok {
		return nil
	}
	rec.HostID = playerID
	s.matches[matchID] = rec
	return nil
}

func (s *Store) FetchTeamSlots(_ context.Context, matchID int64, team models.Team) (models.TeamSlots, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	teams, ok := s.teams[matchID]
	if !ok || !team.Valid() {
		return models.TeamSlots{}, nil
	}
	return teams[team-1], nil
}

func (s *Store) WriteTeamSlots(_ context.Context, matchID int64, team models.Team, slots models.TeamSlots) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if teams, ok := s.teams[matchID]; ok && team.Valid() {
		teams[team-1] = slots
	}
	return nil
}

func (s *Store) AddPlayerToTeam(_ context.Context, matchID int64, playerID string, team models.Team, capacity int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	teams, ok := s.teams[matchID]
	if !ok || !team.Valid() {
		return -1, nil
	}
	for _, row := range teams {
		for _, p := range row {
			if p == playerID {
				return -1, nil
			}
		}
	}
	row := &teams[team-1]
	for i := 0; i < capacity && i < models.SlotsPerTeam; i++ {
		if row[i] == "" {
			row[i] = playerID
			return i, nil
		}
	}
	return -1, nil
}

func (s *Store) RemovePlayer(_ context.Context, matchID int64, playerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	teams, ok := s.teams[matchID]
	if !ok {
		return false, nil
	}
	for t := range teams {
		for i, p := range teams[t] {
			if p == playerID {
				teams[t][i] = ""
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Store) RecordResult(_ context.Context, playerID string, won bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return nil
	}
	p.Matches++
	if won {
		p.Wins++
	}
	s.players[playerID] = p
	return nil
}

func (s *Store) RecordRuinedMatch(_ context.Context, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return nil
	}
	p.Matches++
	p.Ruins++
	s.players[playerID] = p
	return nil
}

func (s *Store) EnsurePlayer(_ context.Context, playerID, defaultHandle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[playerID]; !ok {
		s.players[playerID] = models.PlayerRecord{ID: playerID, Handle: defaultHandle}
	}
	return nil
}

// Atomic runs fn against a copy of the store and adopts the copy only if fn
// succeeds. Other callers wait until fn returns.
func (s *Store) Atomic(ctx context.Context, fn func(tx models.RecordStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{
		nextID:  s.nextID,
		matches: make(map[int64]models.MatchRecord, len(s.matches)),
		teams:   make(map[int64]*[2]models.TeamSlots, len(s.teams)),
		players: make(map[string]models.PlayerRecord, len(s.players)),
		events:  s.events,
	}
	for id, rec := range s.matches {
		tx.matches[id] = rec
	}
	for id, teams := range s.teams {
		cp := *teams
		tx.teams[id] = &cp
	}
	for id, p := range s.players {
		tx.players[id] = p
	}

	if err := fn(tx); err != nil {
		return err
	}
	s.nextID = tx.nextID
	s.matches = tx.matches
	s.teams = tx.teams
	s.players = tx.players
	s.events = tx.events
	return nil
}

func (s *Store) GetPlayerRecord(_ context.Context, playerID string) (models.PlayerRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	return p, ok, nil
}

func (s *Store) GetTopPlayers(_ context.Context, limit int) ([]models.PlayerRecord, error) {
	s.mu.Lock()
	out := make([]models.PlayerRecord, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	s.mu.Unlock()

	rating.Rank(out)
	if n := models.ClampLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *Store) GetRecentMatches(_ context.Context, limit int) ([]models.RecentMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RecentMatch
	for id, rec := range s.matches {
		if !rec.Winner.Terminal() {
			continue
		}
		rm := models.RecentMatch{MatchRecord: rec}
		for _, p := range s.teams[id][rec.Winner-1] {
			if p != "" {
				rm.Winners = append(rm.Winners, p)
			}
		}
		out = append(out, rm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if n := models.ClampLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// SetHandle changes a player's handle, creating the record if needed.
func (s *Store) SetHandle(_ context.Context, playerID, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		p = models.PlayerRecord{ID: playerID}
	}
	p.Handle = handle
	s.players[playerID] = p
	return nil
}

// InsertEvents appends events to an in-memory log.
func (s *Store) InsertEvents(_ context.Context, events []models.LobbyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// Events returns a copy of the event log.
func (s *Store) Events() []models.LobbyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LobbyEvent(nil), s.events...)
}
