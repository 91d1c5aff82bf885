package models

import "context"

// RecordStore is the durable source of truth for matches and player stats.
type RecordStore interface {
	CreateMatch(ctx context.Context, hostID, mode string) (int64, error)
	FetchMatch(ctx context.Context, matchID int64) (MatchRecord, bool, error)
	// ListActiveMatches returns unresolved matches ordered by id.
	ListActiveMatches(ctx context.Context) ([]MatchRecord, error)
	DeleteMatch(ctx context.Context, matchID int64) error
	SetWinner(ctx context.Context, matchID int64, code Status) error
	SetHost(ctx context.Context, matchID int64, playerID string) error

	FetchTeamSlots(ctx context.Context, matchID int64, team Team) (TeamSlots, error)
	WriteTeamSlots(ctx context.Context, matchID int64, team Team, slots TeamSlots) error
	// AddPlayerToTeam fills the first empty slot below capacity and returns
	// its index within the team, or -1 if the team is full.
	AddPlayerToTeam(ctx context.Context, matchID int64, playerID string, team Team, capacity int) (int, error)
	RemovePlayer(ctx context.Context, matchID int64, playerID string) (bool, error)

	RecordResult(ctx context.Context, playerID string, won bool) error
	RecordRuinedMatch(ctx context.Context, playerID string) error
	EnsurePlayer(ctx context.Context, playerID, defaultHandle string) error

	// Atomic runs fn against a store bound to one transaction. If fn returns
	// an error none of its writes persist.
	Atomic(ctx context.Context, fn func(tx RecordStore) error) error
}
