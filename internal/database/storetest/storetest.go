// Package storetest runs one behavioural suite against every record store
// backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/pugbot/internal/models"
)

// Store is the full surface a backend offers: the lobby record store plus
// the reporting and history methods.
type Store interface {
	models.RecordStore

	GetPlayerRecord(ctx context.Context, playerID string) (models.PlayerRecord, bool, error)
	GetTopPlayers(ctx context.Context, limit int) ([]models.PlayerRecord, error)
	GetRecentMatches(ctx context.Context, limit int) ([]models.RecentMatch, error)
	SetHandle(ctx context.Context, playerID, handle string) error
	InsertEvents(ctx context.Context, events []models.LobbyEvent) error
}

// Run exercises a freshly created, empty store. Player ids are prefixed with
// a random tag so shared databases do not collide between runs.
func Run(t *testing.T, open func(t *testing.T) Store) {
	tag := uuid.NewString()[:8] + "-"
	id := func(s string) string { return tag + s }

	t.Run("CreateSeatsHost", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		mid, err := s.CreateMatch(ctx, id("host"), "2v2")
		require.NoError(t, err)
		assert.Greater(t, mid, int64(0))

		rec, ok, err := s.FetchMatch(ctx, mid)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "2v2", rec.Mode)
		assert.Equal(t, id("host"), rec.HostID)
		assert.Equal(t, models.StatusLobby, rec.Winner)

		a, err := s.FetchTeamSlots(ctx, mid, models.TeamA)
		require.NoError(t, err)
		assert.Equal(t, models.TeamSlots{id("host")}, a)
		b, err := s.FetchTeamSlots(ctx, mid, models.TeamB)
		require.NoError(t, err)
		assert.Equal(t, models.TeamSlots{}, b)
	})

	t.Run("FetchMissing", func(t *testing.T) {
		s := open(t)
		_, ok, err := s.FetchMatch(context.Background(), 987654321)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("AddRespectsCapacity", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		mid, err := s.CreateMatch(ctx, id("h"), "2v2")
		require.NoError(t, err)

		slot, err := s.AddPlayerToTeam(ctx, mid, id("p1"), models.TeamA, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, slot)

		slot, err = s.AddPlayerToTeam(ctx, mid, id("p2"), models.TeamA, 2)
		require.NoError(t, err)
		assert.Equal(t, -1, slot, "team A is full at capacity 2")

		slot, err = s.AddPlayerToTeam(ctx, mid, id("p1"), models.TeamB, 2)
		require.NoError(t, err)
		assert.Equal(t, -1, slot, "a seated player cannot take a second slot")

		slot, err = s.AddPlayerToTeam(ctx, mid, id("p2"), models.TeamB, 2)
		require.NoError(t, err)
		assert.Equal(t, 0, slot)
	})

	t.Run("RemoveLeavesHole", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		mid, err := s.CreateMatch(ctx, id("h"), "3v3")
		require.NoError(t, err)
		_, err = s.AddPlayerToTeam(ctx, mid, id("p1"), models.TeamA, 3)
		require.NoError(t, err)
		_, err = s.AddPlayerToTeam(ctx, mid, id("p2"), models.TeamA, 3)
		require.NoError(t, err)

		removed, err := s.RemovePlayer(ctx, mid, id("p1"))
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = s.RemovePlayer(ctx, mid, id("p1"))
		require.NoError(t, err)
		assert.False(t, removed)

		a, err := s.FetchTeamSlots(ctx, mid, models.TeamA)
		require.NoError(t, err)
		assert.Equal(t, models.TeamSlots{id("h"), "", id("p2")}, a)

		slot, err := s.AddPlayerToTeam(ctx, mid, id("p3"), models.TeamA, 3)
		require.NoError(t, err)
		assert.Equal(t, 1, slot, "the hole is refilled first")
	})

	t.Run("WriteTeamSlots", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		mid, err := s.CreateMatch(ctx, id("h"), "2v2")
		require.NoError(t, err)

		want := models.TeamSlots{"", id("x")}
		require.NoError(t, s.WriteTeamSlots(ctx, mid, models.TeamB, want))
		got, err := s.FetchTeamSlots(ctx, mid, models.TeamB)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("WinnerIsWrittenOnce", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		mid, err := s.CreateMatch(ctx, id("h"), "duel")
		require.NoError(t, err)

		require.NoError(t, s.SetWinner(ctx, mid, models.StatusLive))
		active, err := s.ListActiveMatches(ctx)
		require.NoError(t, err)
		assert.Contains(t, matchIDs(active), mid)

		require.NoError(t, s.SetWinner(ctx, mid, models.StatusWonB))
		require.NoError(t, s.SetWinner(ctx, mid, models.StatusWonA))

		rec, _, err := s.FetchMatch(ctx, mid)
		require.NoError(t, err)
		assert.Equal(t, models.StatusWonB, rec.Winner)

		active, err = s.ListActiveMatches(ctx)
		require.NoError(t, err)
		assert.NotContains(t, matchIDs(active), mid)
	})

	t.Run("SetHostAndDelete", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		mid, err := s.CreateMatch(ctx, id("h"), "duel")
		require.NoError(t, err)
		require.NoError(t, s.SetHost(ctx, mid, id("other")))

		rec, _, err := s.FetchMatch(ctx, mid)
		require.NoError(t, err)
		assert.Equal(t, id("other"), rec.HostID)

		require.NoError(t, s.DeleteMatch(ctx, mid))
		_, ok, err := s.FetchMatch(ctx, mid)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("PlayerStats", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		p := id("stats")

		// Unknown players are not created by results.
		require.NoError(t, s.RecordResult(ctx, p, true))
		_, ok, err := s.GetPlayerRecord(ctx, p)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.EnsurePlayer(ctx, p, models.DefaultHandle))
		require.NoError(t, s.EnsurePlayer(ctx, p, "ignored"))
		require.NoError(t, s.RecordResult(ctx, p, true))
		require.NoError(t, s.RecordResult(ctx, p, false))
		require.NoError(t, s.RecordRuinedMatch(ctx, p))

		rec, ok, err := s.GetPlayerRecord(ctx, p)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, models.PlayerRecord{ID: p, Handle: models.DefaultHandle, Matches: 3, Wins: 1, Ruins: 1}, rec)
		assert.Equal(t, 2, rec.Losses())

		require.NoError(t, s.SetHandle(ctx, p, "frag"))
		rec, _, err = s.GetPlayerRecord(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "frag", rec.Handle)
	})

	t.Run("TopPlayers", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		// power: strong 4*4/1=16, mid 4*2/3=2, weak 0
		for name, res := range map[string][]bool{
			"strong": {true, true, true, true},
			"mid":    {true, true, false, false},
			"weak":   {false},
		} {
			require.NoError(t, s.EnsurePlayer(ctx, id(name), models.DefaultHandle))
			for _, won := range res {
				require.NoError(t, s.RecordResult(ctx, id(name), won))
			}
		}

		top, err := s.GetTopPlayers(ctx, 50)
		require.NoError(t, err)
		var ours []string
		for _, p := range top {
			if len(p.ID) > len(tag) && p.ID[:len(tag)] == tag {
				ours = append(ours, p.ID)
			}
		}
		require.GreaterOrEqual(t, len(ours), 2)
		assert.Equal(t, id("strong"), ours[0])
		assert.Equal(t, id("mid"), ours[1])
		assert.LessOrEqual(t, len(top), 5, "out of range limits fall back to 5")
	})

	t.Run("RecentMatches", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		mid, err := s.CreateMatch(ctx, id("rh"), "duel")
		require.NoError(t, err)
		_, err = s.AddPlayerToTeam(ctx, mid, id("rb"), models.TeamB, 1)
		require.NoError(t, err)
		require.NoError(t, s.SetWinner(ctx, mid, models.StatusWonB))

		recent, err := s.GetRecentMatches(ctx, 10)
		require.NoError(t, err)
		require.NotEmpty(t, recent)
		assert.Equal(t, mid, recent[0].ID)
		assert.Equal(t, []string{id("rb")}, recent[0].Winners)
	})

	t.Run("AtomicRollsBack", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		p := id("atomic")
		require.NoError(t, s.EnsurePlayer(ctx, p, models.DefaultHandle))
		mid, err := s.CreateMatch(ctx, id("ah"), "2v2")
		require.NoError(t, err)

		boom := errors.New("boom")
		err = s.Atomic(ctx, func(tx models.RecordStore) error {
			removed, err := tx.RemovePlayer(ctx, mid, id("ah"))
			require.NoError(t, err)
			require.True(t, removed)
			require.NoError(t, tx.SetHost(ctx, mid, p))
			require.NoError(t, tx.RecordResult(ctx, p, true))

			// Reads inside the transaction see its own writes.
			a, err := tx.FetchTeamSlots(ctx, mid, models.TeamA)
			require.NoError(t, err)
			assert.Equal(t, models.TeamSlots{}, a)
			return boom
		})
		assert.ErrorIs(t, err, boom)

		rec, _, err := s.FetchMatch(ctx, mid)
		require.NoError(t, err)
		assert.Equal(t, id("ah"), rec.HostID)
		a, err := s.FetchTeamSlots(ctx, mid, models.TeamA)
		require.NoError(t, err)
		assert.Equal(t, models.TeamSlots{id("ah")}, a)
		pr, _, err := s.GetPlayerRecord(ctx, p)
		require.NoError(t, err)
		assert.Zero(t, pr.Matches)

		require.NoError(t, s.Atomic(ctx, func(tx models.RecordStore) error {
			if _, err := tx.AddPlayerToTeam(ctx, mid, p, models.TeamB, 2); err != nil {
				return err
			}
			return tx.RecordResult(ctx, p, true)
		}))
		b, err := s.FetchTeamSlots(ctx, mid, models.TeamB)
		require.NoError(t, err)
		assert.Equal(t, models.TeamSlots{p}, b)
		pr, _, err = s.GetPlayerRecord(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, 1, pr.Matches)
	})

	t.Run("InsertEvents", func(t *testing.T) {
		s := open(t)
		ev := models.LobbyEvent{
			ID:        uuid.New(),
			MatchID:   1,
			Type:      models.EventCreated,
			ActorID:   id("h"),
			Payload:   map[string]interface{}{"mode": "duel"},
			Timestamp: time.Now().UnixMilli(),
		}
		require.NoError(t, s.InsertEvents(context.Background(), []models.LobbyEvent{ev}))
		require.NoError(t, s.InsertEvents(context.Background(), nil))
	})
}

func matchIDs(recs []models.MatchRecord) []int64 {
	out := make([]int64, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}
