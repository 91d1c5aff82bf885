package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/pugbot/internal/database/storetest"
	"github.com/jason-s-yu/pugbot/internal/models"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "pug.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store { return open(t) })
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestDeleteCascadesTeams(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	mid, err := s.CreateMatch(ctx, "h", "duel")
	require.NoError(t, err)
	require.NoError(t, s.DeleteMatch(ctx, mid))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM match_teams WHERE match_id = ?`, mid).Scan(&n))
	assert.Zero(t, n)

	ts, err := s.FetchTeamSlots(ctx, mid, models.TeamA)
	require.NoError(t, err)
	assert.Equal(t, models.TeamSlots{}, ts)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pug.db")
	s, err := Open(path)
	require.NoError(t, err)
	mid, err := s.CreateMatch(ctx, "h", "2v2")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	active, err := s.ListActiveMatches(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, mid, active[0].ID)
}
