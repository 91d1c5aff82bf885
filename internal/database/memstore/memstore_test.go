package memstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/pugbot/internal/database/storetest"
	"github.com/jason-s-yu/pugbot/internal/models"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store { return New() })
}

func TestEventsAreCopied(t *testing.T) {
	s := New()
	ev := models.LobbyEvent{ID: uuid.New(), Type: models.EventJoined}
	require.NoError(t, s.InsertEvents(context.Background(), []models.LobbyEvent{ev}))

	got := s.Events()
	require.Len(t, got, 1)
	got[0].Type = "mutated"
	assert.Equal(t, models.EventJoined, s.Events()[0].Type)
}
