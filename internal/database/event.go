package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jason-s-yu/pugbot/internal/models"
)

// InsertEvents writes a batch of lobby events in one transaction. Events
// already stored are skipped.
func (s *Store) InsertEvents(ctx context.Context, events []models.LobbyEvent) error {
	if len(events) == 0 {
		return nil
	}
	err := s.tx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, ev := range events {
			batch.Queue(
				`INSERT INTO lobby_events (id, match_id, type, actor_id, payload, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (id) DO NOTHING`,
				ev.ID, ev.MatchID, ev.Type, ev.ActorID, ev.Payload, time.UnixMilli(ev.Timestamp).UTC(),
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("failed to insert %d events: %w", len(events), err)
	}
	return nil
}
