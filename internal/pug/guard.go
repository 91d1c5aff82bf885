// internal/pug/guard.go
package pug

import (
	"context"
	"fmt"

	"github.com/jason-s-yu/pugbot/internal/config"
	"github.com/jason-s-yu/pugbot/internal/cooldown"
	"github.com/jason-s-yu/pugbot/internal/models"
)

// Guard is a precondition on the player entering a lobby.
type Guard func(ctx context.Context, playerID string) error

// Pipeline runs guards in order and stops at the first failure.
type Pipeline []Guard

func (p Pipeline) Run(ctx context.Context, playerID string) error {
	for _, g := range p {
		if err := g(ctx, playerID); err != nil {
			return err
		}
	}
	return nil
}

// RoleGuard requires the participation role. An empty role or the
// everyone role lets anybody through.
func RoleGuard(roles RoleChecker, roleID string) Guard {
	return func(ctx context.Context, playerID string) error {
		if roles == nil || roleID == "" || roleID == config.EveryoneRole {
			return nil
		}
		ok, err := roles.HasRole(ctx, playerID, roleID)
		if err != nil {
			return fmt.Errorf("role check for %s: %w", playerID, err)
		}
		if !ok {
			return ErrMissingRole
		}
		return nil
	}
}

// CooldownGuard rejects players serving a temporary ban.
func CooldownGuard(c *cooldown.Scheduler) Guard {
	return func(_ context.Context, playerID string) error {
		if e, banned := c.IsBanned(playerID); banned {
			return &CooldownError{Reason: e.Reason, Minutes: e.Minutes}
		}
		return nil
	}
}

// RecordGuard makes sure a stats row exists for the player.
func RecordGuard(store RecordStore) Guard {
	return func(ctx context.Context, playerID string) error {
		if err := store.EnsurePlayer(ctx, playerID, models.DefaultHandle); err != nil {
			return fmt.Errorf("ensure player %s: %w", playerID, err)
		}
		return nil
	}
}
