// internal/pug/shortcuts.go
package pug

import (
	"context"

	"github.com/jason-s-yu/pugbot/internal/config"
	"github.com/jason-s-yu/pugbot/internal/models"
)

// FindByHandle returns the unresolved match whose lobby message is h.
func (s *Service) FindByHandle(h Handle) (Snapshot, bool) {
	var found Snapshot
	ok := false
	s.registry.ForEachActive(func(snap Snapshot) bool {
		if snap.Handle.MessageID == h.MessageID {
			found, ok = snap, true
			return false
		}
		return true
	})
	return found, ok
}

// React dispatches a reaction shortcut placed on a lobby message. The same
// symbol may serve two shortcuts; the match status decides which applies.
// Reactions on unknown messages or with no meaning in the current status
// are ignored.
func (s *Service) React(ctx context.Context, h Handle, actor, symbol string, presence Presence) error {
	snap, ok := s.FindByHandle(h)
	if !ok {
		return nil
	}
	is := func(name string) bool {
		sym := s.settings.Shortcut(name)
		return sym != "" && sym == symbol
	}

	switch st := snap.Status; {
	case is(config.ShortcutJoinA) && st == models.StatusLobby:
		return s.Join(ctx, snap.ID, actor, models.TeamA)
	case is(config.ShortcutJoinB) && st == models.StatusLobby:
		return s.Join(ctx, snap.ID, actor, models.TeamB)
	case is(config.ShortcutEndA) && st == models.StatusLive:
		return s.End(ctx, snap.ID, actor, models.TeamA)
	case is(config.ShortcutEndB) && st == models.StatusLive:
		return s.End(ctx, snap.ID, actor, models.TeamB)
	case is(config.ShortcutReady) && st == models.StatusLobby:
		if actor == snap.Host {
			return s.Start(ctx, snap.ID, actor)
		}
		return s.Ready(ctx, snap.ID, actor, presence)
	case is(config.ShortcutCancel) && st == models.StatusLive:
		return s.Mutiny(ctx, snap.ID, actor)
	case is(config.ShortcutLeave) && !st.Terminal():
		return s.Leave(ctx, snap.ID, actor)
	}
	return nil
}

// PresenceChanged reacts to a player going idle or offline. With auto kick
// on, they are removed from a lobby that has not started; otherwise they
// just lose their ready flag.
func (s *Service) PresenceChanged(ctx context.Context, playerID string, presence Presence) error {
	if presence != PresenceIdle && presence != PresenceOffline {
		return nil
	}
	snap, ok := s.registry.FindByPlayer(playerID)
	if !ok {
		return nil
	}

	if s.settings.AutoKick && snap.Status == models.StatusLobby {
		reason := "Went AFK."
		if presence == PresenceOffline {
			reason = "Went offline."
		}
		err := s.withMatch(snap.ID, func(m *Match) error {
			idx := m.st.slotOf(playerID)
			if idx < 0 || m.st.status != models.StatusLobby {
				return nil
			}
			return s.kick(ctx, m, "", idx, reason)
		})
		if IsUserFacing(err) {
			return nil
		}
		return err
	}
	return s.Unready(ctx, snap.ID, playerID)
}
