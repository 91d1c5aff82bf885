// internal/pug/host.go
package pug

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/pugbot/internal/models"
)

// Kick removes the player in display slot of the lobby actor hosts.
// Hosts can only kick before the match goes live.
func (s *Service) Kick(ctx context.Context, actor string, slot int) error {
	snap, ok := s.registry.FindByHost(actor)
	if !ok {
		return ErrNotHost
	}
	return s.withMatch(snap.ID, func(m *Match) error {
		if m.st.host != actor {
			return ErrNotHost
		}
		if m.st.status != models.StatusLobby {
			return ErrKickAfterStart
		}
		idx, err := m.st.resolveSlot(slot)
		if err != nil {
			return err
		}
		return s.kick(ctx, m, actor, idx, "Kicked by host.")
	})
}

// ForceKick removes the player in display slot of match id at any point
// before a winner is reported.
func (s *Service) ForceKick(ctx context.Context, id int64, actor string, slot int, reason string) error {
	return s.withMatch(id, func(m *Match) error {
		idx, err := m.st.resolveSlot(slot)
		if err != nil {
			return err
		}
		return s.kick(ctx, m, actor, idx, reason)
	})
}

// kick vacates slot idx. The caller holds m.mu.
func (s *Service) kick(ctx context.Context, m *Match, actor string, idx int, reason string) error {
	if m.st.status.Terminal() {
		return ErrKickAfterEnd
	}
	target := m.st.players[idx]
	if target == "" {
		return ErrSlotEmpty
	}
	if target == actor {
		return ErrKickSelf
	}

	id := m.st.id
	live := m.st.status == models.StatusLive
	next := m.st.clone()
	next.vacate(idx)
	empty := next.occupants() == 0
	removed := false
	err := s.store.Atomic(ctx, func(tx RecordStore) error {
		var err error
		if removed, err = tx.RemovePlayer(ctx, id, target); err != nil {
			return fmt.Errorf("failed to remove %s from match %d: %w", target, id, err)
		}
		if live {
			if err := tx.RecordResult(ctx, target, false); err != nil {
				return fmt.Errorf("failed to record loss for %s: %w", target, err)
			}
		}
		if empty {
			return deleteMatch(ctx, tx, id)
		}
		if target == next.host {
			if _, err := promoteHost(ctx, tx, &next); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !removed {
		s.log(m).WithField("player", target).Warn("store had no seat for kicked player")
	}

	if empty {
		s.dropCancelled(ctx, m, next, actor)
	} else {
		m.st = next
	}
	s.registry.release(target, id)

	if live {
		s.ban(target, liveKickBanMinutes, "Kicked from a live match.")
	} else {
		s.ban(target, lobbyKickBanMinutes, "Recently kicked from a lobby.")
	}

	s.log(m).WithFields(logrus.Fields{
		"target": target,
		"actor":  actor,
		"reason": reason,
	}).Info("player kicked")
	s.announce(ctx, prioRoster, fmt.Sprintf("%s was kicked from **%s** lobby #%d (%s)",
		mention(target), next.mode, id, reason))
	if !m.removed {
		s.refresh(ctx, m)
	}
	s.publish(ctx, id, models.EventKicked, actor, map[string]interface{}{
		"target": target,
		"reason": reason,
		"live":   live,
	})
	return nil
}

// Swap exchanges the occupants of two display slots in the lobby actor
// hosts. Swapping two empty slots does nothing.
func (s *Service) Swap(ctx context.Context, actor string, slotA, slotB int) error {
	snap, ok := s.registry.FindByHost(actor)
	if !ok {
		return ErrNotHost
	}
	return s.withMatch(snap.ID, func(m *Match) error {
		if m.st.host != actor {
			return ErrNotHost
		}
		return s.swap(ctx, m, slotA, slotB)
	})
}

// ForceSwap exchanges two display slots of match id.
func (s *Service) ForceSwap(ctx context.Context, id int64, slotA, slotB int) error {
	return s.withMatch(id, func(m *Match) error {
		return s.swap(ctx, m, slotA, slotB)
	})
}

func (s *Service) swap(ctx context.Context, m *Match, slotA, slotB int) error {
	if m.st.status != models.StatusLobby {
		return ErrSwapAfterStart
	}
	i, err := m.st.resolveSlot(slotA)
	if err != nil {
		return err
	}
	j, err := m.st.resolveSlot(slotB)
	if err != nil {
		return err
	}
	if m.st.players[i] == "" && m.st.players[j] == "" {
		return nil
	}

	next := m.st.clone()
	next.players[i], next.players[j] = next.players[j], next.players[i]
	if err := s.store.Atomic(ctx, func(tx RecordStore) error {
		return writeTeams(ctx, tx, &next)
	}); err != nil {
		return err
	}
	m.st = next
	s.refresh(ctx, m)
	return nil
}

// GiveHost passes host of actor's lobby to the player in display slot.
func (s *Service) GiveHost(ctx context.Context, actor string, slot int) error {
	snap, ok := s.registry.FindByHost(actor)
	if !ok {
		return ErrNotHost
	}
	return s.withMatch(snap.ID, func(m *Match) error {
		if m.st.host != actor {
			return ErrNotHost
		}
		idx, err := m.st.resolveSlot(slot)
		if err != nil {
			return err
		}
		target := m.st.players[idx]
		if target == "" {
			return ErrSlotEmpty
		}

		next := m.st.clone()
		next.host = target
		delete(next.ready, target)
		if err := s.store.SetHost(ctx, next.id, target); err != nil {
			return fmt.Errorf("failed to set host of match %d: %w", next.id, err)
		}
		m.st = next
		s.log(m).WithField("host", target).Info("host transferred")
		s.refresh(ctx, m)
		return nil
	})
}
