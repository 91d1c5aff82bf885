// internal/pug/entry.go
package pug

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/pugbot/internal/models"
)

// Create opens a new lobby hosted by hostID.
func (s *Service) Create(ctx context.Context, hostID, mode, note string) (Snapshot, error) {
	capacity, ok := s.settings.Capacity(mode)
	if !ok {
		return Snapshot{}, ErrUnknownMode
	}
	if err := s.guards.Run(ctx, hostID); err != nil {
		return Snapshot{}, err
	}
	// hold the host's seat while the store is working
	if err := s.registry.claim(hostID, 0); err != nil {
		return Snapshot{}, err
	}

	id, err := s.store.CreateMatch(ctx, hostID, mode)
	if err != nil {
		s.registry.release(hostID, 0)
		return Snapshot{}, fmt.Errorf("failed to create match: %w", err)
	}

	m := &Match{st: newState(id, mode, capacity, hostID, note)}
	snap := m.st.snapshot()
	h, err := s.presenter.Post(ctx, s.settings.LobbyChannel, s.Render(snap))
	if err != nil {
		s.registry.release(hostID, 0)
		if derr := s.store.DeleteMatch(ctx, id); derr != nil {
			s.logger.WithError(derr).WithField("match", id).Error("failed to roll back match after post failure")
		}
		return Snapshot{}, fmt.Errorf("failed to post lobby %d: %w", id, err)
	}
	m.st.handle = h
	s.mark(ctx, h, s.lobbyMarks()...)

	s.registry.insert(id, m)
	s.registry.rebind(hostID, 0, id)

	s.log(m).WithField("host", hostID).Info("lobby created")
	s.announce(ctx, prioLifecycle, fmt.Sprintf("%s created **%s** lobby #%d in <#%s> `\"%sjoin %d\" to play.`",
		mention(hostID), mode, id, s.settings.LobbyChannel, s.settings.Prefix, id))
	s.publish(ctx, id, models.EventCreated, hostID, map[string]interface{}{"mode": mode})

	snap, _ = m.view()
	return snap, nil
}

// Join seats playerID in match id. Team 0 picks the smaller team, team A
// on a tie. A player already seated in the match is moved to team instead.
func (s *Service) Join(ctx context.Context, id int64, playerID string, team models.Team) error {
	if team != 0 && !team.Valid() {
		return ErrInvalidTeam
	}
	if err := s.guards.Run(ctx, playerID); err != nil {
		return err
	}

	return s.withMatch(id, func(m *Match) error {
		if m.st.status != models.StatusLobby {
			return ErrAlreadyStarted
		}
		if idx := m.st.slotOf(playerID); idx >= 0 {
			return s.moveToTeam(ctx, m, idx, team)
		}

		t := team
		if t == 0 {
			t = models.TeamA
			if m.st.teamCount(models.TeamA) > m.st.teamCount(models.TeamB) {
				t = models.TeamB
			}
		}
		if m.st.firstEmpty(t) < 0 {
			return ErrLobbyFull
		}
		if err := s.registry.claim(playerID, id); err != nil {
			return err
		}

		slot := -1
		err := s.store.Atomic(ctx, func(tx RecordStore) error {
			var err error
			slot, err = tx.AddPlayerToTeam(ctx, id, playerID, t, m.st.capacity)
			if err != nil {
				return fmt.Errorf("failed to add %s to match %d: %w", playerID, id, err)
			}
			// a seat the live match does not agree with is rolled back
			if slot < 0 || slot >= m.st.capacity || m.st.players[slotIndex(t, slot)] != "" {
				return ErrLobbyFull
			}
			return nil
		})
		if err != nil {
			s.registry.release(playerID, id)
			return err
		}

		next := m.st.clone()
		next.players[slotIndex(t, slot)] = playerID
		m.st = next

		occ, limit := next.occupants(), 2*next.capacity
		hint := ""
		if occ == limit {
			hint = fmt.Sprintf(" `\"%sstart\" to go live.`", s.settings.Prefix)
		}
		s.log(m).WithField("player", playerID).Debug("player joined")
		s.announce(ctx, prioRoster, fmt.Sprintf("%s joined **%s** lobby #%d **[%d/%d]**%s",
			mention(playerID), next.mode, id, occ, limit, hint))
		s.refresh(ctx, m)
		s.publish(ctx, id, models.EventJoined, playerID, map[string]interface{}{"team": int(t)})
		return nil
	})
}

// moveToTeam re-seats an occupant on the other team.
func (s *Service) moveToTeam(ctx context.Context, m *Match, idx int, team models.Team) error {
	if !team.Valid() || teamOf(idx) == team {
		return ErrNoTeamToSwap
	}
	to := m.st.firstEmpty(team)
	if to < 0 {
		return ErrTeamFull
	}

	next := m.st.clone()
	next.players[to] = next.players[idx]
	next.players[idx] = ""
	if err := s.store.Atomic(ctx, func(tx RecordStore) error {
		return writeTeams(ctx, tx, &next)
	}); err != nil {
		return err
	}
	m.st = next
	s.refresh(ctx, m)
	return nil
}

// Leave removes playerID from match id. Leaving a live match ruins it for
// the leaver: a ruined match is recorded and a cooldown applied.
func (s *Service) Leave(ctx context.Context, id int64, playerID string) error {
	return s.withMatch(id, func(m *Match) error {
		idx := m.st.slotOf(playerID)
		if idx < 0 {
			return ErrNotInLobby
		}
		if m.st.status.Terminal() {
			return ErrMatchEnded
		}

		next := m.st.clone()
		next.vacate(idx)
		live := next.status == models.StatusLive
		removed, empty := false, false
		err := s.store.Atomic(ctx, func(tx RecordStore) error {
			var err error
			if removed, err = tx.RemovePlayer(ctx, id, playerID); err != nil {
				return fmt.Errorf("failed to remove %s from match %d: %w", playerID, id, err)
			}
			if playerID == next.host {
				left, err := promoteHost(ctx, tx, &next)
				if err != nil {
					return err
				}
				if !left {
					empty = true
					return deleteMatch(ctx, tx, id)
				}
			}
			if live {
				if err := tx.RecordRuinedMatch(ctx, playerID); err != nil {
					return fmt.Errorf("failed to record ruined match for %s: %w", playerID, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if !removed {
			s.log(m).WithField("player", playerID).Warn("store had no seat for leaving player")
		}
		if empty {
			s.dropCancelled(ctx, m, next, playerID)
			s.registry.release(playerID, id)
			return nil
		}

		m.st = next
		s.registry.release(playerID, id)
		s.log(m).WithFields(logrus.Fields{"player": playerID, "live": live}).Info("player left")

		if live {
			s.ban(playerID, abandonBanMinutes, "Abandoned a live match.")
		} else {
			s.announce(ctx, prioRoster, fmt.Sprintf("%s left **%s** lobby #%d **[%d/%d]**",
				mention(playerID), next.mode, id, next.occupants(), 2*next.capacity))
		}
		s.refresh(ctx, m)
		s.publish(ctx, id, models.EventLeft, playerID, map[string]interface{}{"live": live})
		return nil
	})
}

// LeaveSearch removes playerID from whatever match they are in.
func (s *Service) LeaveSearch(ctx context.Context, playerID string) error {
	id, ok := s.registry.MatchOf(playerID)
	if !ok {
		return ErrNotInLobby
	}
	return s.Leave(ctx, id, playerID)
}

// NeedSub toggles the needs-sub marker of playerID in their live match.
func (s *Service) NeedSub(ctx context.Context, playerID string) error {
	id, ok := s.registry.MatchOf(playerID)
	if !ok {
		return ErrNotInLobby
	}
	return s.withMatch(id, func(m *Match) error {
		if m.st.slotOf(playerID) < 0 {
			return ErrNotInLobby
		}
		if m.st.status != models.StatusLive {
			return ErrNotStarted
		}
		next := m.st.clone()
		next.needSub.toggle(playerID)
		m.st = next
		s.refresh(ctx, m)
		return nil
	})
}

// Sub seats playerID in place of the lowest slot of match id flagged as
// needing a substitute. The replaced player walks away without penalty.
func (s *Service) Sub(ctx context.Context, id int64, playerID string) error {
	if err := s.guards.Run(ctx, playerID); err != nil {
		return err
	}
	return s.withMatch(id, func(m *Match) error {
		if m.st.status != models.StatusLive {
			return ErrNotStarted
		}
		if m.st.slotOf(playerID) >= 0 {
			return ErrAlreadyInLobby
		}
		idx := -1
		for i, p := range m.st.players {
			if p != "" && m.st.needSub.has(p) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrNoSubNeeded
		}
		if err := s.registry.claim(playerID, id); err != nil {
			return err
		}

		next := m.st.clone()
		out := next.vacate(idx)
		next.players[idx] = playerID
		team := teamOf(idx)
		err := s.store.Atomic(ctx, func(tx RecordStore) error {
			if err := tx.WriteTeamSlots(ctx, id, team, next.teamSlots(team)); err != nil {
				return fmt.Errorf("failed to write team %d of match %d: %w", team, id, err)
			}
			if out == next.host {
				if _, err := promoteHost(ctx, tx, &next); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			s.registry.release(playerID, id)
			return err
		}

		m.st = next
		s.registry.release(out, id)
		s.log(m).WithFields(logrus.Fields{"in": playerID, "out": out}).Info("player subbed in")
		s.announce(ctx, prioRoster, fmt.Sprintf("%s subbed in for %s in **%s** lobby #%d",
			mention(playerID), mention(out), next.mode, id))
		s.refresh(ctx, m)
		s.publish(ctx, id, models.EventSubbed, playerID, map[string]interface{}{"replaced": out})
		return nil
	})
}
