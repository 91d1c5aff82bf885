// internal/pug/flow.go
package pug

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/pugbot/internal/config"
	"github.com/jason-s-yu/pugbot/internal/models"
)

// Start takes match id live. Only the host may start it.
func (s *Service) Start(ctx context.Context, id int64, actor string) error {
	return s.withMatch(id, func(m *Match) error {
		if actor != m.st.host {
			return ErrNotHost
		}
		return s.start(ctx, m, actor, false)
	})
}

// StartSearch starts the match hosted by actor.
func (s *Service) StartSearch(ctx context.Context, actor string) error {
	snap, ok := s.registry.FindByHost(actor)
	if !ok {
		return ErrNotHost
	}
	return s.Start(ctx, snap.ID, actor)
}

// ForceStart starts match id without the player count or ready checks.
func (s *Service) ForceStart(ctx context.Context, id int64, actor string) error {
	return s.withMatch(id, func(m *Match) error {
		return s.start(ctx, m, actor, true)
	})
}

func (s *Service) start(ctx context.Context, m *Match, actor string, force bool) error {
	if m.st.status != models.StatusLobby {
		return ErrAlreadyStarted
	}
	if !force {
		if !m.st.full() {
			return ErrNotEnoughPlayers
		}
		if s.settings.RequireReady && len(m.st.ready)+1 != 2*m.st.capacity {
			return ErrNotAllReady
		}
	}

	next := m.st.clone()
	if next.mapName == "" {
		if pool := s.settings.MapPool(next.mode); len(pool) > 0 {
			next.mapName = pool[s.pick(len(pool))]
		}
	}
	next.ready = playerSet{}
	next.status = models.StatusLive
	if err := s.store.SetWinner(ctx, next.id, models.StatusLive); err != nil {
		return fmt.Errorf("failed to mark match %d live: %w", next.id, err)
	}
	m.st = next

	s.log(m).WithFields(logrus.Fields{"map": next.mapName, "forced": force}).Info("match started")
	s.refresh(ctx, m)
	s.mark(ctx, next.handle, s.liveMarks()...)

	endA, endB := s.settings.Teams.A[0], s.settings.Teams.B[0]
	if len(s.settings.Teams.A) > 1 {
		endA = s.settings.Teams.A[1]
	}
	if len(s.settings.Teams.B) > 1 {
		endB = s.settings.Teams.B[1]
	}
	s.announce(ctx, prioLifecycle, fmt.Sprintf("**%s** lobby #%d is now LIVE! `\"%send %s\" or \"%send %s\" to report a winner.`\n%s",
		next.mode, next.id, s.settings.Prefix, endA, s.settings.Prefix, endB, mentions(next.members(), " ")))
	s.publish(ctx, next.id, models.EventStarted, actor, map[string]interface{}{"map": next.mapName})
	return nil
}

// End reports team as the winner of match id. Only the host may end it.
func (s *Service) End(ctx context.Context, id int64, actor string, team models.Team) error {
	if !team.Valid() {
		return ErrInvalidTeam
	}
	return s.withMatch(id, func(m *Match) error {
		if actor != m.st.host {
			return ErrNotHost
		}
		if m.st.status != models.StatusLive {
			return ErrNotStarted
		}
		return s.finish(ctx, m, team, actor)
	})
}

// EndSearch ends the match hosted by actor.
func (s *Service) EndSearch(ctx context.Context, actor string, team models.Team) error {
	snap, ok := s.registry.FindByHost(actor)
	if !ok {
		return ErrNotHost
	}
	return s.End(ctx, snap.ID, actor, team)
}

// ForceEnd reports a winner for match id on behalf of a moderator.
func (s *Service) ForceEnd(ctx context.Context, id int64, actor string, team models.Team) error {
	if !team.Valid() {
		return ErrInvalidTeam
	}
	return s.withMatch(id, func(m *Match) error {
		if m.st.status != models.StatusLive {
			return ErrNotStarted
		}
		return s.finish(ctx, m, team, actor)
	})
}

// ForceCancel deletes match id outright.
func (s *Service) ForceCancel(ctx context.Context, id int64, actor string) error {
	return s.withMatch(id, func(m *Match) error {
		if m.st.status.Terminal() {
			return ErrMatchEnded
		}
		return s.cancel(ctx, m, m.st.clone(), actor)
	})
}

// Mutiny toggles actor's vote to cancel live match id. A strict majority of
// the current occupants cancels the match. Outside a live match, or from
// someone not playing in it, the vote is ignored.
func (s *Service) Mutiny(ctx context.Context, id int64, actor string) error {
	return s.withMatch(id, func(m *Match) error {
		if m.st.status != models.StatusLive || m.st.slotOf(actor) < 0 {
			return nil
		}
		next := m.st.clone()
		next.mutiny.toggle(actor)
		if len(next.mutiny) >= next.mutinyThreshold() {
			return s.cancel(ctx, m, next, actor)
		}
		m.st = next
		s.refresh(ctx, m)
		return nil
	})
}

// MutinySearch votes in whatever match actor is playing in.
func (s *Service) MutinySearch(ctx context.Context, actor string) error {
	id, ok := s.registry.MatchOf(actor)
	if !ok {
		return ErrNotInLobby
	}
	return s.Mutiny(ctx, id, actor)
}

// Ready toggles actor's ready flag in match id. The host never readies.
func (s *Service) Ready(ctx context.Context, id int64, actor string, presence Presence) error {
	return s.withMatch(id, func(m *Match) error {
		if m.st.slotOf(actor) < 0 {
			return ErrNotInLobby
		}
		if presence.Away() {
			return ErrAwayReady
		}
		if m.st.status != models.StatusLobby || actor == m.st.host {
			return nil
		}

		next := m.st.clone()
		ready := next.ready.toggle(actor)
		m.st = next

		switch {
		case !ready:
			s.announce(ctx, prioChatter, fmt.Sprintf("%s is no longer ready.", mention(actor)))
		case len(next.ready)+1 == 2*next.capacity:
			s.announce(ctx, prioResult, fmt.Sprintf("%s All players are ready in **%s** lobby #%d. `\"%sstart\" to go live.`",
				mention(next.host), next.mode, next.id, s.settings.Prefix))
		default:
			s.announce(ctx, prioChatter, fmt.Sprintf("%s is ready!", mention(actor)))
		}
		s.refresh(ctx, m)
		return nil
	})
}

// ReadySearch toggles ready in whatever match actor is in.
func (s *Service) ReadySearch(ctx context.Context, actor string, presence Presence) error {
	id, ok := s.registry.MatchOf(actor)
	if !ok {
		return ErrNotInLobby
	}
	return s.Ready(ctx, id, actor, presence)
}

// Unready clears actor's ready flag in match id, if set.
func (s *Service) Unready(ctx context.Context, id int64, actor string) error {
	return s.withMatch(id, func(m *Match) error {
		if m.st.status != models.StatusLobby || actor == m.st.host || !m.st.ready.has(actor) {
			return nil
		}
		next := m.st.clone()
		delete(next.ready, actor)
		m.st = next
		s.announce(ctx, prioChatter, fmt.Sprintf("%s is no longer ready.", mention(actor)))
		s.refresh(ctx, m)
		return nil
	})
}

// Promote re-advertises actor's lobby. It changes nothing.
func (s *Service) Promote(ctx context.Context, actor string) error {
	snap, ok := s.registry.FindByPlayer(actor)
	if !ok {
		return ErrNotInLobby
	}
	if snap.Status != models.StatusLobby {
		return nil
	}

	var who, hint string
	if snap.Occupants() == snap.MaxPlayers() {
		who = mention(snap.Host)
		hint = fmt.Sprintf("(waiting for host to start) `\"%sstart\" to go live.`", s.settings.Prefix)
	} else {
		if role := s.settings.PugRole; role != "" && role != config.EveryoneRole {
			who = "<@&" + role + ">"
		}
		hint = fmt.Sprintf("(waiting for players) `\"%sjoin %d\" to play.`", s.settings.Prefix, snap.ID)
	}
	s.announce(ctx, prioLifecycle, fmt.Sprintf("%s **%s** lobby #%d **[%d/%d]** %s",
		who, snap.Mode, snap.ID, snap.Occupants(), snap.MaxPlayers(), hint))
	return nil
}
