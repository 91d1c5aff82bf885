// internal/pug/restore.go
package pug

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/pugbot/internal/models"
)

// Restore rebuilds the registry from the unresolved matches in the store
// and posts a fresh lobby message for each. It is meant to run once, before
// any other operation.
func (s *Service) Restore(ctx context.Context) (int, error) {
	records, err := s.store.ListActiveMatches(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active matches: %w", err)
	}

	restored := 0
	for _, rec := range records {
		if err := s.restoreOne(ctx, rec); err != nil {
			s.logger.WithFields(logrus.Fields{
				"match": rec.ID,
				"mode":  rec.Mode,
			}).WithError(err).Warn("could not restore match")
			continue
		}
		restored++
	}
	s.logger.WithField("count", restored).Info("restored active matches")
	return restored, nil
}

func (s *Service) restoreOne(ctx context.Context, rec models.MatchRecord) error {
	capacity, ok := s.settings.Capacity(rec.Mode)
	if !ok {
		return fmt.Errorf("mode %q is no longer configured", rec.Mode)
	}

	st := newState(rec.ID, rec.Mode, capacity, rec.HostID, "")
	st.players = [TotalSlots]string{}
	st.status = rec.Winner
	for _, t := range []models.Team{models.TeamA, models.TeamB} {
		slots, err := s.store.FetchTeamSlots(ctx, rec.ID, t)
		if err != nil {
			return fmt.Errorf("failed to fetch team %d: %w", t, err)
		}
		for i := 0; i < capacity; i++ {
			st.players[slotIndex(t, i)] = slots[i]
		}
	}

	if st.occupants() == 0 {
		if err := s.store.DeleteMatch(ctx, rec.ID); err != nil {
			return fmt.Errorf("failed to drop empty match: %w", err)
		}
		return fmt.Errorf("match was empty and has been dropped")
	}
	if st.slotOf(st.host) < 0 {
		if _, err := promoteHost(ctx, s.store, &st); err != nil {
			return err
		}
	}
	var claimed []string
	for _, p := range st.members() {
		if err := s.registry.claim(p, rec.ID); err != nil {
			for _, c := range claimed {
				s.registry.release(c, rec.ID)
			}
			return fmt.Errorf("player %s is already seated elsewhere", p)
		}
		claimed = append(claimed, p)
	}

	m := &Match{st: st}
	h, err := s.presenter.Post(ctx, s.settings.LobbyChannel, s.Render(st.snapshot()))
	if err != nil {
		for _, p := range st.members() {
			s.registry.release(p, rec.ID)
		}
		return fmt.Errorf("failed to post lobby: %w", err)
	}
	m.st.handle = h
	if st.status == models.StatusLive {
		s.mark(ctx, h, s.liveMarks()...)
	} else {
		s.mark(ctx, h, s.lobbyMarks()...)
	}
	s.registry.insert(rec.ID, m)
	return nil
}
