// internal/pug/service.go
package pug

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/pugbot/internal/config"
	"github.com/jason-s-yu/pugbot/internal/cooldown"
	"github.com/jason-s-yu/pugbot/internal/models"
)

// Broadcast priorities. A message goes out only if its priority is at or
// below the configured verbosity.
const (
	prioLifecycle = 1 // created, live, promoted
	prioRoster    = 2 // joins, leaves, kicks
	prioResult    = 3 // ended, cancelled, all ready
	prioChatter   = 4 // individual ready toggles
)

// Cooldowns handed out by the engine, in minutes.
const (
	abandonBanMinutes   = 5
	liveKickBanMinutes  = 5
	lobbyKickBanMinutes = 1
)

// Options wires a Service to its collaborators. Roles and Events may be nil.
type Options struct {
	Store     RecordStore
	Presenter Presenter
	Roles     RoleChecker
	Events    EventSink
	Cooldowns *cooldown.Scheduler
	Deferrer  Deferrer
	Settings  *config.Settings
	// Grace is how long a finished or cancelled lobby message stays up.
	Grace  time.Duration
	Logger *logrus.Logger
}

// Service runs every lobby operation. Mutations of one match are
// serialized on that match's lock; different matches proceed in parallel.
type Service struct {
	store     RecordStore
	presenter Presenter
	roles     RoleChecker
	events    EventSink
	cooldowns *cooldown.Scheduler
	deferrer  Deferrer
	settings  *config.Settings
	registry  *Registry
	guards    Pipeline
	grace     time.Duration
	logger    *logrus.Logger

	pick func(n int) int
	now  func() time.Time
}

// NewService builds a Service with the standard guard pipeline: role,
// cooldown, then player record.
func NewService(opts Options) *Service {
	return &Service{
		store:     opts.Store,
		presenter: opts.Presenter,
		roles:     opts.Roles,
		events:    opts.Events,
		cooldowns: opts.Cooldowns,
		deferrer:  opts.Deferrer,
		settings:  opts.Settings,
		registry:  NewRegistry(),
		guards: Pipeline{
			RoleGuard(opts.Roles, opts.Settings.PugRole),
			CooldownGuard(opts.Cooldowns),
			RecordGuard(opts.Store),
		},
		grace:  opts.Grace,
		logger: opts.Logger,
		pick:   rand.IntN,
		now:    time.Now,
	}
}

// Registry exposes the read side of the live lobby set.
func (s *Service) Registry() *Registry { return s.registry }

// Settings returns the community settings the service runs with.
func (s *Service) Settings() *config.Settings { return s.settings }

// Cooldowns returns the ban scheduler.
func (s *Service) Cooldowns() *cooldown.Scheduler { return s.cooldowns }

// Labels returns the text used when rendering lobbies.
func (s *Service) Labels() Labels {
	return Labels{
		TeamA:  s.settings.TeamName(models.TeamA),
		TeamB:  s.settings.TeamName(models.TeamB),
		Prefix: s.settings.Prefix,
	}
}

// Render formats snap with the service's labels.
func (s *Service) Render(snap Snapshot) string {
	return Render(snap, s.Labels())
}

// withMatch runs fn holding the lock of match id.
func (s *Service) withMatch(id int64, fn func(m *Match) error) error {
	m := s.registry.get(id)
	if m == nil {
		return ErrLobbyNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed {
		return ErrLobbyNotFound
	}
	return fn(m)
}

func (s *Service) log(m *Match) *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"match": m.st.id,
		"mode":  m.st.mode,
	})
}

// refresh re-renders the lobby message. The operation has already been
// committed, so a failed edit is logged and not returned.
func (s *Service) refresh(ctx context.Context, m *Match) {
	s.editSnapshot(ctx, m, m.st.snapshot())
}

func (s *Service) editSnapshot(ctx context.Context, m *Match, snap Snapshot) {
	if err := s.presenter.Edit(ctx, snap.Handle, s.Render(snap)); err != nil {
		s.log(m).WithError(err).Warn("failed to edit lobby message")
	}
}

// mark replaces the reaction shortcuts on a lobby message.
func (s *Service) mark(ctx context.Context, h Handle, shortcuts ...string) {
	if err := s.presenter.ClearMarks(ctx, h); err != nil {
		s.logger.WithError(err).WithField("message", h.MessageID).Warn("failed to clear marks")
		return
	}
	for _, name := range shortcuts {
		sym := s.settings.Shortcut(name)
		if sym == "" {
			continue
		}
		if err := s.presenter.AddMark(ctx, h, sym); err != nil {
			s.logger.WithError(err).WithField("message", h.MessageID).Warn("failed to add mark")
			return
		}
	}
}

func (s *Service) lobbyMarks() []string {
	return []string{config.ShortcutJoinA, config.ShortcutJoinB, config.ShortcutReady, config.ShortcutLeave}
}

func (s *Service) liveMarks() []string {
	return []string{config.ShortcutEndA, config.ShortcutEndB, config.ShortcutCancel, config.ShortcutLeave}
}

// announce posts to the broadcast channel if verbosity allows it.
func (s *Service) announce(ctx context.Context, priority int, text string) {
	if priority > s.settings.Verbosity || s.settings.BroadChannel == "" {
		return
	}
	if _, err := s.presenter.Post(ctx, s.settings.BroadChannel, text); err != nil {
		s.logger.WithError(err).Warn("failed to post broadcast")
	}
}

// publish sends a lobby event to the history log. It never fails the
// operation.
func (s *Service) publish(ctx context.Context, matchID int64, typ, actor string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	ev := models.LobbyEvent{
		ID:        uuid.New(),
		MatchID:   matchID,
		Type:      typ,
		ActorID:   actor,
		Payload:   payload,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"match": matchID,
			"event": typ,
		}).Warn("failed to publish lobby event")
	}
}

// ban applies a cooldown after the fact. Failures are logged; the
// operation that caused it has already been committed.
func (s *Service) ban(playerID string, minutes int, reason string) {
	if _, err := s.cooldowns.Ban(playerID, minutes, reason); err != nil {
		s.logger.WithError(err).WithField("player", playerID).Error("failed to apply cooldown")
	}
}

// cancel deletes the match and commits next as its final state. The
// caller must hold m.mu and have finished its own store writes.
func (s *Service) cancel(ctx context.Context, m *Match, next state, actor string) error {
	if err := deleteMatch(ctx, s.store, next.id); err != nil {
		return err
	}
	s.dropCancelled(ctx, m, next, actor)
	return nil
}

func deleteMatch(ctx context.Context, st RecordStore, id int64) error {
	if err := st.DeleteMatch(ctx, id); err != nil {
		return fmt.Errorf("failed to delete match %d: %w", id, err)
	}
	return nil
}

// dropCancelled commits next as the final state of a match already deleted
// from the store.
func (s *Service) dropCancelled(ctx context.Context, m *Match, next state, actor string) {
	m.st = next
	m.removed = true
	s.registry.remove(next.id)

	s.log(m).WithField("actor", actor).Info("lobby cancelled")
	s.announce(ctx, prioResult, fmt.Sprintf("**%s** lobby #%d was cancelled.", next.mode, next.id))

	snap := next.snapshot()
	snap.dropped = true
	s.editSnapshot(ctx, m, snap)
	if err := s.presenter.ClearMarks(ctx, snap.Handle); err != nil {
		s.log(m).WithError(err).Warn("failed to clear marks")
	}
	s.retire(next.id, snap.Handle)
	s.publish(ctx, next.id, models.EventCancelled, actor, nil)
}

// finish records the result and leaves the match on display for the grace
// period. The caller must hold m.mu.
func (s *Service) finish(ctx context.Context, m *Match, winner models.Team, actor string) error {
	next := m.st.clone()
	var winners []string
	for i, p := range next.players {
		if p != "" && teamOf(i) == winner {
			winners = append(winners, p)
		}
	}
	code := models.Status(winner)
	err := s.store.Atomic(ctx, func(tx RecordStore) error {
		for i, p := range next.players {
			if p == "" {
				continue
			}
			if err := tx.RecordResult(ctx, p, teamOf(i) == winner); err != nil {
				return fmt.Errorf("failed to record result for %s: %w", p, err)
			}
		}
		if err := tx.SetWinner(ctx, next.id, code); err != nil {
			return fmt.Errorf("failed to set winner of match %d: %w", next.id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	next.status = code
	next.mutiny = playerSet{}
	next.ready = playerSet{}
	next.needSub = playerSet{}
	m.st = next
	for _, p := range next.members() {
		s.registry.release(p, next.id)
	}

	s.log(m).WithField("winner", winner).Info("match ended")
	s.refresh(ctx, m)
	if err := s.presenter.ClearMarks(ctx, next.handle); err != nil {
		s.log(m).WithError(err).Warn("failed to clear marks")
	}
	s.announce(ctx, prioResult, fmt.Sprintf("**%s** lobby #%d has ended. Winner(s): %s.",
		next.mode, next.id, mentions(winners, ", ")))

	id := next.id
	if err := s.deferrer.After(fmt.Sprintf("lobby-result:%d", id), s.grace, func() {
		s.expire(context.Background(), id)
	}); err != nil {
		s.log(m).WithError(err).Warn("failed to schedule result expiry, removing now")
		m.removed = true
		s.registry.remove(id)
		s.deleteMessage(ctx, next.handle)
	}
	s.publish(ctx, id, models.EventEnded, actor, map[string]interface{}{
		"winner":  int(winner),
		"winners": winners,
	})
	return nil
}

// expire drops a resolved match once its grace period is over.
func (s *Service) expire(ctx context.Context, id int64) {
	m := s.registry.get(id)
	if m == nil {
		return
	}
	m.mu.Lock()
	h := m.st.handle
	m.removed = true
	m.mu.Unlock()

	s.registry.remove(id)
	s.deleteMessage(ctx, h)
}

// retire deletes a cancelled lobby's message after the grace period.
func (s *Service) retire(id int64, h Handle) {
	if err := s.deferrer.After(fmt.Sprintf("lobby-retire:%d", id), s.grace, func() {
		s.deleteMessage(context.Background(), h)
	}); err != nil {
		s.logger.WithError(err).WithField("match", id).Warn("failed to schedule message removal")
	}
}

func (s *Service) deleteMessage(ctx context.Context, h Handle) {
	if err := s.presenter.Delete(ctx, h); err != nil {
		s.logger.WithError(err).WithField("message", h.MessageID).Warn("failed to delete lobby message")
	}
}

// promoteHost hands the host role to the lowest occupied slot of next and
// persists it through st. It reports false when nobody is left.
func promoteHost(ctx context.Context, st RecordStore, next *state) (bool, error) {
	nh := next.lowestOccupied()
	if nh == "" {
		return false, nil
	}
	next.host = nh
	delete(next.ready, nh)
	if err := st.SetHost(ctx, next.id, nh); err != nil {
		return false, fmt.Errorf("failed to set host of match %d: %w", next.id, err)
	}
	return true, nil
}

func writeTeams(ctx context.Context, st RecordStore, next *state) error {
	for _, t := range []models.Team{models.TeamA, models.TeamB} {
		if err := st.WriteTeamSlots(ctx, next.id, t, next.teamSlots(t)); err != nil {
			return fmt.Errorf("failed to write team %d of match %d: %w", t, next.id, err)
		}
	}
	return nil
}

func mention(id string) string {
	return "<@" + id + ">"
}

func mentions(ids []string, sep string) string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = mention(id)
	}
	return strings.Join(out, sep)
}

// IsModerator reports whether playerID holds the moderator role.
func (s *Service) IsModerator(ctx context.Context, playerID string) (bool, error) {
	if s.roles == nil || s.settings.ModRole == "" {
		return false, nil
	}
	return s.roles.HasRole(ctx, playerID, s.settings.ModRole)
}
