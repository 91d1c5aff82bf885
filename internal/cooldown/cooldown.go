// internal/cooldown/cooldown.go
package cooldown

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Deferrer schedules a one-shot task. schedule.Runner satisfies it.
type Deferrer interface {
	After(name string, d time.Duration, fn func()) error
}

// Entry is a single temporary ban. Minutes is the length the ban was
// issued with, not the time remaining.
type Entry struct {
	PlayerID  string    `json:"player_id"`
	Minutes   int       `json:"minutes"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`

	// token ties an entry to the expiry task scheduled for it, so a task
	// left over from a forgiven ban cannot remove a newer one.
	token uuid.UUID
}

// Scheduler tracks temporary bans and expires them automatically.
// Bans live in memory only and are lost on restart.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]Entry

	runner Deferrer
	unit   time.Duration // length of one ban "minute"
	now    func() time.Time
	logger *logrus.Logger
}

// NewScheduler builds a Scheduler. unit is the real duration of one ban
// minute; anything non-positive means time.Minute.
func NewScheduler(runner Deferrer, unit time.Duration, logger *logrus.Logger) *Scheduler {
	if unit <= 0 {
		unit = time.Minute
	}
	return &Scheduler{
		entries: make(map[string]Entry),
		runner:  runner,
		unit:    unit,
		now:     time.Now,
		logger:  logger,
	}
}

// Ban puts playerID on cooldown for the given number of minutes. It returns
// false without changing anything if the player is already on cooldown or
// minutes is not positive.
func (s *Scheduler) Ban(playerID string, minutes int, reason string) (bool, error) {
	if minutes <= 0 {
		return false, nil
	}

	s.mu.Lock()
	if _, exists := s.entries[playerID]; exists {
		s.mu.Unlock()
		return false, nil
	}
	token := uuid.New()
	s.entries[playerID] = Entry{
		PlayerID:  playerID,
		Minutes:   minutes,
		Reason:    reason,
		CreatedAt: s.now(),
		token:     token,
	}
	s.mu.Unlock()

	name := fmt.Sprintf("cooldown-expiry:%s:%s", playerID, token)
	if err := s.runner.After(name, time.Duration(minutes)*s.unit, func() { s.expire(playerID, token) }); err != nil {
		// Without an expiry task the ban would never lift.
		s.expire(playerID, token)
		return false, fmt.Errorf("failed to schedule cooldown expiry for %s: %w", playerID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"player":  playerID,
		"minutes": minutes,
		"reason":  reason,
	}).Info("player placed on cooldown")
	return true, nil
}

// IsBanned returns the active entry for playerID, if any.
func (s *Scheduler) IsBanned(playerID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[playerID]
	return e, ok
}

// Forgive lifts a ban immediately. The expiry task scheduled for it still
// fires later and finds nothing to do.
func (s *Scheduler) Forgive(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[playerID]; !ok {
		return false
	}
	delete(s.entries, playerID)
	s.logger.WithField("player", playerID).Info("cooldown forgiven")
	return true
}

// List returns all active bans ordered by creation time.
func (s *Scheduler) List() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// expire removes the entry only if it is still the one the task was
// scheduled for.
func (s *Scheduler) expire(playerID string, token uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[playerID]
	if !ok || e.token != token {
		s.logger.WithField("player", playerID).Debug("stale cooldown expiry ignored")
		return
	}
	delete(s.entries, playerID)
	s.logger.WithField("player", playerID).Info("cooldown expired")
}
