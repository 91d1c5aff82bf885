// internal/schedule/runner.go
package schedule

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// Runner executes fire-and-forget delayed tasks on a gocron scheduler.
// Tasks cannot be cancelled once scheduled, so every task must tolerate
// whatever state it finds when it eventually runs.
type Runner struct {
	sched  gocron.Scheduler
	logger *logrus.Logger
}

// NewRunner creates and starts the underlying scheduler.
func NewRunner(logger *logrus.Logger) (*Runner, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	sched.Start()
	return &Runner{sched: sched, logger: logger}, nil
}

// After runs fn once, d from now. A non-positive d runs fn as soon as the
// scheduler picks it up.
func (r *Runner) After(name string, d time.Duration, fn func()) error {
	start := gocron.OneTimeJobStartImmediately()
	if d > 0 {
		start = gocron.OneTimeJobStartDateTime(time.Now().Add(d))
	}

	_, err := r.sched.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(fn),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule %q: %w", name, err)
	}
	r.logger.WithFields(logrus.Fields{
		"task":  name,
		"delay": d,
	}).Debug("scheduled delayed task")
	return nil
}

// Shutdown stops the scheduler. Pending tasks are dropped.
func (r *Runner) Shutdown() error {
	return r.sched.Shutdown()
}
