// Package historian drains the lobby event queue into durable storage in
// batches.
package historian

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/pugbot/internal/cache"
	"github.com/jason-s-yu/pugbot/internal/models"
)

// popTimeout bounds each blocking pop so cancellation and flush ticks are
// noticed.
const popTimeout = 3 * time.Second

// Source yields raw queued events. Pop returns nil, nil on timeout.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// Sink persists decoded events.
type Sink interface {
	InsertEvents(ctx context.Context, events []models.LobbyEvent) error
}

type Service struct {
	source     Source
	sink       Sink
	batchSize  int
	flushDelay time.Duration
	logger     *logrus.Logger

	batchMu sync.Mutex
	batch   []models.LobbyEvent
	stored  int
}

func NewService(source Source, sink Sink, batchSize int, flushDelay time.Duration, logger *logrus.Logger) *Service {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushDelay <= 0 {
		flushDelay = 2 * time.Second
	}
	return &Service{
		source:     source,
		sink:       sink,
		batchSize:  batchSize,
		flushDelay: flushDelay,
		logger:     logger,
		batch:      make([]models.LobbyEvent, 0, batchSize),
	}
}

// Run pops events until ctx is cancelled, then flushes what is left.
func (hs *Service) Run(ctx context.Context) {
	hs.logger.Info("historian started")
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hs.flush(context.Background())
			hs.logger.Info("historian stopped")
			return

		case <-ticker.C:
			hs.flush(ctx)

		default:
			timeout := popTimeout
			if hs.flushDelay < timeout {
				timeout = hs.flushDelay
			}
			data, err := hs.source.Pop(ctx, timeout)
			if err != nil {
				if ctx.Err() == nil {
					hs.logger.WithError(err).Error("historian pop failed")
				}
				continue
			}
			if data == nil {
				continue
			}
			ev, err := cache.Decode(data)
			if err != nil {
				hs.logger.WithError(err).Warn("dropping lobby event")
				continue
			}
			if hs.append(ev) {
				hs.flush(ctx)
			}
		}
	}
}

// append queues ev and reports whether the batch is due.
func (hs *Service) append(ev models.LobbyEvent) bool {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	hs.batch = append(hs.batch, ev)
	return len(hs.batch) >= hs.batchSize
}

// flush writes the pending batch. A failed batch is kept for the next
// attempt until it grows past ten batches, then dropped.
func (hs *Service) flush(ctx context.Context) {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()

	if len(hs.batch) == 0 {
		return
	}
	pending := make([]models.LobbyEvent, len(hs.batch))
	copy(pending, hs.batch)

	if err := hs.sink.InsertEvents(ctx, pending); err != nil {
		if len(hs.batch) >= hs.batchSize*10 {
			hs.logger.WithError(err).WithField("events", len(hs.batch)).Error("dropping lobby events after repeated flush failures")
			hs.batch = hs.batch[:0]
			return
		}
		hs.logger.WithError(err).WithField("events", len(pending)).Warn("flush failed, will retry")
		return
	}
	hs.batch = hs.batch[:0]
	hs.stored += len(pending)
	hs.logger.WithField("events", len(pending)).Debug("flushed lobby events")
}

// Stored counts events written so far.
func (hs *Service) Stored() int {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	return hs.stored
}
