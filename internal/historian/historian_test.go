package historian

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/pugbot/internal/cache"
	"github.com/jason-s-yu/pugbot/internal/database/memstore"
	"github.com/jason-s-yu/pugbot/internal/models"
)

type chanSource chan []byte

func (c chanSource) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	select {
	case data := <-c:
		return data, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type flakySink struct {
	mu    sync.Mutex
	fails int
	got   []models.LobbyEvent
}

func (f *flakySink) InsertEvents(_ context.Context, events []models.LobbyEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("db down")
	}
	f.got = append(f.got, events...)
	return nil
}

func (f *flakySink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func push(t *testing.T, src chanSource, ev models.LobbyEvent) {
	t.Helper()
	data, err := cache.Encode(ev)
	require.NoError(t, err)
	src <- data
}

func TestFlushesFullBatch(t *testing.T) {
	src := make(chanSource, 8)
	sink := memstore.New()
	hs := NewService(src, sink, 2, time.Hour, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { hs.Run(ctx); close(done) }()

	push(t, src, models.LobbyEvent{MatchID: 1, Type: models.EventCreated})
	push(t, src, models.LobbyEvent{MatchID: 1, Type: models.EventJoined})

	require.Eventually(t, func() bool { return len(sink.Events()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 2, hs.Stored())
}

func TestFlushesOnTick(t *testing.T) {
	src := make(chanSource, 8)
	sink := memstore.New()
	hs := NewService(src, sink, 100, 20*time.Millisecond, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hs.Run(ctx)

	push(t, src, models.LobbyEvent{MatchID: 3, Type: models.EventStarted})
	require.Eventually(t, func() bool { return len(sink.Events()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestFlushesRemainderOnStop(t *testing.T) {
	src := make(chanSource, 8)
	sink := memstore.New()
	hs := NewService(src, sink, 100, time.Hour, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { hs.Run(ctx); close(done) }()

	push(t, src, models.LobbyEvent{MatchID: 5, Type: models.EventEnded})
	require.Eventually(t, func() bool { return len(src) == 0 }, 2*time.Second, 10*time.Millisecond)
	// give the loop a moment to append the popped event
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done
	assert.Len(t, sink.Events(), 1)
}

func TestSkipsInvalidPayloads(t *testing.T) {
	src := make(chanSource, 8)
	sink := memstore.New()
	hs := NewService(src, sink, 1, time.Hour, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hs.Run(ctx)

	src <- []byte("garbage")
	push(t, src, models.LobbyEvent{MatchID: 7, Type: models.EventKicked})
	require.Eventually(t, func() bool { return len(sink.Events()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.EventKicked, sink.Events()[0].Type)
}

func TestRetriesFailedFlush(t *testing.T) {
	sink := &flakySink{fails: 1}
	hs := NewService(make(chanSource), sink, 10, time.Hour, quietLogger())

	hs.append(models.LobbyEvent{Type: models.EventLeft})
	hs.flush(context.Background())
	assert.Zero(t, sink.count())

	hs.flush(context.Background())
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, 1, hs.Stored())
}

func TestDropsAfterRepeatedFailures(t *testing.T) {
	sink := &flakySink{fails: 1}
	hs := NewService(make(chanSource), sink, 1, time.Hour, quietLogger())

	for i := 0; i < 10; i++ {
		hs.append(models.LobbyEvent{Type: models.EventLeft})
	}
	hs.flush(context.Background())
	hs.flush(context.Background())
	assert.Zero(t, sink.count())
}
