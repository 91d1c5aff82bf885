package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerAfter(t *testing.T) {
	r, err := NewRunner(logrus.New())
	require.NoError(t, err)
	defer r.Shutdown()

	var fired atomic.Int32
	require.NoError(t, r.After("test", 20*time.Millisecond, func() { fired.Add(1) }))

	assert.Equal(t, int32(0), fired.Load(), "task should not run before its delay")
	require.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestRunnerAfterZeroDelay(t *testing.T) {
	r, err := NewRunner(logrus.New())
	require.NoError(t, err)
	defer r.Shutdown()

	done := make(chan struct{})
	require.NoError(t, r.After("now", 0, func() { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("zero-delay task never ran")
	}
}
