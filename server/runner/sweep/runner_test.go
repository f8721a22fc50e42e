package sweep

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type countingSweeper struct {
	calls atomic.Int32
	idle  atomic.Int64
}

func (s *countingSweeper) Sweep(idle time.Duration) int {
	s.calls.Add(1)
	s.idle.Store(int64(idle))
	return 1
}

func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner("test", &countingSweeper{}, 0, -1)
	assert.Equal(t, 5*time.Minute, r.interval)
	assert.Equal(t, 10*time.Minute, r.idle)
}

func TestRunner_RunOnce(t *testing.T) {
	s := &countingSweeper{}
	NewRunner("test", s, time.Hour, time.Minute).RunOnce(context.Background())
	assert.Equal(t, int32(1), s.calls.Load())
	assert.Equal(t, int64(time.Minute), s.idle.Load())
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := &countingSweeper{}
	r := NewRunner("test", s, time.Millisecond, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	<-done
}
