package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DegreeFloor(t *testing.T) {
	assert.Equal(t, 1, New(0).Degree())
	assert.Equal(t, 1, New(-3).Degree())
	assert.Equal(t, 4, New(4).Degree())
}

func TestSubmit_LimitsConcurrency(t *testing.T) {
	p := New(2)
	var inFlight, maxInFlight int32
	done := make(chan error, 5)

	for i := 0; i < 5; i++ {
		go func() {
			done <- p.Submit(context.Background(), func(ctx context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					m := atomic.LoadInt32(&maxInFlight)
					if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}()
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, <-done)
	}
	assert.LessOrEqual(t, int(maxInFlight), 2)
}

func TestSubmit_ContextCancelledBeforeAcquire(t *testing.T) {
	p := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Submit(ctx, func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestGo_ReportsResultOnChannel(t *testing.T) {
	p := New(1)
	ch := p.Go(context.Background(), func(ctx context.Context) error { return assert.AnError })
	assert.ErrorIs(t, <-ch, assert.AnError)
}
