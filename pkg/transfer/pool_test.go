package transfer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPoolBackpressure(t *testing.T) {
	const (
		workers    = 2
		queueLimit = 3
		total      = 10
	)

	ctx := context.Background()
	pool := NewPool(ctx, workers, queueLimit, zaptest.NewLogger(t))

	started := make(chan struct{}, total)
	release := make(chan struct{})
	var submitted, ran atomic.Int32

	done := make(chan error, 1)
	go func() {
		for i := 0; i < total; i++ {
			err := pool.Submit(ctx, func(context.Context) error {
				started <- struct{}{}
				<-release
				ran.Add(1)
				return nil
			})
			if err != nil {
				done <- err
				return
			}
			submitted.Add(1)
		}
		done <- nil
	}()

	for i := 0; i < workers; i++ {
		<-started
	}

	// Workers hold two tasks and the queue holds three more
	require.Eventually(t, func() bool { return submitted.Load() == workers+queueLimit },
		time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return submitted.Load() > workers+queueLimit },
		50*time.Millisecond, 5*time.Millisecond)
	assert.LessOrEqual(t, pool.Queued(), queueLimit)

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, pool.Wait())
	assert.Equal(t, int32(total), ran.Load())
}

func TestPoolWaitReturnsFirstErrorAfterAllTasks(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(ctx, 3, 2, zaptest.NewLogger(t))

	boom := errors.New("boom")
	var ran atomic.Int32
	for i := 0; i < 12; i++ {
		i := i
		require.NoError(t, pool.Submit(ctx, func(context.Context) error {
			ran.Add(1)
			if i == 4 {
				return boom
			}
			return nil
		}))
	}

	err := pool.Wait()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(12), ran.Load())
}

func TestPoolRecoversPanics(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(ctx, 1, 1, zaptest.NewLogger(t))

	var ran atomic.Int32
	require.NoError(t, pool.Submit(ctx, func(context.Context) error {
		panic("bad record")
	}))
	require.NoError(t, pool.Submit(ctx, func(context.Context) error {
		ran.Add(1)
		return nil
	}))

	err := pool.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad record")
	assert.Equal(t, int32(1), ran.Load())
}

func TestPoolCountsEveryFinishedTask(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(ctx, 3, 2, zaptest.NewLogger(t))

	for i := 0; i < 9; i++ {
		i := i
		require.NoError(t, pool.Submit(ctx, func(context.Context) error {
			switch i {
			case 2:
				return errors.New("failed")
			case 5:
				panic("bad record")
			}
			return nil
		}))
	}
	require.Error(t, pool.Wait())

	processed := 0
	for _, w := range pool.workers {
		processed += w.Processed()
	}
	assert.Equal(t, 9, processed)
}

func TestPoolSubmitHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 1, 1, zaptest.NewLogger(t))

	release := make(chan struct{})
	block := func(context.Context) error {
		<-release
		return nil
	}
	require.NoError(t, pool.Submit(ctx, block))
	require.NoError(t, pool.Submit(ctx, block))

	cancel()
	err := pool.Submit(ctx, block)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	assert.NoError(t, pool.Wait())
}

func TestThrottle(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, NewThrottle(2, 4).MinDuration())
	assert.Equal(t, 430*time.Millisecond, NewThrottle(3, 7).MinDuration())
	assert.Equal(t, time.Duration(0), NewThrottle(10, 0).MinDuration())

	throttle := Throttle{min: 40 * time.Millisecond}
	start := time.Now()
	throttle.Hold(context.Background(), start)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	// Time already spent counts toward the minimum
	past := time.Now().Add(-time.Second)
	start = time.Now()
	throttle.Hold(context.Background(), past)
	assert.Less(t, time.Since(start), 40*time.Millisecond)
}
