package transfer

import (
	"context"
	"math"
	"time"
)

// Throttle enforces a minimum wall-clock duration per task. With every
// worker holding each task for workers/rateLimit seconds the pool as a whole
// issues about rateLimit calls per second.
type Throttle struct {
	min time.Duration
}

// NewThrottle derives the per-task minimum from the worker count and the
// target calls per second. A non-positive rate disables throttling.
func NewThrottle(workers int, rateLimit float64) Throttle {
	if rateLimit <= 0 || workers <= 0 {
		return Throttle{}
	}
	seconds := math.Round(float64(workers)/rateLimit*100) / 100
	return Throttle{min: time.Duration(math.Round(seconds * float64(time.Second)))}
}

// MinDuration returns the per-task minimum
func (t Throttle) MinDuration() time.Duration {
	return t.min
}

// Hold sleeps for whatever is left of the minimum since start
func (t Throttle) Hold(ctx context.Context, start time.Time) {
	remaining := t.min - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
