package politeness

import (
	"context"
	"math/rand"
	"time"
)

// Clock abstracts wall-clock reads and sleeps so time-dependent politeness
// state can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is cancelled, returning ctx.Err() in
	// the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// JitterSource yields values in [0, 1) used to scale configured jitter
// ranges. Production uses math/rand; tests inject fixed draws.
type JitterSource interface {
	Float64() float64
}

// WallClock is the production Clock backed by the time package.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

func (WallClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RandJitter is the production JitterSource.
type RandJitter struct{}

func (RandJitter) Float64() float64 { return rand.Float64() }
