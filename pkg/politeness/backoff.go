package politeness

import (
	"math"
	"time"
)

// BackoffPolicy configures exponential backoff between retry attempts.
type BackoffPolicy struct {
	Base        time.Duration // first-retry delay
	Max         time.Duration // cap on the exponential term
	JitterRange time.Duration // extra delay drawn from [0, JitterRange)
}

// Backoff computes sleep durations across retry attempts. It is a pure
// function of the attempt number and the injected jitter source; it holds no
// shared state and needs no locking.
type Backoff struct {
	jitter JitterSource
}

// NewBackoff creates a Backoff using the given jitter source.
func NewBackoff(jitter JitterSource) *Backoff {
	return &Backoff{jitter: jitter}
}

// Delay returns the sleep before retrying after the given failed attempt.
// Attempt numbering starts at 1: Delay(1) = Base + jitter, doubling each
// attempt until the exponential term hits Max.
func (b *Backoff) Delay(attempt int, pol BackoffPolicy) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(pol.Base) * math.Pow(2, float64(attempt-1))
	if capped := float64(pol.Max); pol.Max > 0 && base > capped {
		base = capped
	}
	d := time.Duration(base)
	if pol.JitterRange > 0 {
		d += time.Duration(b.jitter.Float64() * float64(pol.JitterRange))
	}
	if d < 0 {
		d = 0
	}
	return d
}
