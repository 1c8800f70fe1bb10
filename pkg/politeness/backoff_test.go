package politeness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesPerAttempt(t *testing.T) {
	b := NewBackoff(fixedJitter{f: 0})
	pol := BackoffPolicy{Base: time.Second, Max: 30 * time.Second}

	assert.Equal(t, 1*time.Second, b.Delay(1, pol))
	assert.Equal(t, 2*time.Second, b.Delay(2, pol))
	assert.Equal(t, 4*time.Second, b.Delay(3, pol))
	assert.Equal(t, 8*time.Second, b.Delay(4, pol))
}

func TestBackoffCapsAtMax(t *testing.T) {
	b := NewBackoff(fixedJitter{f: 0})
	pol := BackoffPolicy{Base: time.Second, Max: 4 * time.Second}

	assert.Equal(t, 4*time.Second, b.Delay(3, pol))
	assert.Equal(t, 4*time.Second, b.Delay(10, pol), "cap holds for arbitrarily late attempts")
}

func TestBackoffAddsJitterOnTopOfCap(t *testing.T) {
	// Full jitter draw: delay = capped exponential + the whole jitter range.
	b := NewBackoff(fixedJitter{f: 1.0})
	pol := BackoffPolicy{Base: time.Second, Max: 4 * time.Second, JitterRange: 500 * time.Millisecond}

	assert.Equal(t, 1500*time.Millisecond, b.Delay(1, pol))
	assert.Equal(t, 4500*time.Millisecond, b.Delay(5, pol))
}

func TestBackoffPartialJitterDraw(t *testing.T) {
	b := NewBackoff(fixedJitter{f: 0.1})
	pol := BackoffPolicy{Base: time.Second, Max: 4 * time.Second, JitterRange: time.Second}

	// First retry: 1.0s base + 0.1 * 1.0s jitter.
	assert.Equal(t, 1100*time.Millisecond, b.Delay(1, pol))
}

func TestBackoffClampsAttemptBelowOne(t *testing.T) {
	b := NewBackoff(fixedJitter{f: 0})
	pol := BackoffPolicy{Base: time.Second, Max: 30 * time.Second}

	assert.Equal(t, b.Delay(1, pol), b.Delay(0, pol))
	assert.Equal(t, b.Delay(1, pol), b.Delay(-3, pol))
}
