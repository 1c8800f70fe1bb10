package politeness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterFirstAcquireDoesNotSleep(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(testEntry())
	l := NewLimiter(reg, clock, fixedJitter{f: 1.0}, testEntry())

	lim := Limits{MinDelay: 2 * time.Second, JitterRange: 500 * time.Millisecond, MaxInflight: 2}
	require.NoError(t, l.Acquire(context.Background(), "jobs.example.com", lim))
	defer l.Release("jobs.example.com")

	assert.Empty(t, clock.Sleeps(), "first dispatch to a host must not be delayed")
}

func TestLimiterSleepsForDeficit(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(testEntry())
	// Jitter draw of 1.0 realizes the full jitter range, so the required
	// spacing is exactly MinDelay + JitterRange.
	l := NewLimiter(reg, clock, fixedJitter{f: 1.0}, testEntry())

	host := HostKey("jobs.example.com")
	lim := Limits{MinDelay: 1 * time.Second, JitterRange: 200 * time.Millisecond, MaxInflight: 2}

	require.NoError(t, l.Acquire(context.Background(), host, lim))
	l.Release(host)

	// Second acquire immediately after: full spacing still owed.
	require.NoError(t, l.Acquire(context.Background(), host, lim))
	l.Release(host)

	sleeps := clock.Sleeps()
	require.Len(t, sleeps, 1)
	assert.Equal(t, 1200*time.Millisecond, sleeps[0])
}

func TestLimiterCreditsElapsedTime(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(testEntry())
	l := NewLimiter(reg, clock, fixedJitter{f: 0}, testEntry())

	host := HostKey("jobs.example.com")
	lim := Limits{MinDelay: 2 * time.Second, MaxInflight: 1}

	require.NoError(t, l.Acquire(context.Background(), host, lim))
	l.Release(host)

	clock.Advance(1500 * time.Millisecond)
	require.NoError(t, l.Acquire(context.Background(), host, lim))
	l.Release(host)

	sleeps := clock.Sleeps()
	require.Len(t, sleeps, 1)
	assert.Equal(t, 500*time.Millisecond, sleeps[0], "only the remaining deficit should be slept")
}

func TestLimiterNoSleepWhenSpacingAlreadyElapsed(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(testEntry())
	l := NewLimiter(reg, clock, fixedJitter{f: 0}, testEntry())

	host := HostKey("jobs.example.com")
	lim := Limits{MinDelay: 1 * time.Second, MaxInflight: 1}

	require.NoError(t, l.Acquire(context.Background(), host, lim))
	l.Release(host)

	clock.Advance(5 * time.Second)
	require.NoError(t, l.Acquire(context.Background(), host, lim))
	l.Release(host)

	assert.Empty(t, clock.Sleeps())
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(testEntry())
	l := NewLimiter(reg, clock, fixedJitter{f: 0}, testEntry())

	lim := Limits{MinDelay: 10 * time.Second, MaxInflight: 1}

	require.NoError(t, l.Acquire(context.Background(), "a.example.com", lim))
	l.Release("a.example.com")

	// A different host owes nothing even though a.example.com just dispatched.
	require.NoError(t, l.Acquire(context.Background(), "b.example.com", lim))
	l.Release("b.example.com")

	assert.Empty(t, clock.Sleeps())
	assert.Equal(t, 2, reg.Len())
}

func TestLimiterInflightCap(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(testEntry())
	l := NewLimiter(reg, clock, fixedJitter{f: 0}, testEntry())

	host := HostKey("jobs.example.com")
	lim := Limits{MaxInflight: 2}

	require.NoError(t, l.Acquire(context.Background(), host, lim))
	require.NoError(t, l.Acquire(context.Background(), host, lim))
	assert.Equal(t, 2, reg.Inflight(host))

	// Third acquire must block until a slot frees; with a cancelled context it
	// returns instead of waiting forever.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Acquire(ctx, host, lim)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	l.Release(host)
	require.NoError(t, l.Acquire(context.Background(), host, lim))
	l.Release(host)
	l.Release(host)
	assert.Equal(t, 0, reg.Inflight(host))
}

func TestLimiterCancelledDuringSleepReleasesSlot(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(testEntry())
	l := NewLimiter(reg, clock, fixedJitter{f: 0}, testEntry())

	host := HostKey("jobs.example.com")
	lim := Limits{MinDelay: 5 * time.Second, MaxInflight: 1}

	require.NoError(t, l.Acquire(context.Background(), host, lim))
	l.Release(host)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Acquire(ctx, host, lim)
	require.Error(t, err)

	// The slot must have been returned: a fresh acquire succeeds.
	require.NoError(t, l.Acquire(context.Background(), host, lim))
	l.Release(host)
}
