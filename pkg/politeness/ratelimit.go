package politeness

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Limits is the per-host politeness envelope a caller acquires under.
// Values come from the resolved provider config, possibly host-overridden.
type Limits struct {
	MinDelay    time.Duration // minimum spacing between dispatches to the host
	JitterRange time.Duration // extra random spacing drawn from [0, JitterRange)
	MaxInflight int           // concurrent request cap for the host
}

// Limiter enforces minimum inter-request delay plus jitter and the in-flight
// cap per host. Admission for one host is totally ordered: the host lock is
// held across the spacing sleep, and the dispatch timestamp is recorded when
// the lock is released, so overlapping in-flight requests never under-space
// the ones behind them.
type Limiter struct {
	reg    *Registry
	clock  Clock
	jitter JitterSource
	log    *logrus.Entry
}

// NewLimiter creates a Limiter over the shared host registry.
func NewLimiter(reg *Registry, clock Clock, jitter JitterSource, log *logrus.Entry) *Limiter {
	return &Limiter{reg: reg, clock: clock, jitter: jitter, log: log}
}

// Acquire blocks until the host has a free in-flight slot and the minimum
// spacing since the previous dispatch has elapsed, then admits the caller.
// Every successful Acquire must be paired with a Release. Returns ctx.Err()
// if the context is cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context, host HostKey, lim Limits) error {
	hs := l.reg.get(host, lim.MaxInflight)

	if err := hs.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	hs.mu.Lock()
	if !hs.lastDispatch.IsZero() && lim.MinDelay > 0 {
		elapsed := l.clock.Now().Sub(hs.lastDispatch)
		required := lim.MinDelay
		if lim.JitterRange > 0 {
			required += time.Duration(l.jitter.Float64() * float64(lim.JitterRange))
		}
		if deficit := required - elapsed; deficit > 0 {
			l.log.WithFields(logrus.Fields{
				"host": host, "sleep": deficit, "required_delay": required, "elapsed": elapsed,
			}).Debug("Rate limit applying sleep")
			if err := l.clock.Sleep(ctx, deficit); err != nil {
				hs.mu.Unlock()
				hs.sem.Release(1)
				return err
			}
		}
	}
	hs.lastDispatch = l.clock.Now()
	hs.inflight++
	hs.mu.Unlock()

	return nil
}

// Release frees the in-flight slot taken by a prior Acquire.
func (l *Limiter) Release(host HostKey) {
	l.reg.mu.Lock()
	hs, ok := l.reg.hosts[host]
	l.reg.mu.Unlock()
	if !ok {
		l.log.Errorf("ratelimit: Release called for unknown host: %s", host)
		return
	}

	hs.mu.Lock()
	hs.inflight--
	hs.mu.Unlock()

	hs.sem.Release(1)
}
