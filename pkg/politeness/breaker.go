package politeness

import (
	"time"

	"github.com/sirupsen/logrus"
)

// BreakerPolicy is the per-provider breaker configuration applied to a host.
type BreakerPolicy struct {
	MaxConsecutiveFailures int
	Cooldown               time.Duration
}

// Breaker tracks consecutive failures per host and trips into a cooldown
// window once the threshold is reached. It shares hostState (and therefore
// the host lock) with the Limiter so trip decisions stay consistent with
// concurrent admissions.
//
// There is no half-open probe state: the breaker is CLOSED (counter below
// threshold) or OPEN (trippedUntil set). A call arriving after the cooldown
// has elapsed closes the breaker and proceeds.
type Breaker struct {
	reg   *Registry
	clock Clock
	log   *logrus.Entry
}

// NewBreaker creates a Breaker over the shared host registry.
func NewBreaker(reg *Registry, clock Clock, log *logrus.Entry) *Breaker {
	return &Breaker{reg: reg, clock: clock, log: log}
}

// BeforeCall reports whether the host's circuit is open. It never blocks:
// an open circuit fails fast, it is not waited out. If the cooldown has
// elapsed the breaker resets to closed and the call is allowed.
func (b *Breaker) BeforeCall(host HostKey) (open bool, retryAfter time.Duration) {
	hs := b.reg.get(host, 0)
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if hs.trippedUntil.IsZero() {
		return false, 0
	}
	now := b.clock.Now()
	if now.Before(hs.trippedUntil) {
		return true, hs.trippedUntil.Sub(now)
	}

	// Cooldown elapsed: close and reset.
	b.log.WithField("host", host).Info("Circuit breaker cooldown elapsed, closing")
	hs.trippedUntil = time.Time{}
	hs.consecutiveFailures = 0
	return false, 0
}

// OnFailure records a failed attempt against the host and trips the breaker
// when the consecutive-failure threshold is reached.
func (b *Breaker) OnFailure(host HostKey, pol BreakerPolicy) {
	if pol.MaxConsecutiveFailures <= 0 {
		return // breaker disabled for this provider
	}
	hs := b.reg.get(host, 0)
	hs.mu.Lock()
	defer hs.mu.Unlock()

	hs.consecutiveFailures++
	if hs.consecutiveFailures >= pol.MaxConsecutiveFailures && hs.trippedUntil.IsZero() {
		hs.trippedUntil = b.clock.Now().Add(pol.Cooldown)
		b.log.WithFields(logrus.Fields{
			"host":                 host,
			"consecutive_failures": hs.consecutiveFailures,
			"tripped_until":        hs.trippedUntil,
		}).Warn("Circuit breaker tripped")
	}
}

// OnSuccess resets the host's failure counter and closes the breaker.
func (b *Breaker) OnSuccess(host HostKey) {
	hs := b.reg.get(host, 0)
	hs.mu.Lock()
	defer hs.mu.Unlock()

	hs.consecutiveFailures = 0
	hs.trippedUntil = time.Time{}
}

// ConsecutiveFailures returns the current failure streak for host.
func (b *Breaker) ConsecutiveFailures(host HostKey) int {
	hs := b.reg.get(host, 0)
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.consecutiveFailures
}
