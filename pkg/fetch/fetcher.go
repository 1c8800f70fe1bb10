package fetch

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"careers-scraper/pkg/config"
	"careers-scraper/pkg/detect"
	"careers-scraper/pkg/politeness"
	"careers-scraper/pkg/provenance"
	"careers-scraper/pkg/validate"
)

// FetchError is the typed terminal failure surfaced to callers. The caller
// decides whether to fall back to a snapshot or mark the provider
// unavailable; this engine only reports what happened.
type FetchError struct {
	Reason     Reason
	Attempts   int
	StatusCode *int
}

func (e *FetchError) Error() string {
	if e.StatusCode != nil {
		return fmt.Sprintf("fetch failed: %s (status %d, %d attempts)", e.Reason, *e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("fetch failed: %s (%d attempts)", e.Reason, e.Attempts)
}

// Outcome is the explicit result value for one invocation. The orchestrator
// and its callers branch on this instead of catching errors for expected
// transient failures.
type Outcome struct {
	Success    bool
	Reason     Reason
	StatusCode *int
	Attempts   int
}

// Result bundles everything one invocation produced: content on success,
// the outcome value, the provenance record (always present), and the robots
// decision that applied.
type Result struct {
	Content []byte
	Outcome Outcome
	Record  *provenance.Record
	Robots  *RobotsDecision
}

// Options tweaks orchestrator behavior for testing and operations.
type Options struct {
	// RobotsOverride forces the network call even when robots policy denies
	// it. Test/ops escape hatch; never set in normal runs.
	RobotsOverride bool
}

// Fetcher composes the rate limiter, circuit breaker, robots evaluator,
// backoff controller, classifier, and validator into a single
// fetch-with-retry operation, emitting one attempt log per round trip and
// exactly one provenance record per invocation.
type Fetcher struct {
	transport Transport
	robots    *RobotsEvaluator
	limiter   *politeness.Limiter
	breaker   *politeness.Breaker
	backoff   *politeness.Backoff
	clock     politeness.Clock
	userAgent string
	allowlist []string
	opts      Options
	log       *logrus.Entry
}

// NewFetcher wires the orchestrator. The limiter and breaker must share one
// politeness.Registry so admission and trip decisions see the same host
// state.
func NewFetcher(
	transport Transport,
	robots *RobotsEvaluator,
	limiter *politeness.Limiter,
	breaker *politeness.Breaker,
	backoff *politeness.Backoff,
	clock politeness.Clock,
	userAgent string,
	allowlist []string,
	opts Options,
	log *logrus.Entry,
) *Fetcher {
	return &Fetcher{
		transport: transport,
		robots:    robots,
		limiter:   limiter,
		breaker:   breaker,
		backoff:   backoff,
		clock:     clock,
		userAgent: userAgent,
		allowlist: allowlist,
		opts:      opts,
		log:       log,
	}
}

// FetchWithRetry runs the full politeness state machine for one provider.
// A Result with a provenance record is always returned, also on error.
func (f *Fetcher) FetchWithRetry(ctx context.Context, p *config.ResolvedProvider, runID string) (*Result, error) {
	host, err := politeness.NormalizeHost(p.URL)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.ID, err)
	}
	pv := p.PolicyFor(host)
	provLog := f.log.WithFields(logrus.Fields{"provider": p.ID, "host": host})

	snap := f.policySnapshot(p, pv)
	provenance.LogPolicySummary(provLog, snap)

	res := &Result{
		Record: &provenance.Record{
			RunID:          runID,
			ProviderID:     p.ID,
			ScrapeMode:     provenance.ModeLive,
			Availability:   provenance.Available,
			PolicySnapshot: snap,
		},
	}

	var lastReason Reason
	var lastStatus *int
	attemptsMade := 0

	for attempt := 1; attempt <= pv.MaxAttempts; attempt++ {
		// RATE_LIMITED_WAIT
		if err := f.limiter.Acquire(ctx, host, pv.Limits()); err != nil {
			return f.terminal(res, ClassifyError(err), lastStatus, attemptsMade), err
		}

		// CIRCUIT_CHECK: fail fast, never waited out. Fail-fast reasons do
		// not count an attempt because no network call is made.
		if open, retryAfter := f.breaker.BeforeCall(host); open {
			f.limiter.Release(host)
			provLog.WithField("retry_after", retryAfter).Warn("Circuit breaker open, failing fast")
			return f.terminalErr(res, ReasonCircuitBreaker, nil, attemptsMade)
		}

		// ROBOTS_CHECK
		dec := f.robots.Evaluate(ctx, p.URL, p.ID)
		res.Robots = dec
		res.Record.RobotsFinalAllowed = dec.FinalAllowed
		if !dec.FinalAllowed && !f.opts.RobotsOverride {
			f.limiter.Release(host)
			provLog.WithField("reason", dec.Reason).Warn("Robots policy denies fetch")
			return f.terminalErr(res, ReasonRobotsDenied, nil, attemptsMade)
		}

		// IN_FLIGHT
		start := f.clock.Now()
		resp, doErr := f.transport.Do(ctx, Request{
			ProviderID: p.ID,
			URL:        p.URL,
			Headers:    p.Headers,
			UserAgent:  f.userAgent,
			Timeout:    pv.Timeout,
		})
		elapsed := f.clock.Now().Sub(start)
		attemptsMade = attempt

		reason, status, content := f.classifyAttempt(p, resp, doErr)
		lastReason, lastStatus = reason, status

		provenance.LogAttempt(provLog, p.ID, provenance.FetchAttempt{
			AttemptIndex: attempt,
			StatusCode:   status,
			ReasonCode:   string(reason),
			ElapsedS:     elapsed.Seconds(),
		})

		if reason == ReasonNone {
			// SUCCESS
			f.breaker.OnSuccess(host)
			f.limiter.Release(host)
			res.Content = content
			res.Outcome = Outcome{Success: true, StatusCode: status, Attempts: attemptsMade}
			res.Record.AttemptsMade = attemptsMade
			res.Record.LiveResult = "success"
			return res, nil
		}

		f.breaker.OnFailure(host, pv.BreakerPolicy())
		f.limiter.Release(host)

		// RETRY or FAIL_TERMINAL
		if Retryable(reason) && attempt < pv.MaxAttempts {
			delay := f.backoff.Delay(attempt, pv.BackoffPolicy())
			provLog.WithFields(logrus.Fields{
				"attempt": attempt, "max_attempts": pv.MaxAttempts, "delay": delay, "reason": reason,
			}).Warn("Retrying after backoff")
			if err := f.clock.Sleep(ctx, delay); err != nil {
				return f.terminal(res, reason, status, attemptsMade), err
			}
			continue
		}
		break
	}

	return f.terminalErr(res, lastReason, lastStatus, attemptsMade)
}

// classifyAttempt turns a transport outcome into a reason code. ReasonNone
// means the attempt succeeded and content passed blocked-page detection and
// validation.
func (f *Fetcher) classifyAttempt(p *config.ResolvedProvider, resp *Response, doErr error) (Reason, *int, []byte) {
	if doErr != nil {
		return ClassifyError(doErr), nil, nil
	}
	status := resp.StatusCode

	if status < 200 || status >= 300 {
		// Enumerated status mappings win over body markers: a challenge
		// page served on 429 or 503 keeps its retryable status reason.
		if r, ok := statusReason(status); ok {
			return r, &status, nil
		}
		// Only statuses outside the mapping are classified by body.
		if blocked := detect.Blocked(resp.Body); blocked.Blocked {
			return ReasonBlocked, &status, nil
		}
		return ClassifyStatus(status), &status, nil
	}

	if blocked := detect.Blocked(resp.Body); blocked.Blocked {
		f.log.WithFields(logrus.Fields{"provider": p.ID, "marker": blocked.Marker}).
			Warn("Blocked-page marker in 2xx response")
		return ReasonBlocked, &status, nil
	}

	v := validate.Content(p.ID, resp.Body, validate.Rules{
		Mode:         p.ExtractionMode,
		MinBytes:     p.MinContentBytes,
		BrandMarkers: p.BrandMarkers,
	})
	if !v.OK {
		f.log.WithFields(logrus.Fields{"provider": p.ID, "reason": v.Reason}).
			Warn("Content failed validation")
		return ReasonParseError, &status, nil
	}

	return ReasonNone, &status, resp.Body
}

// terminal fills the failure fields on the record and outcome.
func (f *Fetcher) terminal(res *Result, reason Reason, status *int, attempts int) *Result {
	res.Outcome = Outcome{Reason: reason, StatusCode: status, Attempts: attempts}
	res.Record.AttemptsMade = attempts
	res.Record.LiveResult = string(reason)
	res.Record.SetUnavailable(string(reason))
	return res
}

// terminalErr is terminal plus the typed error callers branch on.
func (f *Fetcher) terminalErr(res *Result, reason Reason, status *int, attempts int) (*Result, error) {
	f.terminal(res, reason, status, attempts)
	return res, &FetchError{Reason: reason, Attempts: attempts, StatusCode: status}
}

// policySnapshot freezes the effective policy for the provenance record.
func (f *Fetcher) policySnapshot(p *config.ResolvedProvider, pv config.PolicyValues) provenance.PolicySnapshot {
	chaos := false
	if ca, ok := f.transport.(chaosAware); ok {
		_, chaos = ca.ChaosFor(p.ID)
	}
	return provenance.PolicySnapshot{
		ProviderID:             p.ID,
		ExtractionMode:         string(p.ExtractionMode),
		UserAgent:              f.userAgent,
		MinDelayS:              pv.MinDelay.Seconds(),
		RateJitterS:            pv.RateJitter.Seconds(),
		MaxAttempts:            pv.MaxAttempts,
		BackoffBaseS:           pv.BackoffBase.Seconds(),
		BackoffMaxS:            pv.BackoffMax.Seconds(),
		BackoffJitterS:         pv.BackoffJitter.Seconds(),
		MaxConsecutiveFailures: pv.MaxConsecutiveFailures,
		CooldownS:              pv.Cooldown.Seconds(),
		MaxInflightPerHost:     pv.MaxInflightPerHost,
		TimeoutS:               pv.Timeout.Seconds(),
		AllowlistEntries:       f.allowlist,
		ChaosActive:            chaos,
	}
}
