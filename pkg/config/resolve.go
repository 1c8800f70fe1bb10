package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"careers-scraper/pkg/politeness"
	"careers-scraper/pkg/validate"
)

// PolicyValues is one provider's fully resolved politeness policy, all
// layers applied, durations converted. Immutable after Resolve.
type PolicyValues struct {
	MinDelay               time.Duration
	RateJitter             time.Duration
	MaxAttempts            int
	BackoffBase            time.Duration
	BackoffMax             time.Duration
	BackoffJitter          time.Duration
	MaxConsecutiveFailures int
	Cooldown               time.Duration
	MaxInflightPerHost     int
	Timeout                time.Duration
}

// Limits converts the resolved values into the rate limiter's envelope.
func (pv PolicyValues) Limits() politeness.Limits {
	return politeness.Limits{
		MinDelay:    pv.MinDelay,
		JitterRange: pv.RateJitter,
		MaxInflight: pv.MaxInflightPerHost,
	}
}

// BackoffPolicy converts the resolved values into the backoff policy.
func (pv PolicyValues) BackoffPolicy() politeness.BackoffPolicy {
	return politeness.BackoffPolicy{
		Base:        pv.BackoffBase,
		Max:         pv.BackoffMax,
		JitterRange: pv.BackoffJitter,
	}
}

// BreakerPolicy converts the resolved values into the breaker policy.
func (pv PolicyValues) BreakerPolicy() politeness.BreakerPolicy {
	return politeness.BreakerPolicy{
		MaxConsecutiveFailures: pv.MaxConsecutiveFailures,
		Cooldown:               pv.Cooldown,
	}
}

// ResolvedProvider is the immutable per-provider view handed to the fetch
// engine once all configuration layers are collapsed.
type ResolvedProvider struct {
	ID              string
	URL             string
	ExtractionMode  validate.ExtractionMode
	Headers         map[string]string
	MinContentBytes int
	BrandMarkers    []string

	Policy        PolicyValues
	hostOverrides map[politeness.HostKey]PolicyValues
}

// PolicyFor returns the effective policy for a host, applying any host
// override configured for this provider.
func (rp *ResolvedProvider) PolicyFor(host politeness.HostKey) PolicyValues {
	if pv, ok := rp.hostOverrides[host]; ok {
		return pv
	}
	return rp.Policy
}

// Resolved is the immutable application configuration after Load.
type Resolved struct {
	UserAgent       string
	NumWorkers      int
	OutputDir       string
	SnapshotDir     string
	RobotsAllowlist []string
	RobotsTimeout   time.Duration
	HTTPClient      HTTPClientConfig
	Providers       map[string]*ResolvedProvider
}

func secs(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }

func basePolicy() PolicyValues {
	return PolicyValues{
		MinDelay:               secs(DefaultMinDelayS),
		RateJitter:             secs(DefaultRateJitterS),
		MaxAttempts:            DefaultMaxAttempts,
		BackoffBase:            secs(DefaultBackoffBaseS),
		BackoffMax:             secs(DefaultBackoffMaxS),
		BackoffJitter:          secs(DefaultBackoffJitterS),
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
		Cooldown:               secs(DefaultCooldownS),
		MaxInflightPerHost:     DefaultMaxInflightPerHost,
		Timeout:                secs(DefaultTimeoutS),
	}
}

// overlay applies every set field of p on top of pv. A layer that sets only
// max_qps gets its min_delay derived as 1/max_qps; a layer that sets both
// has already passed the consistency check.
func overlay(pv PolicyValues, p Politeness) PolicyValues {
	switch {
	case p.MinDelayS != nil:
		pv.MinDelay = secs(*p.MinDelayS)
	case p.MaxQPS != nil && *p.MaxQPS > 0:
		pv.MinDelay = secs(1 / *p.MaxQPS)
	}
	if p.RateJitterS != nil {
		pv.RateJitter = secs(*p.RateJitterS)
	}
	if p.MaxAttempts != nil {
		pv.MaxAttempts = *p.MaxAttempts
	}
	if p.BackoffBaseS != nil {
		pv.BackoffBase = secs(*p.BackoffBaseS)
	}
	if p.BackoffMaxS != nil {
		pv.BackoffMax = secs(*p.BackoffMaxS)
	}
	if p.BackoffJitterS != nil {
		pv.BackoffJitter = secs(*p.BackoffJitterS)
	}
	if p.MaxConsecutiveFailures != nil {
		pv.MaxConsecutiveFailures = *p.MaxConsecutiveFailures
	}
	if p.CooldownS != nil {
		pv.Cooldown = secs(*p.CooldownS)
	}
	if p.MaxInflightPerHost != nil {
		pv.MaxInflightPerHost = *p.MaxInflightPerHost
	}
	if p.TimeoutS != nil {
		pv.Timeout = secs(*p.TimeoutS)
	}
	return pv
}

// envPrefix builds the environment variable prefix for a provider id:
// "acme-jobs" -> "CAREERS_ACME_JOBS_".
func envPrefix(providerID string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - ('a' - 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, providerID)
	return "CAREERS_" + mapped + "_"
}

// envOverlay reads the per-provider environment overrides into a Politeness
// layer. Read once at load time; the resolved config never consults the
// environment afterward.
func envOverlay(providerID string) (Politeness, error) {
	prefix := envPrefix(providerID)
	var p Politeness

	floatVar := func(name string, dst **float64) error {
		raw, ok := os.LookupEnv(prefix + name)
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q is not a number", ErrValidation, prefix, name, raw)
		}
		*dst = &f
		return nil
	}
	intVar := func(name string, dst **int) error {
		raw, ok := os.LookupEnv(prefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q is not an integer", ErrValidation, prefix, name, raw)
		}
		*dst = &n
		return nil
	}

	for _, f := range []struct {
		name string
		dst  **float64
	}{
		{"MIN_DELAY_S", &p.MinDelayS},
		{"RATE_JITTER_S", &p.RateJitterS},
		{"BACKOFF_BASE_S", &p.BackoffBaseS},
		{"BACKOFF_MAX_S", &p.BackoffMaxS},
		{"BACKOFF_JITTER_S", &p.BackoffJitterS},
		{"COOLDOWN_S", &p.CooldownS},
		{"TIMEOUT_S", &p.TimeoutS},
	} {
		if err := floatVar(f.name, f.dst); err != nil {
			return p, err
		}
	}
	for _, f := range []struct {
		name string
		dst  **int
	}{
		{"MAX_ATTEMPTS", &p.MaxAttempts},
		{"MAX_CONSECUTIVE_FAILURES", &p.MaxConsecutiveFailures},
		{"MAX_INFLIGHT_PER_HOST", &p.MaxInflightPerHost},
	} {
		if err := intVar(f.name, f.dst); err != nil {
			return p, err
		}
	}
	return p, nil
}

// Resolve collapses all configuration layers (base defaults, registry
// defaults, provider config, host overrides, environment overrides) into an
// immutable Resolved value. Call after Validate.
func (c *AppConfig) Resolve() (*Resolved, error) {
	r := &Resolved{
		UserAgent:       c.DefaultUserAgent,
		NumWorkers:      c.NumWorkers,
		OutputDir:       c.OutputDir,
		SnapshotDir:     c.SnapshotDir,
		RobotsAllowlist: append([]string(nil), c.RobotsAllowlist...),
		RobotsTimeout:   secs(c.RobotsTimeoutS),
		HTTPClient:      c.HTTPClientSettings,
		Providers:       make(map[string]*ResolvedProvider, len(c.Providers)),
	}
	if r.RobotsTimeout <= 0 {
		r.RobotsTimeout = secs(DefaultRobotsTimeoutS)
	}

	// The allowlist may be replaced wholesale from the environment.
	if raw, ok := os.LookupEnv("CAREERS_ROBOTS_ALLOWLIST"); ok {
		r.RobotsAllowlist = nil
		for _, d := range strings.Split(raw, ",") {
			if d = strings.TrimSpace(d); d != "" {
				r.RobotsAllowlist = append(r.RobotsAllowlist, strings.ToLower(d))
			}
		}
	}

	for id, p := range c.Providers {
		env, err := envOverlay(id)
		if err != nil {
			return nil, err
		}

		pv := overlay(basePolicy(), c.Defaults)
		pv = overlay(pv, p.Politeness)
		providerPolicy := overlay(pv, env)

		rp := &ResolvedProvider{
			ID:              id,
			URL:             p.URL,
			ExtractionMode:  validate.ExtractionMode(p.ExtractionMode),
			Headers:         p.Headers,
			MinContentBytes: p.MinContentBytes,
			BrandMarkers:    append([]string(nil), p.BrandMarkers...),
			Policy:          providerPolicy,
			hostOverrides:   make(map[politeness.HostKey]PolicyValues),
		}

		for host, hp := range p.HostOverrides {
			hv := overlay(pv, hp)
			rp.hostOverrides[politeness.HostKey(strings.ToLower(host))] = overlay(hv, env)
		}
		for host, qps := range p.HostQPSCaps {
			key := politeness.HostKey(strings.ToLower(host))
			hv, ok := rp.hostOverrides[key]
			if !ok {
				hv = providerPolicy
			}
			if qps > 0 {
				hv.MinDelay = secs(1 / qps)
			}
			rp.hostOverrides[key] = hv
		}
		for host, limit := range p.HostConcurrencyCaps {
			key := politeness.HostKey(strings.ToLower(host))
			hv, ok := rp.hostOverrides[key]
			if !ok {
				hv = providerPolicy
			}
			hv.MaxInflightPerHost = limit
			rp.hostOverrides[key] = hv
		}

		r.Providers[id] = rp
	}

	return r, nil
}
