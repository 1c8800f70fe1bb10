package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	"careers-scraper/pkg/validate"
)

// ErrValidation marks fatal configuration errors. They are never recovered
// at runtime; the process refuses to start.
var ErrValidation = errors.New("configuration validation error")

// qpsDelayTolerance absorbs float noise when comparing min_delay_s against
// 1/max_qps.
const qpsDelayTolerance = 1e-9

// Validate checks the registry document and applies ambient defaults.
// Politeness misconfiguration is fatal, matching the rest of the pipeline's
// refusal to guess at rate expectations. Returns collected warnings for the
// non-fatal ambient fields it defaulted.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if c.DefaultUserAgent == "" {
		c.DefaultUserAgent = DefaultUserAgent
	}
	if c.NumWorkers <= 0 {
		warnings = append(warnings, "num_workers should be > 0, defaulting to 4")
		c.NumWorkers = 4
	}
	if c.OutputDir == "" {
		warnings = append(warnings, "output_dir is empty, defaulting to './provenance'")
		c.OutputDir = "./provenance"
	}
	if c.SnapshotDir == "" {
		warnings = append(warnings, "snapshot_dir is empty, defaulting to './snapshots'")
		c.SnapshotDir = "./snapshots"
	}
	c.validateHTTPClientSettings()

	if len(c.Providers) == 0 {
		return warnings, fmt.Errorf("%w: registry has no providers", ErrValidation)
	}

	if err := checkPoliteness("defaults", c.Defaults); err != nil {
		return warnings, err
	}

	for id, p := range c.Providers {
		if p == nil {
			return warnings, fmt.Errorf("%w: provider %q is empty", ErrValidation, id)
		}
		if p.URL == "" {
			return warnings, fmt.Errorf("%w: provider %q has no url", ErrValidation, id)
		}
		if u, uerr := url.Parse(p.URL); uerr != nil || u.Hostname() == "" {
			return warnings, fmt.Errorf("%w: provider %q has invalid url %q", ErrValidation, id, p.URL)
		}
		if !validate.ExtractionMode(p.ExtractionMode).IsValid() {
			return warnings, fmt.Errorf("%w: provider %q has unknown extraction_mode %q",
				ErrValidation, id, p.ExtractionMode)
		}
		if err := checkPoliteness("provider "+id, p.Politeness); err != nil {
			return warnings, err
		}
		for host, hp := range p.HostOverrides {
			if err := checkPoliteness(fmt.Sprintf("provider %s host_overrides[%s]", id, host), hp); err != nil {
				return warnings, err
			}
		}
		for host, qps := range p.HostQPSCaps {
			if qps <= 0 {
				return warnings, fmt.Errorf("%w: provider %s host_qps_caps[%s] must be > 0",
					ErrValidation, id, host)
			}
		}
		for host, limit := range p.HostConcurrencyCaps {
			if limit <= 0 {
				return warnings, fmt.Errorf("%w: provider %s host_concurrency_caps[%s] must be > 0",
					ErrValidation, id, host)
			}
		}
		if p.MinContentBytes < 0 {
			return warnings, fmt.Errorf("%w: provider %q min_content_bytes cannot be negative",
				ErrValidation, id)
		}
	}

	return warnings, nil
}

// checkPoliteness rejects negative knobs and a max_qps that contradicts
// min_delay_s in the same layer. The pair is redundant; disagreement is a
// configuration error, never a runtime fallback.
func checkPoliteness(where string, p Politeness) error {
	if p.MinDelayS != nil && *p.MinDelayS < 0 {
		return fmt.Errorf("%w: %s: min_delay_s cannot be negative", ErrValidation, where)
	}
	if p.MaxQPS != nil && *p.MaxQPS <= 0 {
		return fmt.Errorf("%w: %s: max_qps must be > 0", ErrValidation, where)
	}
	if p.MinDelayS != nil && p.MaxQPS != nil {
		derived := 1 / *p.MaxQPS
		if math.Abs(*p.MinDelayS-derived) > qpsDelayTolerance {
			return fmt.Errorf("%w: %s: min_delay_s (%g) and max_qps (%g) disagree: 1/max_qps = %g",
				ErrValidation, where, *p.MinDelayS, *p.MaxQPS, derived)
		}
	}
	for name, v := range map[string]*float64{
		"rate_jitter_s":    p.RateJitterS,
		"backoff_base_s":   p.BackoffBaseS,
		"backoff_max_s":    p.BackoffMaxS,
		"backoff_jitter_s": p.BackoffJitterS,
		"cooldown_s":       p.CooldownS,
		"timeout_s":        p.TimeoutS,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: %s: %s cannot be negative", ErrValidation, where, name)
		}
	}
	for name, v := range map[string]*int{
		"max_attempts":             p.MaxAttempts,
		"max_consecutive_failures": p.MaxConsecutiveFailures,
		"max_inflight_per_host":    p.MaxInflightPerHost,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: %s: %s cannot be negative", ErrValidation, where, name)
		}
	}
	if p.MaxAttempts != nil && *p.MaxAttempts == 0 {
		return fmt.Errorf("%w: %s: max_attempts must be >= 1", ErrValidation, where)
	}
	return nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
