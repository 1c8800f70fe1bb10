package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

func minimalConfig() *AppConfig {
	return &AppConfig{
		Providers: map[string]*Provider{
			"acme-jobs": {
				URL:            "https://jobs.example.com/acme",
				ExtractionMode: "html_list",
			},
		},
	}
}

func TestValidateAppliesAmbientDefaults(t *testing.T) {
	cfg := minimalConfig()
	warnings, err := cfg.Validate()
	require.NoError(t, err)

	assert.Equal(t, DefaultUserAgent, cfg.DefaultUserAgent)
	assert.Equal(t, 4, cfg.NumWorkers)
	assert.Equal(t, "./provenance", cfg.OutputDir)
	assert.Equal(t, "./snapshots", cfg.SnapshotDir)
	assert.NotEmpty(t, warnings, "defaulted ambient fields should be warned about")
}

func TestValidateRejectsEmptyRegistry(t *testing.T) {
	cfg := &AppConfig{}
	_, err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "no providers")
}

func TestValidateRejectsProviderWithoutURL(t *testing.T) {
	cfg := minimalConfig()
	cfg.Providers["acme-jobs"].URL = ""
	_, err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateRejectsInvalidURL(t *testing.T) {
	cfg := minimalConfig()
	cfg.Providers["acme-jobs"].URL = "/just/a/path"
	_, err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid url")
}

func TestValidateRejectsUnknownExtractionMode(t *testing.T) {
	cfg := minimalConfig()
	cfg.Providers["acme-jobs"].ExtractionMode = "regex"
	_, err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extraction_mode")
}

func TestValidateQPSAndMinDelayMustAgree(t *testing.T) {
	cfg := minimalConfig()
	p := cfg.Providers["acme-jobs"]

	// Consistent pair: 2 qps == 0.5s spacing.
	p.MinDelayS = f64(0.5)
	p.MaxQPS = f64(2.0)
	_, err := cfg.Validate()
	require.NoError(t, err)

	// Contradictory pair is fatal, not silently reconciled.
	p.MinDelayS = f64(1.0)
	_, err = cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "disagree")
}

func TestValidateRejectsNegativeKnobs(t *testing.T) {
	tests := []struct {
		name string
		set  func(*Politeness)
	}{
		{"min_delay_s", func(p *Politeness) { p.MinDelayS = f64(-1) }},
		{"rate_jitter_s", func(p *Politeness) { p.RateJitterS = f64(-0.5) }},
		{"backoff_base_s", func(p *Politeness) { p.BackoffBaseS = f64(-1) }},
		{"cooldown_s", func(p *Politeness) { p.CooldownS = f64(-300) }},
		{"max_attempts", func(p *Politeness) { p.MaxAttempts = intp(-1) }},
		{"max_inflight_per_host", func(p *Politeness) { p.MaxInflightPerHost = intp(-2) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalConfig()
			tt.set(&cfg.Providers["acme-jobs"].Politeness)
			_, err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.True(t, strings.Contains(err.Error(), tt.name), "error should name %s: %v", tt.name, err)
		})
	}
}

func TestValidateRejectsZeroMaxAttempts(t *testing.T) {
	cfg := minimalConfig()
	cfg.Providers["acme-jobs"].MaxAttempts = intp(0)
	_, err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempts")
}

func TestValidateChecksHostOverrideLayers(t *testing.T) {
	cfg := minimalConfig()
	cfg.Providers["acme-jobs"].HostOverrides = map[string]Politeness{
		"jobs.example.com": {MinDelayS: f64(-5)},
	}
	_, err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host_overrides")
}

func TestValidateRejectsNonPositiveHostCaps(t *testing.T) {
	cfg := minimalConfig()
	cfg.Providers["acme-jobs"].HostQPSCaps = map[string]float64{"jobs.example.com": 0}
	_, err := cfg.Validate()
	require.Error(t, err)

	cfg = minimalConfig()
	cfg.Providers["acme-jobs"].HostConcurrencyCaps = map[string]int{"jobs.example.com": -1}
	_, err = cfg.Validate()
	require.Error(t, err)
}

func TestValidateDefaultsLayerIsChecked(t *testing.T) {
	cfg := minimalConfig()
	cfg.Defaults.MaxQPS = f64(0)
	_, err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defaults")
}
