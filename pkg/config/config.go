package config

import "time"

// Politeness holds the per-provider politeness knobs. All duration fields
// are float seconds in YAML (matching the provider registry document) and
// are converted to time.Duration at resolve time. Pointer fields distinguish
// "unset, inherit from the layer below" from an explicit zero.
type Politeness struct {
	MinDelayS              *float64 `yaml:"min_delay_s,omitempty"`
	RateJitterS            *float64 `yaml:"rate_jitter_s,omitempty"`
	MaxQPS                 *float64 `yaml:"max_qps,omitempty"`
	MaxAttempts            *int     `yaml:"max_attempts,omitempty"`
	BackoffBaseS           *float64 `yaml:"backoff_base_s,omitempty"`
	BackoffMaxS            *float64 `yaml:"backoff_max_s,omitempty"`
	BackoffJitterS         *float64 `yaml:"backoff_jitter_s,omitempty"`
	MaxConsecutiveFailures *int     `yaml:"max_consecutive_failures,omitempty"`
	CooldownS              *float64 `yaml:"cooldown_s,omitempty"`
	MaxInflightPerHost     *int     `yaml:"max_inflight_per_host,omitempty"`
	TimeoutS               *float64 `yaml:"timeout_s,omitempty"`
}

// Provider configures a single career-site provider in the registry.
type Provider struct {
	URL             string            `yaml:"url"`
	ExtractionMode  string            `yaml:"extraction_mode"`
	Headers         map[string]string `yaml:"headers,omitempty"`
	MinContentBytes int               `yaml:"min_content_bytes,omitempty"`
	BrandMarkers    []string          `yaml:"brand_markers,omitempty"`

	Politeness `yaml:",inline"`

	// Per-host overrides within this provider. host_qps_caps and
	// host_concurrency_caps are shorthand for the corresponding
	// host_overrides fields, kept for registry compatibility.
	HostOverrides       map[string]Politeness `yaml:"host_overrides,omitempty"`
	HostQPSCaps         map[string]float64    `yaml:"host_qps_caps,omitempty"`
	HostConcurrencyCaps map[string]int        `yaml:"host_concurrency_caps,omitempty"`
}

// AppConfig is the top-level provider registry document.
type AppConfig struct {
	DefaultUserAgent string   `yaml:"default_user_agent,omitempty"`
	NumWorkers       int      `yaml:"num_workers,omitempty"`
	OutputDir        string   `yaml:"output_dir,omitempty"`
	SnapshotDir      string   `yaml:"snapshot_dir,omitempty"`
	RobotsAllowlist  []string `yaml:"robots_allowlist,omitempty"`
	RobotsTimeoutS   float64  `yaml:"robots_timeout_s,omitempty"`

	Defaults           Politeness           `yaml:"defaults,omitempty"`
	HTTPClientSettings HTTPClientConfig     `yaml:"http_client_settings,omitempty"`
	Providers          map[string]*Provider `yaml:"providers"`
}

// HTTPClientConfig holds settings for the shared HTTP client.
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`
}

// Base defaults, the bottom layer of the politeness overlay.
const (
	DefaultMinDelayS              = 2.0
	DefaultRateJitterS            = 0.5
	DefaultMaxAttempts            = 3
	DefaultBackoffBaseS           = 1.0
	DefaultBackoffMaxS            = 30.0
	DefaultBackoffJitterS         = 0.5
	DefaultMaxConsecutiveFailures = 5
	DefaultCooldownS              = 300.0
	DefaultMaxInflightPerHost     = 2
	DefaultTimeoutS               = 30.0
	DefaultRobotsTimeoutS         = 10.0
	DefaultUserAgent              = "careers-scraper/1.0 (+https://careers-scraper.invalid/about)"
)
