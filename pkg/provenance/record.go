// Package provenance defines the deterministic audit records the fetch
// engine emits: the policy snapshot active for a scrape, the per-attempt
// log shape, and the per-provider provenance record downstream reporting
// consumes. Records are written once and never mutated.
package provenance

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// ScrapeMode says where the provider's content came from for this run.
type ScrapeMode string

const (
	ModeLive     ScrapeMode = "live"
	ModeSnapshot ScrapeMode = "snapshot"
)

// Availability is the provider-level verdict for a run.
type Availability string

const (
	Available   Availability = "available"   // live fetch succeeded
	Degraded    Availability = "degraded"    // live failed, snapshot served
	Unavailable Availability = "unavailable" // nothing usable this run
)

// PolicySnapshot is the fully deterministic summary of the politeness
// policy a scrape ran under. Created once per invocation, embedded in the
// Record, and logged as the POLICY_SUMMARY line.
type PolicySnapshot struct {
	ProviderID             string   `json:"provider_id"`
	ExtractionMode         string   `json:"extraction_mode"`
	UserAgent              string   `json:"user_agent"`
	MinDelayS              float64  `json:"min_delay_s"`
	RateJitterS            float64  `json:"rate_jitter_s"`
	MaxAttempts            int      `json:"max_attempts"`
	BackoffBaseS           float64  `json:"backoff_base_s"`
	BackoffMaxS            float64  `json:"backoff_max_s"`
	BackoffJitterS         float64  `json:"backoff_jitter_s"`
	MaxConsecutiveFailures int      `json:"max_consecutive_failures"`
	CooldownS              float64  `json:"cooldown_s"`
	MaxInflightPerHost     int      `json:"max_inflight_per_host"`
	TimeoutS               float64  `json:"timeout_s"`
	AllowlistEntries       []string `json:"allowlist_entries"`
	ChaosActive            bool     `json:"chaos_active"`
}

// FetchAttempt is one HTTP round trip. Emitted as a log line per attempt
// and folded into the record's attempt count; never persisted on its own.
type FetchAttempt struct {
	AttemptIndex int     `json:"attempt_index"`
	StatusCode   *int    `json:"status_code"`
	ReasonCode   string  `json:"reason_code"`
	ElapsedS     float64 `json:"elapsed_s"`
}

// Record is the per-provider, per-run provenance record. Exactly one is
// produced per scrape invocation regardless of outcome.
type Record struct {
	RunID              string         `json:"run_id"`
	ProviderID         string         `json:"provider_id"`
	ScrapeMode         ScrapeMode     `json:"scrape_mode"`
	Availability       Availability   `json:"availability"`
	UnavailableReason  *string        `json:"unavailable_reason"`
	AttemptsMade       int            `json:"attempts_made"`
	LiveResult         string         `json:"live_result"`
	SnapshotUsed       bool           `json:"snapshot_used"`
	ParsedJobCount     int            `json:"parsed_job_count"`
	PolicySnapshot     PolicySnapshot `json:"policy_snapshot"`
	RobotsFinalAllowed bool           `json:"robots_final_allowed"`
}

// SetUnavailable marks the record unavailable with a stable reason.
func (r *Record) SetUnavailable(reason string) {
	r.Availability = Unavailable
	r.UnavailableReason = &reason
}

// LogAttempt emits the per-attempt log line in the shape operators grep for.
func LogAttempt(log *logrus.Entry, providerID string, a FetchAttempt) {
	fields := logrus.Fields{
		"provider":      providerID,
		"attempt_index": a.AttemptIndex,
		"reason_code":   a.ReasonCode,
		"elapsed_s":     a.ElapsedS,
	}
	if a.StatusCode != nil {
		fields["status_code"] = *a.StatusCode
	}
	log.WithFields(fields).Info("FETCH_ATTEMPT")
}

// LogPolicySummary emits the one human-readable POLICY_SUMMARY line per
// provider per invocation, carrying the full snapshot as JSON.
func LogPolicySummary(log *logrus.Entry, snap PolicySnapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.WithField("provider", snap.ProviderID).Errorf("POLICY_SUMMARY marshal failed: %v", err)
		return
	}
	log.WithField("provider", snap.ProviderID).Infof("POLICY_SUMMARY %s", payload)
}
