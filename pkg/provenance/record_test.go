package provenance

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetUnavailable(t *testing.T) {
	rec := &Record{
		RunID:        "run-1",
		ProviderID:   "acme-jobs",
		ScrapeMode:   ModeLive,
		Availability: Available,
	}

	rec.SetUnavailable("network_error")
	assert.Equal(t, Unavailable, rec.Availability)
	require.NotNil(t, rec.UnavailableReason)
	assert.Equal(t, "network_error", *rec.UnavailableReason)
}

func TestRecordJSONShape(t *testing.T) {
	rec := &Record{
		RunID:        "run-1",
		ProviderID:   "acme-jobs",
		ScrapeMode:   ModeSnapshot,
		Availability: Degraded,
		AttemptsMade: 3,
		LiveResult:   "network_error",
		SnapshotUsed: true,
		PolicySnapshot: PolicySnapshot{
			ProviderID:  "acme-jobs",
			MaxAttempts: 3,
		},
		RobotsFinalAllowed: true,
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))

	assert.Equal(t, "run-1", m["run_id"])
	assert.Equal(t, "snapshot", m["scrape_mode"])
	assert.Equal(t, "degraded", m["availability"])
	assert.Nil(t, m["unavailable_reason"], "reason must serialize as explicit null when absent")
	assert.Equal(t, true, m["snapshot_used"])
	assert.Equal(t, true, m["robots_final_allowed"])
	assert.Contains(t, m, "policy_snapshot")
	assert.Contains(t, m, "parsed_job_count")
}

func TestRecordMarshalIsDeterministic(t *testing.T) {
	rec := &Record{RunID: "run-1", ProviderID: "acme-jobs", ScrapeMode: ModeLive, Availability: Available}

	first, err := json.Marshal(rec)
	require.NoError(t, err)
	second, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLogAttemptFields(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	status := 500

	LogAttempt(logrus.NewEntry(logger), "acme-jobs", FetchAttempt{
		AttemptIndex: 2,
		StatusCode:   &status,
		ReasonCode:   "network_error",
		ElapsedS:     0.42,
	})

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, "FETCH_ATTEMPT", entry.Message)
	assert.Equal(t, "acme-jobs", entry.Data["provider"])
	assert.Equal(t, 2, entry.Data["attempt_index"])
	assert.Equal(t, 500, entry.Data["status_code"])
	assert.Equal(t, "network_error", entry.Data["reason_code"])
}

func TestLogAttemptOmitsStatusWhenNoResponse(t *testing.T) {
	logger, hook := logtest.NewNullLogger()

	LogAttempt(logrus.NewEntry(logger), "acme-jobs", FetchAttempt{
		AttemptIndex: 1,
		ReasonCode:   "timeout",
	})

	require.Len(t, hook.Entries, 1)
	_, ok := hook.LastEntry().Data["status_code"]
	assert.False(t, ok, "no status field for attempts that never got a response")
}

func TestLogPolicySummaryCarriesFullSnapshot(t *testing.T) {
	logger, hook := logtest.NewNullLogger()

	LogPolicySummary(logrus.NewEntry(logger), PolicySnapshot{
		ProviderID:  "acme-jobs",
		UserAgent:   "careers-scraper/1.0",
		MinDelayS:   2.0,
		MaxAttempts: 3,
		ChaosActive: true,
	})

	require.Len(t, hook.Entries, 1)
	msg := hook.LastEntry().Message
	require.True(t, strings.HasPrefix(msg, "POLICY_SUMMARY "), "message: %s", msg)

	var snap PolicySnapshot
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(msg, "POLICY_SUMMARY ")), &snap))
	assert.Equal(t, "acme-jobs", snap.ProviderID)
	assert.Equal(t, 2.0, snap.MinDelayS)
	assert.True(t, snap.ChaosActive)
}
