// Package pipeline runs the scrape for a set of providers: live fetch
// through the politeness engine, snapshot fallback on terminal failure, and
// provenance persistence. One record per provider per run, no exceptions.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"careers-scraper/pkg/config"
	"careers-scraper/pkg/fetch"
	"careers-scraper/pkg/provenance"
	"careers-scraper/pkg/snapshot"
	"careers-scraper/pkg/validate"
)

// ProviderResult summarizes one provider's run for the CLI summary.
type ProviderResult struct {
	ProviderID   string
	Availability provenance.Availability
	AttemptsMade int
	SnapshotUsed bool
	Err          error
	Duration     time.Duration
}

// Summary is the run-level rollup persisted beside the per-provider records.
type Summary struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Providers   int       `json:"providers"`
	Available   int       `json:"available"`
	Degraded    int       `json:"degraded"`
	Unavailable int       `json:"unavailable"`
}

// Pipeline coordinates parallel provider scrapes with shared politeness
// state. Workers fan out one goroutine per provider, bounded by a weighted
// semaphore, so slow hosts never starve the rest of the run.
type Pipeline struct {
	cfg     *config.Resolved
	fetcher *fetch.Fetcher
	store   *snapshot.Store
	runID   string
	log     *logrus.Entry
}

// New creates a Pipeline for one scrape run. store may be nil to disable
// snapshot fallback.
func New(cfg *config.Resolved, fetcher *fetch.Fetcher, store *snapshot.Store, log *logrus.Entry) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		runID:   uuid.NewString(),
		log:     log,
	}
}

// RunID returns this run's identifier (embedded in every record).
func (p *Pipeline) RunID() string { return p.runID }

// Run scrapes the named providers (all configured providers when empty) and
// persists one provenance record each plus a run summary. The returned
// error covers persistence problems only; provider-level failures are in
// the results.
func (p *Pipeline) Run(ctx context.Context, providerIDs []string) ([]ProviderResult, error) {
	if len(providerIDs) == 0 {
		for id := range p.cfg.Providers {
			providerIDs = append(providerIDs, id)
		}
	}
	sort.Strings(providerIDs)

	for _, id := range providerIDs {
		if _, ok := p.cfg.Providers[id]; !ok {
			return nil, fmt.Errorf("provider %q not found in registry", id)
		}
	}

	if err := os.MkdirAll(p.outDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	started := time.Now()
	p.log.WithFields(logrus.Fields{"run_id": p.runID, "providers": len(providerIDs)}).
		Info("Starting scrape run")

	sem := semaphore.NewWeighted(int64(p.cfg.NumWorkers))
	var wg sync.WaitGroup
	results := make([]ProviderResult, len(providerIDs))

	for i, id := range providerIDs {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Cancelled mid-fan-out: remaining providers report unavailable.
			for j := i; j < len(providerIDs); j++ {
				results[j] = ProviderResult{
					ProviderID:   providerIDs[j],
					Availability: provenance.Unavailable,
					Err:          err,
				}
			}
			break
		}
		wg.Add(1)
		go func(idx int, providerID string) {
			defer wg.Done()
			defer sem.Release(1)
			results[idx] = p.scrapeProvider(ctx, providerID)
		}(i, id)
	}
	wg.Wait()

	summary := Summary{
		RunID:      p.runID,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Providers:  len(results),
	}
	for _, r := range results {
		switch r.Availability {
		case provenance.Available:
			summary.Available++
		case provenance.Degraded:
			summary.Degraded++
		default:
			summary.Unavailable++
		}
	}
	if err := p.writeJSON("summary.json", &summary); err != nil {
		return results, err
	}

	p.logSummary(results, time.Since(started))
	return results, nil
}

// scrapeProvider runs one provider end to end and persists its record.
func (p *Pipeline) scrapeProvider(ctx context.Context, providerID string) ProviderResult {
	start := time.Now()
	rp := p.cfg.Providers[providerID]
	provLog := p.log.WithField("provider", providerID)

	res, fetchErr := p.fetcher.FetchWithRetry(ctx, rp, p.runID)
	if res == nil {
		// Unfetchable configuration (bad URL); synthesize a record so the
		// provider still shows up downstream.
		rec := &provenance.Record{RunID: p.runID, ProviderID: providerID, ScrapeMode: provenance.ModeLive}
		rec.SetUnavailable(string(fetch.ReasonUnavailable))
		if err := p.writeJSON(providerID+".json", rec); err != nil {
			provLog.Errorf("Failed to persist provenance record: %v", err)
		}
		return ProviderResult{ProviderID: providerID, Availability: provenance.Unavailable, Err: fetchErr, Duration: time.Since(start)}
	}

	rec := res.Record

	if res.Outcome.Success {
		if p.store != nil {
			if err := p.store.Put(providerID, res.Content, time.Now()); err != nil {
				provLog.Warnf("Failed to store snapshot: %v", err)
			}
		}
	} else if p.store != nil {
		p.fallbackToSnapshot(providerID, rp, rec, provLog)
	}

	if err := p.writeJSON(providerID+".json", rec); err != nil {
		provLog.Errorf("Failed to persist provenance record: %v", err)
	}

	return ProviderResult{
		ProviderID:   providerID,
		Availability: rec.Availability,
		AttemptsMade: rec.AttemptsMade,
		SnapshotUsed: rec.SnapshotUsed,
		Err:          fetchErr,
		Duration:     time.Since(start),
	}
}

// fallbackToSnapshot tries the stored snapshot after a terminal live
// failure. The snapshot passes the same validator as a live body; a
// corrupted cached snapshot is reported as invalid_snapshot, not served.
func (p *Pipeline) fallbackToSnapshot(providerID string, rp *config.ResolvedProvider, rec *provenance.Record, provLog *logrus.Entry) {
	content, meta, err := p.store.Get(providerID)
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			provLog.Warnf("Snapshot load failed: %v", err)
		}
		return
	}

	v := validate.Content(providerID, content, validate.Rules{
		Mode:         rp.ExtractionMode,
		MinBytes:     rp.MinContentBytes,
		BrandMarkers: rp.BrandMarkers,
	})
	if !v.OK {
		provLog.WithField("reason", v.Reason).Warn("Stored snapshot failed validation")
		rec.SetUnavailable(string(fetch.ReasonInvalidSnapshot))
		return
	}

	fields := logrus.Fields{"size_bytes": len(content)}
	if meta != nil {
		fields["fetched_at"] = meta.FetchedAt
	}
	provLog.WithFields(fields).Info("Serving stored snapshot after live failure")

	rec.ScrapeMode = provenance.ModeSnapshot
	rec.SnapshotUsed = true
	rec.Availability = provenance.Degraded
	rec.UnavailableReason = nil
}

func (p *Pipeline) outDir() string {
	return filepath.Join(p.cfg.OutputDir, p.runID)
}

func (p *Pipeline) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(p.outDir(), name)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// logSummary logs the per-provider rollup at the end of a run.
func (p *Pipeline) logSummary(results []ProviderResult, total time.Duration) {
	p.log.Info("============================================")
	p.log.Infof("Scrape run %s completed in %v", p.runID, total)
	for _, r := range results {
		line := fmt.Sprintf("  %s: %s - %d attempts in %v", r.ProviderID, r.Availability, r.AttemptsMade, r.Duration)
		if r.SnapshotUsed {
			line += " (snapshot)"
		}
		p.log.Info(line)
		if r.Err != nil {
			p.log.Infof("    Error: %v", r.Err)
		}
	}
	p.log.Info("============================================")
}
