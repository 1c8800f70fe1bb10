package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"careers-scraper/pkg/config"
	"careers-scraper/pkg/fetch"
	"careers-scraper/pkg/pipeline"
	"careers-scraper/pkg/politeness"
	"careers-scraper/pkg/provenance"
	"careers-scraper/pkg/snapshot"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	configFlag := flag.String("config", "providers.yaml", "Path to provider registry YAML")
	providersFlag := flag.String("providers", "", "Comma-separated provider ids (default: all)")
	outFlag := flag.String("out", "", "Override provenance output directory")
	snapshotsFlag := flag.String("snapshots", "", "Override snapshot directory")
	logLevelFlag := flag.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	pprofAddr := flag.String("pprof", "", "Address for pprof HTTP server (empty to disable)")
	chaosFlag := flag.String("chaos", "", "Force failures: provider=reason[,provider=reason] (testing only)")
	robotsOverrideFlag := flag.Bool("robots-override", false, "Force fetches past robots denial (testing only)")
	flag.Parse()

	if level, err := logrus.ParseLevel(*logLevelFlag); err != nil {
		log.Warnf("Invalid log level '%s', using 'info'. Error: %v", *logLevelFlag, err)
	} else {
		log.SetLevel(level)
	}

	log.Infof("Loading provider registry from %s", *configFlag)
	cfg, warnings, err := config.Load(*configFlag)
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if *outFlag != "" {
		cfg.OutputDir = *outFlag
	}
	if *snapshotsFlag != "" {
		cfg.SnapshotDir = *snapshotsFlag
	}

	chaos, err := parseChaos(*chaosFlag)
	if err != nil {
		log.Fatalf("Invalid -chaos value: %v", err)
	}

	if *pprofAddr != "" {
		go func() {
			log.Infof("Starting pprof HTTP server on: http://%s/debug/pprof/", *pprofAddr)
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				log.Errorf("Pprof server failed: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Warnf("Received signal %v, cancelling run...", sig)
		cancel()
	}()

	entry := logrus.NewEntry(log)
	clock := politeness.WallClock{}
	jitter := politeness.RandJitter{}

	registry := politeness.NewRegistry(entry.WithField("component", "politeness"))
	limiter := politeness.NewLimiter(registry, clock, jitter, entry.WithField("component", "ratelimit"))
	breaker := politeness.NewBreaker(registry, clock, entry.WithField("component", "breaker"))
	backoff := politeness.NewBackoff(jitter)

	client := fetch.NewClient(cfg.HTTPClient, entry.WithField("component", "http"))
	robots := fetch.NewRobotsEvaluator(client, cfg.RobotsAllowlist, cfg.UserAgent,
		cfg.RobotsTimeout, entry.WithField("component", "robots"))

	var transport fetch.Transport = fetch.NewHTTPTransport(client, entry.WithField("component", "transport"))
	if len(chaos) > 0 {
		log.Warnf("Chaos mode active for %d provider(s)", len(chaos))
		transport = fetch.NewChaosTransport(transport, chaos, entry.WithField("component", "chaos"))
	}

	fetcher := fetch.NewFetcher(transport, robots, limiter, breaker, backoff, clock,
		cfg.UserAgent, cfg.RobotsAllowlist,
		fetch.Options{RobotsOverride: *robotsOverrideFlag},
		entry.WithField("component", "fetch"))

	store, err := snapshot.Open(cfg.SnapshotDir, entry.WithField("component", "snapshot"))
	if err != nil {
		log.Fatalf("Snapshot store error: %v", err)
	}

	var providerIDs []string
	if *providersFlag != "" {
		for _, id := range strings.Split(*providersFlag, ",") {
			if id = strings.TrimSpace(id); id != "" {
				providerIDs = append(providerIDs, id)
			}
		}
	}

	p := pipeline.New(cfg, fetcher, store, entry.WithField("component", "pipeline"))
	results, err := p.Run(ctx, providerIDs)
	if err != nil {
		store.Close()
		log.Fatalf("Run failed: %v", err)
	}

	// Close badger cleanly before exiting; os.Exit skips deferred calls.
	exitCode := 0
	for _, r := range results {
		if r.Availability == provenance.Unavailable {
			exitCode = 1
		}
	}
	if err := store.Close(); err != nil {
		log.Errorf("Snapshot store close failed: %v", err)
	}
	os.Exit(exitCode)
}

// parseChaos parses "provider=reason,provider=reason" into the chaos map.
func parseChaos(raw string) (map[string]fetch.Reason, error) {
	if raw == "" {
		return nil, nil
	}
	out := make(map[string]fetch.Reason)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("malformed pair %q", pair)
		}
		out[parts[0]] = fetch.Reason(parts[1])
	}
	return out, nil
}
