package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"

	"careers-scraper/pkg/politeness"
)

// RobotsDecision is the full allow/deny verdict for one host, not just the
// boolean. The whole decision is cached so re-evaluation within a process
// reuses it unconditionally.
type RobotsDecision struct {
	ProviderID       string   `json:"provider_id"`
	Host             string   `json:"host"`
	RobotsURL        string   `json:"robots_url"`
	RobotsFetched    bool     `json:"robots_fetched"`
	RobotsStatus     *int     `json:"robots_status"`
	RobotsAllowed    bool     `json:"robots_allowed"`
	AllowlistAllowed bool     `json:"allowlist_allowed"`
	FinalAllowed     bool     `json:"final_allowed"`
	Reason           string   `json:"reason"`
	UserAgent        string   `json:"user_agent"`
	AllowlistEntries []string `json:"allowlist_entries"`
}

// Decision reasons.
const (
	RobotsReasonAllowed         = "allowed"
	RobotsReasonDisallowed      = "robots_disallow"
	RobotsReasonNotInAllowlist  = "not_in_allowlist"
	RobotsReasonUnreachableOpen = "robots_unreachable_fail_open"
)

// RobotsEvaluator fetches, parses, and caches robots.txt policy per host,
// combined with the operator-maintained domain allowlist.
//
// Decisions are cached for the process lifetime with no TTL: a long-running
// process never re-checks robots.txt after the first fetch. The pipeline
// runs one process per scrape, so the cache dies with the run.
type RobotsEvaluator struct {
	client    *http.Client
	allowlist []string
	userAgent string
	timeout   time.Duration

	cache   map[politeness.HostKey]*RobotsDecision
	cacheMu sync.Mutex

	log *logrus.Entry
}

// NewRobotsEvaluator creates an evaluator. allowlist entries are lowercase
// domains; an empty allowlist disables allowlist checking entirely.
func NewRobotsEvaluator(client *http.Client, allowlist []string, userAgent string, timeout time.Duration, log *logrus.Entry) *RobotsEvaluator {
	return &RobotsEvaluator{
		client:    client,
		allowlist: allowlist,
		userAgent: userAgent,
		timeout:   timeout,
		cache:     make(map[politeness.HostKey]*RobotsDecision),
		log:       log,
	}
}

// Evaluate returns the allow/deny decision for targetURL. The first call
// for a host performs one bounded-timeout robots.txt fetch (never retried
// through the backoff path); later calls for the same host return the
// cached decision unchanged.
func (e *RobotsEvaluator) Evaluate(ctx context.Context, targetURL, providerID string) *RobotsDecision {
	host, err := politeness.NormalizeHost(targetURL)
	if err != nil {
		return &RobotsDecision{
			ProviderID:       providerID,
			Reason:           "invalid_url",
			UserAgent:        e.userAgent,
			AllowlistEntries: e.allowlist,
		}
	}

	e.cacheMu.Lock()
	if cached, ok := e.cache[host]; ok {
		e.cacheMu.Unlock()
		return cached
	}
	e.cacheMu.Unlock()

	dec := e.evaluateUncached(ctx, targetURL, host, providerID)

	e.cacheMu.Lock()
	// First writer wins; a concurrent evaluation of the same host returns
	// whatever was cached first so decisions stay byte-identical.
	if existing, ok := e.cache[host]; ok {
		dec = existing
	} else {
		e.cache[host] = dec
	}
	e.cacheMu.Unlock()

	return dec
}

func (e *RobotsEvaluator) evaluateUncached(ctx context.Context, targetURL string, host politeness.HostKey, providerID string) *RobotsDecision {
	u, _ := url.Parse(targetURL)
	scheme := u.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := (&url.URL{Scheme: scheme, Host: u.Host, Path: "/robots.txt"}).String()

	dec := &RobotsDecision{
		ProviderID:       providerID,
		Host:             string(host),
		RobotsURL:        robotsURL,
		UserAgent:        e.userAgent,
		AllowlistEntries: e.allowlist,
		AllowlistAllowed: e.allowlisted(host),
	}

	hostLog := e.log.WithFields(logrus.Fields{"host": host, "robots_url": robotsURL})
	hostLog.Info("Fetching robots.txt...")

	data, status, err := e.fetchRobots(ctx, robotsURL)
	if err != nil {
		// Fail open on an unreachable robots.txt, but only for allowlisted
		// domains: an unknown host with no reachable policy stays denied.
		hostLog.Warnf("Fetching robots.txt failed: %v", err)
		dec.RobotsFetched = false
		dec.RobotsAllowed = true
		dec.FinalAllowed = dec.AllowlistAllowed
		if dec.FinalAllowed {
			dec.Reason = RobotsReasonUnreachableOpen
		} else {
			dec.Reason = RobotsReasonNotInAllowlist
		}
		return dec
	}

	dec.RobotsFetched = true
	dec.RobotsStatus = &status
	dec.RobotsAllowed = data.TestAgent(u.RequestURI(), e.userAgent)
	dec.FinalAllowed = dec.RobotsAllowed && dec.AllowlistAllowed

	switch {
	case !dec.RobotsAllowed:
		dec.Reason = RobotsReasonDisallowed
	case !dec.AllowlistAllowed:
		dec.Reason = RobotsReasonNotInAllowlist
	default:
		dec.Reason = RobotsReasonAllowed
	}

	hostLog.WithFields(logrus.Fields{
		"robots_allowed":    dec.RobotsAllowed,
		"allowlist_allowed": dec.AllowlistAllowed,
		"final_allowed":     dec.FinalAllowed,
		"reason":            dec.Reason,
	}).Info("Robots decision")
	return dec
}

// fetchRobots performs the single bounded-timeout robots.txt fetch.
func (e *RobotsEvaluator) fetchRobots(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}

	// FromStatusAndBytes applies the standard status-code semantics: 4xx
	// means unrestricted, 5xx means full disallow.
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// allowlisted reports whether host matches an allowlist entry exactly or as
// a subdomain. An empty allowlist allows everything.
func (e *RobotsEvaluator) allowlisted(host politeness.HostKey) bool {
	if len(e.allowlist) == 0 {
		return true
	}
	h := string(host)
	for _, domain := range e.allowlist {
		if h == domain || strings.HasSuffix(h, "."+domain) {
			return true
		}
	}
	return false
}
