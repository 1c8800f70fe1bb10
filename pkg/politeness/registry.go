package politeness

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// hostState carries all mutable politeness state for one host. One mutex
// guards the rate-limit timestamp, the in-flight count, and the breaker
// counters together so admission decisions observe a consistent ordering.
// In-flight admission blocks on the weighted semaphore; the count under mu
// mirrors held permits for snapshots and logging.
type hostState struct {
	mu  sync.Mutex
	sem *semaphore.Weighted

	lastDispatch time.Time
	inflight     int

	consecutiveFailures int
	trippedUntil        time.Time
}

// Registry is the process-wide keyed store of hostState. Entries are created
// lazily on first use and live for the process lifetime. The registry mutex
// only guards the map; per-host work happens under each entry's own lock so
// unrelated hosts never serialize.
type Registry struct {
	mu    sync.Mutex
	hosts map[HostKey]*hostState
	log   *logrus.Entry
}

// NewRegistry creates an empty host-state registry.
func NewRegistry(log *logrus.Entry) *Registry {
	return &Registry{
		hosts: make(map[HostKey]*hostState),
		log:   log,
	}
}

// get returns the state for host, creating it with the given in-flight limit
// on first use. A non-positive limit falls back to 1.
func (r *Registry) get(host HostKey, maxInflight int) *hostState {
	if maxInflight <= 0 {
		maxInflight = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	hs, ok := r.hosts[host]
	if !ok {
		hs = &hostState{sem: semaphore.NewWeighted(int64(maxInflight))}
		r.hosts[host] = hs
		r.log.WithFields(logrus.Fields{"host": host, "max_inflight": maxInflight}).
			Debug("Created politeness state for host")
	}
	return hs
}

// Len returns the number of tracked hosts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hosts)
}

// Inflight reports the current in-flight count for host; zero if the host
// has no state yet.
func (r *Registry) Inflight(host HostKey) int {
	r.mu.Lock()
	hs, ok := r.hosts[host]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.inflight
}
