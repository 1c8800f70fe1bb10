package politeness

import (
	"fmt"
	"net/url"
	"strings"
)

// HostKey is the normalized hostname all politeness state is keyed by.
// Rate-limit buckets, in-flight counters, and circuit-breaker state for one
// HostKey never interfere with another's.
type HostKey string

// NormalizeHost derives the HostKey for a raw URL: lowercased hostname with
// scheme and port stripped.
func NormalizeHost(rawURL string) (HostKey, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("normalize host: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("normalize host: no hostname in %q", rawURL)
	}
	return HostKey(host), nil
}
