package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// Reason is the canonical outcome code for a fetch attempt or invocation.
// The set is closed; downstream reporting keys off these strings.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonAuthError       Reason = "auth_error"
	ReasonUnavailable     Reason = "unavailable"
	ReasonRateLimited     Reason = "rate_limited"
	ReasonTimeout         Reason = "timeout"
	ReasonNetworkError    Reason = "network_error"
	ReasonParseError      Reason = "parse_error"
	ReasonBlocked         Reason = "blocked"
	ReasonCircuitBreaker  Reason = "circuit_breaker"
	ReasonRobotsDenied    Reason = "robots_denied"
	ReasonInvalidSnapshot Reason = "invalid_snapshot"
)

// statusReason maps the explicitly enumerated HTTP statuses to a Reason.
// These mappings take priority over every body-based rule, including
// blocked-page markers: a 429 carrying a challenge page is still
// rate_limited, and retryable.
func statusReason(status int) (Reason, bool) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuthError, true
	case status == http.StatusNotFound || status == http.StatusGone:
		return ReasonUnavailable, true
	case status == http.StatusTooManyRequests:
		return ReasonRateLimited, true
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ReasonTimeout, true
	case status >= 500:
		return ReasonNetworkError, true
	}
	return ReasonNone, false
}

// ClassifyStatus maps an HTTP status code to a Reason. Only call for
// non-2xx statuses; 2xx bodies are classified by the validator instead.
// Statuses outside the enumerated set fall back to network_error.
func ClassifyStatus(status int) Reason {
	if r, ok := statusReason(status); ok {
		return r
	}
	return ReasonNetworkError
}

// ClassifyError maps a transport-level error (no HTTP response obtained) to
// a Reason. Context deadline, net.Error timeouts, and "timed out" message
// text all classify as timeout; everything else is a network error.
func ClassifyError(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") {
		return ReasonTimeout
	}
	return ReasonNetworkError
}

// Retryable reports whether an attempt failing with the given reason may be
// retried through the backoff path. Policy failures (auth, gone, blocked,
// unparseable) and the engine's own fail-fast reasons never retry.
func Retryable(r Reason) bool {
	switch r {
	case ReasonNetworkError, ReasonTimeout, ReasonRateLimited:
		return true
	}
	return false
}
