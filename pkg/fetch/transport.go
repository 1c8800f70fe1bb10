package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Request is one attempt's worth of transport input.
type Request struct {
	ProviderID string
	URL        string
	Headers    map[string]string
	UserAgent  string
	Timeout    time.Duration // per-attempt timeout; there is no cross-attempt cancellation
}

// Response is the transport-level outcome when an HTTP exchange completed.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport performs a single HTTP round trip. The orchestrator never talks
// to net/http directly, so tests and chaos mode substitute scripted
// transports without touching global state.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// maxBodyBytes caps how much of a response is read. Career pages and job
// APIs are far below this; anything larger is not content we want.
const maxBodyBytes = 20 << 20

// HTTPTransport is the production Transport over a shared *http.Client.
type HTTPTransport struct {
	client *http.Client
	log    *logrus.Entry
}

// NewHTTPTransport wraps the shared client.
func NewHTTPTransport(client *http.Client, log *logrus.Entry) *HTTPTransport {
	return &HTTPTransport{client: client, log: log}
}

func (t *HTTPTransport) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// ChaosTransport synthesizes a configured failure reason for named
// providers without making a network call, and delegates everything else to
// the wrapped transport. It exists so backoff and breaker behavior can be
// exercised deterministically in a real deployment; the orchestrator emits
// the same attempt logs and provenance shape as for a real failure.
type ChaosTransport struct {
	inner    Transport
	failures map[string]Reason // provider id -> forced reason
	log      *logrus.Entry
}

// NewChaosTransport wraps inner, forcing the given reason per provider.
func NewChaosTransport(inner Transport, failures map[string]Reason, log *logrus.Entry) *ChaosTransport {
	return &ChaosTransport{inner: inner, failures: failures, log: log}
}

// ChaosFor reports the forced reason for a provider, if any.
func (t *ChaosTransport) ChaosFor(providerID string) (Reason, bool) {
	r, ok := t.failures[providerID]
	return r, ok
}

func (t *ChaosTransport) Do(ctx context.Context, req Request) (*Response, error) {
	reason, ok := t.failures[req.ProviderID]
	if !ok {
		return t.inner.Do(ctx, req)
	}
	t.log.WithFields(logrus.Fields{"provider": req.ProviderID, "reason": reason}).
		Warn("Chaos mode synthesizing failure")

	switch reason {
	case ReasonAuthError:
		return &Response{StatusCode: http.StatusForbidden}, nil
	case ReasonUnavailable:
		return &Response{StatusCode: http.StatusNotFound}, nil
	case ReasonRateLimited:
		return &Response{StatusCode: http.StatusTooManyRequests}, nil
	case ReasonTimeout:
		return nil, context.DeadlineExceeded
	case ReasonBlocked:
		return &Response{
			StatusCode: http.StatusOK,
			Body:       []byte("<html><head><title>Just a moment...</title></head><body>cf-browser-verification</body></html>"),
		}, nil
	case ReasonParseError:
		return &Response{StatusCode: http.StatusOK, Body: []byte("chaos: not a document")}, nil
	default:
		return &Response{StatusCode: http.StatusInternalServerError}, nil
	}
}

// chaosAware lets the orchestrator mark the policy snapshot when the
// transport will synthesize failures for a provider.
type chaosAware interface {
	ChaosFor(providerID string) (Reason, bool)
}
