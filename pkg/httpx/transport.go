// Package httpx provides http.Client plumbing shared by the passkey SDK and
// the agent: outbound request logging and client-side rate limiting.
package httpx

import (
	"fmt"
	"net/http"
	"time"

	"github.com/medhcloud/passkey/pkg/slogx"
	"golang.org/x/time/rate"
)

// LoggingTransport is an http.RoundTripper that logs every outbound request
// through the contextual logger. Bodies and Authorization headers are never
// logged; technical detail belongs in logs, not in user-facing messages.
type LoggingTransport struct {
	// Base is the underlying transport. Defaults to http.DefaultTransport.
	Base http.RoundTripper
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	logger := slogx.FromContext(req.Context()).With(
		"method", req.Method,
		"url", req.URL.Redacted(),
	)

	start := time.Now()
	resp, err := base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		logger.Debug("http_request_failed", "duration_ms", duration, "error", err)
		return nil, err
	}

	logger.Debug("http_request",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}

// RateLimitedTransport throttles outbound requests. Auth backends rate limit
// their challenge endpoints hard, so the client paces itself instead of
// tripping the server-side limiter and surfacing avoidable errors.
type RateLimitedTransport struct {
	// Base is the underlying transport. Defaults to http.DefaultTransport.
	Base http.RoundTripper

	// Limiter gates every request. Required.
	Limiter *rate.Limiter
}

// NewRateLimitedTransport wraps base with a limiter allowing requestsPerWindow
// requests per window, with the full window available as a burst. This mirrors
// the strict profile auth endpoints are usually deployed with.
func NewRateLimitedTransport(base http.RoundTripper, requestsPerWindow int, window time.Duration) *RateLimitedTransport {
	limit := rate.Limit(float64(requestsPerWindow) / window.Seconds())
	return &RateLimitedTransport{
		Base:    base,
		Limiter: rate.NewLimiter(limit, requestsPerWindow),
	}
}

func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if t.Limiter != nil {
		// Wait respects the request context, so a cancelled ceremony never
		// blocks here waiting for a token.
		if err := t.Limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("httpx: rate limiter wait: %w", err)
		}
	}

	return base.RoundTrip(req)
}
