package ratelimit

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request to host may proceed right now
	Allow(host string) bool
	// Wait blocks until a request to host is allowed or ctx is done
	Wait(ctx context.Context, host string) error
}

// HostLimiter keeps one token bucket per host
type HostLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewHostLimiter creates a limiter allowing requestsPerSecond per host with
// the given burst. A non-positive rate disables throttling.
func NewHostLimiter(requestsPerSecond float64, burst int) *HostLimiter {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &HostLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow checks if a request to host can proceed without waiting
func (h *HostLimiter) Allow(host string) bool {
	return h.forHost(host).Allow()
}

// Wait blocks until the host's bucket has a token
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	return h.forHost(host).Wait(ctx)
}

// WaitURL is Wait keyed by the host of rawURL
func (h *HostLimiter) WaitURL(ctx context.Context, rawURL string) error {
	return h.Wait(ctx, HostOf(rawURL))
}

// Hosts returns the number of hosts seen so far
func (h *HostLimiter) Hosts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.limiters)
}

func (h *HostLimiter) forHost(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = l
	}
	return l
}

// HostOf returns the host name of rawURL, or rawURL itself when it does not parse
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}

// Unlimited never throttles
type Unlimited struct{}

func (Unlimited) Allow(string) bool { return true }
func (Unlimited) Wait(ctx context.Context, _ string) error { return ctx.Err() }
