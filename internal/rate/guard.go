package rate

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitError is returned when calls are blocked.
type RateLimitError struct {
	Provider string
	Reason   string
	RetryAt  time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s rate limited: %s (retry at %s)", e.Provider, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

type Decision struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}

type bucket struct {
	capacity int
	tokens   float64
	last     time.Time
}

// Guard enforces rate limits for a provider. Locally declared limits feed a
// token bucket; once the provider reports its own remaining-budget headers
// those take precedence.
type Guard struct {
	decl Declaration

	mu         sync.Mutex
	remaining  map[Window]int
	hasHeaders map[Window]bool
	buckets    map[Window]*bucket
	cooldown   time.Time
}

// WrapHTTP wraps an http.Client with rate-limit enforcement.
func WrapHTTP(decl Declaration, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &roundTripper{
		base:  transport,
		guard: NewGuard(decl),
	}
	return &client
}

func NewGuard(decl Declaration) *Guard {
	g := &Guard{
		decl:       decl,
		remaining:  make(map[Window]int),
		hasHeaders: make(map[Window]bool),
		buckets:    make(map[Window]*bucket),
	}
	for window, limit := range decl.Limits() {
		g.remaining[window] = limit
		g.buckets[window] = &bucket{
			capacity: limit,
			tokens:   float64(limit),
			last:     time.Now(),
		}
	}
	return g
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	decision := rt.guard.ShouldCall(time.Now())
	if !decision.Allowed {
		return nil, RateLimitError{
			Provider: rt.guard.decl.ProviderName(),
			Reason:   decision.Reason,
			RetryAt:  decision.RetryAt,
		}
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	rt.guard.RecordResponse(resp.StatusCode, resp.Header)
	return resp, nil
}

func (g *Guard) ShouldCall(now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.decl.HasLimits() {
		return Decision{Allowed: false, Reason: "disabled"}
	}

	if !g.cooldown.IsZero() && now.Before(g.cooldown) {
		return Decision{Allowed: false, Reason: "cooldown", RetryAt: g.cooldown}
	}

	for window, limit := range g.decl.Limits() {
		if g.hasHeaders[window] {
			if g.remaining[window] <= 0 {
				return Decision{Allowed: false, Reason: "budget", RetryAt: g.cooldown}
			}
			g.remaining[window]--
			continue
		}
		if limit <= 0 {
			return Decision{Allowed: false, Reason: "disabled"}
		}
		if !consumeToken(g.buckets[window], windowDuration(window)) {
			retryAt := g.buckets[window].last.Add(windowDuration(window) / time.Duration(limit))
			return Decision{Allowed: false, Reason: "budget", RetryAt: retryAt}
		}
	}

	return Decision{Allowed: true}
}

func (g *Guard) RecordResponse(status int, headers http.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()

	provider := g.decl.ProviderName()
	lastStatusGauge.WithLabelValues(provider).Set(float64(status))

	h := g.decl.Headers()
	if retryAfter := headerInt(headers, h.RetryAfter); retryAfter > 0 {
		g.cooldown = time.Now().Add(time.Duration(retryAfter) * time.Second)
		retryAfterGauge.WithLabelValues(provider).Set(float64(retryAfter))
	} else if status == http.StatusTooManyRequests {
		// Throttled without a hint; back off for a minute.
		g.cooldown = time.Now().Add(time.Minute)
	}

	g.recordWindow(Minute, headers, h.RemainingMinute)
	g.recordWindow(Day, headers, h.RemainingDay)
}

func (g *Guard) recordWindow(window Window, headers http.Header, remainingHeader string) {
	remaining := headerInt(headers, remainingHeader)
	if remaining < 0 {
		return
	}
	g.remaining[window] = remaining
	g.hasHeaders[window] = true
	remainingGauge.WithLabelValues(g.decl.ProviderName(), window.String()).Set(float64(remaining))
}

func headerInt(headers http.Header, name string) int {
	if name == "" {
		return -1
	}
	raw := headers.Get(name)
	if raw == "" {
		return -1
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return value
}

func windowDuration(window Window) time.Duration {
	switch window {
	case Day:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

func consumeToken(b *bucket, window time.Duration) bool {
	now := time.Now()
	if b.last.IsZero() {
		b.last = now
	}
	elapsed := now.Sub(b.last).Seconds()
	refillRate := float64(b.capacity) / window.Seconds()
	b.tokens = min(float64(b.capacity), b.tokens+elapsed*refillRate)
	b.last = now
	if b.tokens >= 1 {
		b.tokens -= 1
		return true
	}
	return false
}
