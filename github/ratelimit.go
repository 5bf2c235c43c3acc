package github

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// GitHub rate-limit resources tracked separately.
const (
	ResourceCore   = "core"
	ResourceSearch = "search"
)

// RateLimit represents GitHub's rate limit information
type RateLimit struct {
	Resource  string
	Limit     int
	Remaining int
	Reset     time.Time
}

// parseRateLimit parses rate limit information from response headers.
// ok is false when the response carries no quota headers.
func parseRateLimit(h http.Header, fallbackResource string) (RateLimit, bool) {
	remainingRaw := h.Get("X-RateLimit-Remaining")
	if remainingRaw == "" {
		return RateLimit{}, false
	}
	remaining, err := strconv.Atoi(remainingRaw)
	if err != nil {
		return RateLimit{}, false
	}
	limit, _ := strconv.Atoi(h.Get("X-RateLimit-Limit"))
	reset, _ := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)

	resource := h.Get("X-RateLimit-Resource")
	if resource == "" {
		resource = fallbackResource
	}

	rl := RateLimit{
		Resource:  resource,
		Limit:     limit,
		Remaining: remaining,
	}
	if reset > 0 {
		rl.Reset = time.Unix(reset, 0).UTC()
	}
	return rl, true
}

// resourceFor guesses the quota bucket an endpoint draws from.
func resourceFor(endpoint string) string {
	if strings.HasPrefix(endpoint, "/search/") {
		return ResourceSearch
	}
	return ResourceCore
}

// RateLimitTracker holds the last observed quota per resource. It is shared
// by every request in the process and is safe for concurrent use.
type RateLimitTracker struct {
	mu     sync.Mutex
	limits map[string]RateLimit
	now    func() time.Time
}

// NewRateLimitTracker creates an empty tracker.
func NewRateLimitTracker() *RateLimitTracker {
	return &RateLimitTracker{
		limits: make(map[string]RateLimit),
		now:    time.Now,
	}
}

// Update records the quota reported by a response.
func (t *RateLimitTracker) Update(rl RateLimit) {
	if rl.Resource == "" {
		rl.Resource = ResourceCore
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits[rl.Resource] = rl
}

// Get returns the last known quota for resource.
func (t *RateLimitTracker) Get(resource string) (RateLimit, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rl, ok := t.limits[resource]
	return rl, ok
}

// Delay is how long a caller should hold off before hitting resource.
// It is zero unless the quota is known to be exhausted and the reset lies
// in the future.
func (t *RateLimitTracker) Delay(resource string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	rl, ok := t.limits[resource]
	if !ok || rl.Remaining > 0 || rl.Reset.IsZero() {
		return 0
	}
	d := rl.Reset.Sub(t.now())
	if d <= 0 {
		return 0
	}
	return d
}
