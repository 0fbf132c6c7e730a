package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/coopportal/coopsearch/pkg/httputil"
	"github.com/coopportal/coopsearch/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns default rate limit settings. Typeahead traffic is
// already debounced client side, so a signed-in user rarely gets near this.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 120,
		WindowDuration:    time.Minute,
		BurstSize:         20,
	}
}

// Decision is the outcome of a single rate limit check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// Limiter decides whether the caller identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RateLimiter implements in-process rate limiting using a token bucket
type RateLimiter struct {
	config  *RateLimitConfig
	clock   clock.Clock
	buckets map[string]*bucket
	mu      sync.Mutex
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
}

// NewRateLimiter creates a new rate limiter. A nil clock uses the wall clock.
func NewRateLimiter(config *RateLimitConfig, clk clock.Clock) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if clk == nil {
		clk = clock.New()
	}

	return &RateLimiter{
		config:  config,
		clock:   clk,
		buckets: make(map[string]*bucket),
	}
}

func (rl *RateLimiter) capacity() int {
	return rl.config.RequestsPerWindow + rl.config.BurstSize
}

// Allow takes one token from key's bucket
func (rl *RateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: rl.capacity(), lastUpdate: now}
		rl.buckets[key] = b
	}

	// Refill tokens based on elapsed time
	elapsed := now.Sub(b.lastUpdate)
	tokensToAdd := int(elapsed.Seconds() * float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds())
	if tokensToAdd > 0 {
		b.tokens = min(b.tokens+tokensToAdd, rl.capacity())
		b.lastUpdate = now
	}

	d := Decision{Limit: rl.config.RequestsPerWindow, ResetAfter: rl.config.WindowDuration}
	if b.tokens > 0 {
		b.tokens--
		d.Allowed = true
	}
	d.Remaining = b.tokens
	return d, nil
}

// Cleanup removes buckets idle for more than two windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanup starts a background goroutine to cleanup old buckets
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := rl.clock.Ticker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimitMiddleware provides HTTP rate limiting keyed by portal user, falling
// back to the client address for requests without a user id. The address is the
// connection's unless proxy headers are trusted.
type RateLimitMiddleware struct {
	limiter    Limiter
	logger     logrus.FieldLogger
	metrics    *observability.Metrics
	trustProxy bool
}

// NewRateLimitMiddleware creates a new rate limit middleware. Limiter errors fail open.
func NewRateLimitMiddleware(limiter Limiter, logger logrus.FieldLogger, metrics *observability.Metrics) *RateLimitMiddleware {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RateLimitMiddleware{
		limiter: limiter,
		logger:  logger.WithField("component", "ratelimit"),
		metrics: metrics,
	}
}

// WithTrustedProxy keys anonymous callers on X-Forwarded-For / X-Real-IP. Only
// enable it behind a proxy that overwrites those headers.
func (m *RateLimitMiddleware) WithTrustedProxy(trust bool) *RateLimitMiddleware {
	m.trustProxy = trust
	return m
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.key(r)

		d, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			m.observe("error")
			m.logger.WithError(err).WithField("key", key).Warn("Rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, d)
		if !d.Allowed {
			m.observe("limited")
			w.Header().Set("Retry-After", strconv.Itoa(int(d.ResetAfter.Seconds())))
			httputil.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}

		m.observe("allowed")
		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) observe(outcome string) {
	if m.metrics != nil {
		m.metrics.RateLimitDecisions.WithLabelValues(outcome).Inc()
	}
}

func setRateLimitHeaders(w http.ResponseWriter, d Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(d.ResetAfter.Seconds())))
}

func (m *RateLimitMiddleware) key(r *http.Request) string {
	if ac, ok := GetAuthContext(r); ok && ac.User() != "" {
		return "user:" + ac.User()
	}
	if m.trustProxy {
		return "ip:" + httputil.ClientIP(r)
	}
	return "ip:" + httputil.RemoteIP(r)
}
