// Package ratelimit implements a per-domain token bucket that spaces
// requests to the same domain by a minimum interval.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/eduspider/internal/metrics"
)

// DefaultMinInterval is the spacing applied when Config.MinInterval is unset.
const DefaultMinInterval = time.Second

// Config holds rate limiter configuration.
type Config struct {
	// MinInterval is the minimum time between two slots for one domain.
	// Negative disables limiting.
	MinInterval time.Duration
}

// Limiter manages per-domain rate limits. It is safe for concurrent use;
// callers for different domains never wait on each other.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	metrics.Init()
	interval := cfg.MinInterval
	if interval == 0 {
		interval = DefaultMinInterval
	}
	every := rate.Every(interval)
	if interval < 0 {
		every = rate.Inf
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		every:    every,
	}
}

// Wait blocks until the domain's next slot is available, respecting the context.
func (l *Limiter) Wait(ctx context.Context, domain string) error {
	limiter := l.limiterFor(strings.ToLower(domain))

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(domain, d)
	}
	return nil
}

// Domains returns the number of domains with recorded state.
func (l *Limiter) Domains() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *Limiter) limiterFor(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[domain]
	if !ok {
		limiter = rate.NewLimiter(l.every, 1)
		l.limiters[domain] = limiter
	}
	return limiter
}
