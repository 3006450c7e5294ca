package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const maxRobotsBytes = 1 << 20

// RobotsEnforcer enforces robots.txt directives per host. Decisions are
// cached for the lifetime of the enforcer; a robots.txt that cannot be
// retrieved or parsed is cached as allow-all.
type RobotsEnforcer struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger

	mu    sync.RWMutex
	cache map[string]*robotstxt.RobotsData
	group singleflight.Group
}

// NewRobotsEnforcer builds a RobotsPolicy respecting the config toggle.
func NewRobotsEnforcer(respect bool, userAgent string, timeout time.Duration, logger *zap.Logger) RobotsPolicy {
	if !respect {
		return AllowAllPolicy{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotsEnforcer{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed implements RobotsPolicy.
func (r *RobotsEnforcer) Allowed(ctx context.Context, rawURL string) bool {
	if r == nil {
		return true
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	data := r.load(ctx, parsed)
	target := parsed.EscapedPath()
	if target == "" {
		target = "/"
	}
	if parsed.RawQuery != "" {
		target += "?" + parsed.RawQuery
	}
	// TestAgent also covers the blanket allow/disallow decisions.
	return data.TestAgent(target, r.userAgent)
}

// Cached reports whether a decision for host is already cached.
func (r *RobotsEnforcer) Cached(host string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cache[strings.ToLower(host)]
	return ok
}

func (r *RobotsEnforcer) load(ctx context.Context, parsed *url.URL) *robotstxt.RobotsData {
	hostKey := strings.ToLower(parsed.Host)
	r.mu.RLock()
	data, ok := r.cache[hostKey]
	r.mu.RUnlock()
	if ok {
		return data
	}

	v, _, _ := r.group.Do(hostKey, func() (any, error) {
		r.mu.RLock()
		cached, ok := r.cache[hostKey]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}
		data, err := r.fetch(ctx, parsed.Scheme, parsed.Host)
		if err != nil && ctx.Err() != nil {
			// A canceled caller says nothing about the host; leave it uncached.
			r.logger.Debug("robots fetch canceled", zap.String("host", hostKey), zap.Error(err))
			return allowAllRobots(), nil
		}
		if err != nil {
			r.logger.Warn("robots fetch failed; allowing access", zap.String("host", hostKey), zap.Error(err))
			data = allowAllRobots()
		}
		r.mu.Lock()
		r.cache[hostKey] = data
		r.mu.Unlock()
		return data, nil
	})
	robots, ok := v.(*robotstxt.RobotsData)
	if !ok {
		return allowAllRobots()
	}
	return robots
}

func (r *RobotsEnforcer) fetch(ctx context.Context, scheme, host string) (*robotstxt.RobotsData, error) {
	robotsURL := scheme + "://" + host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("Failed to close robots response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("robots returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}

func allowAllRobots() *robotstxt.RobotsData {
	// A 404 is the library's canonical allow-all.
	data, _ := robotstxt.FromStatusAndBytes(http.StatusNotFound, nil)
	return data
}

// AllowAllPolicy permits every URL.
type AllowAllPolicy struct{}

// Allowed implements RobotsPolicy.
func (AllowAllPolicy) Allowed(context.Context, string) bool { return true }
