// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/eduspider/internal/crawler"
)

// DefaultTimeout bounds a single fetch when Config.Timeout is unset.
const DefaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
}

// Fetcher implements crawler.Fetcher using the Colly collector. robots.txt
// and revisit tracking are left to the crawl engine.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponseHeaders(colly.ResponseHeadersCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchState collects what the hooks observed during one visit.
type fetchState struct {
	result  crawler.FetchResponse
	err     error
	nonHTML bool
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	c.WithTransport(newHTTPTransport())
	// Clones share the backend client, so the timeout is set once here.
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. Non-2xx responses are returned as an
// error wrapping crawler.ErrStatus; non-HTML responses are returned with
// HTML set to false and no body.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.FetchResponse, error) {
	state := &fetchState{}
	collector := f.buildCollector(ctx, time.Now(), state)

	if err := f.runCollector(ctx, collector, url, state); err != nil {
		return crawler.FetchResponse{}, err
	}
	return state.result, nil
}

func (f *Fetcher) buildCollector(ctx context.Context, start time.Time, state *fetchState) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	// Status handling happens in OnResponse so every 2xx is accepted.
	collector.ParseHTTPErrorResponse = true
	collector.Context = ctx

	f.configureCollectorHooks(collector, start, state)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, start time.Time, state *fetchState) {
	hooks.OnResponseHeaders(func(r *colly.Response) {
		if r.StatusCode < 200 || r.StatusCode > 299 {
			return
		}
		contentType := headerValue(r.Headers, "Content-Type")
		if !isHTML(contentType) {
			state.nonHTML = true
			state.result = crawler.FetchResponse{
				URL:         requestURL(r),
				StatusCode:  r.StatusCode,
				ContentType: contentType,
				HTML:        false,
				Duration:    time.Since(start),
			}
			r.Request.Abort()
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		if state.nonHTML {
			return
		}
		if r.StatusCode < 200 || r.StatusCode > 299 {
			state.err = fmt.Errorf("%w: %d", crawler.ErrStatus, r.StatusCode)
			return
		}
		contentType := headerValue(r.Headers, "Content-Type")
		state.result = crawler.FetchResponse{
			URL:         requestURL(r),
			StatusCode:  r.StatusCode,
			ContentType: contentType,
			Body:        append([]byte(nil), r.Body...),
			HTML:        isHTML(contentType),
			Duration:    time.Since(start),
		}
		if !state.result.HTML {
			state.result.Body = nil
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if state.nonHTML {
			return
		}
		if r != nil && r.StatusCode != 0 && (r.StatusCode < 200 || r.StatusCode > 299) {
			state.err = fmt.Errorf("%w: %d: %w", crawler.ErrStatus, r.StatusCode, err)
			return
		}
		state.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, state *fetchState) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if state.nonHTML {
			// Aborting after headers surfaces as an error from Visit.
			return nil
		}
		if state.err != nil {
			return fmt.Errorf("colly response failed: %w", state.err)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func isHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}

func headerValue(h *http.Header, key string) string {
	if h == nil {
		return ""
	}
	return h.Get(key)
}

func requestURL(r *colly.Response) string {
	if r == nil || r.Request == nil || r.Request.URL == nil {
		return ""
	}
	return r.Request.URL.String()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
