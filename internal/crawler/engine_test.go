package crawler_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/eduspider/internal/crawler"
	"github.com/JakeFAU/eduspider/internal/publisher/memory"
	memstore "github.com/JakeFAU/eduspider/internal/storage/memory"
)

// fakeFetcher serves canned HTML keyed by canonical URL.
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	nonHTML map[string]bool
	calls   []string
	onFetch func(url string)
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (crawler.FetchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	hook := f.onFetch
	body, ok := f.pages[url]
	nonHTML := f.nonHTML[url]
	f.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	if err := ctx.Err(); err != nil {
		return crawler.FetchResponse{}, err
	}
	if nonHTML {
		return crawler.FetchResponse{URL: url, StatusCode: 200, ContentType: "application/pdf"}, nil
	}
	if !ok {
		return crawler.FetchResponse{}, crawler.ErrStatus
	}
	return crawler.FetchResponse{
		URL:         url,
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(body),
		HTML:        true,
	}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

const seedHTML = `<html><head><title>Quantum Physics</title></head><body>
<a href="/a">A</a>
<a href="/b#section">B</a>
<a href="https://example.com/off">off tld</a>
<a href="/login">login</a>
<a href="/paper.pdf">paper</a>
<a href="https://other.org/missing">missing</a>
</body></html>`

func sitePages() map[string]string {
	return map[string]string{
		"https://example.edu/":  seedHTML,
		"https://example.edu/a": `<html><head><title>Page A</title></head><body><a href="/">home</a><a href="/c">C</a></body></html>`,
		"https://example.edu/b": `<html><head><title>Page B</title></head><body><p>About B</p></body></html>`,
		"https://example.edu/c": `<html><head><title>Page C</title></head></body></html>`,
	}
}

type failingSaveStore struct {
	*memstore.Store
}

func (s failingSaveStore) SavePage(context.Context, crawler.PageInput) (int64, error) {
	return 0, errors.New("disk full")
}

// flakyStore reports dupURL as already saved and never links a topic.
type flakyStore struct {
	*memstore.Store
	dupURL string
}

func (s flakyStore) SavePage(ctx context.Context, page crawler.PageInput) (int64, error) {
	if page.URL == s.dupURL {
		return 0, crawler.ErrDuplicate
	}
	return s.Store.SavePage(ctx, page)
}

func (s flakyStore) GetOrCreateTopic(_ context.Context, name string) (int64, error) {
	if name == "physics" {
		return 0, errors.New("topics table locked")
	}
	return 1, nil
}

func (s flakyStore) LinkPageTopic(context.Context, int64, int64) error {
	return errors.New("link table locked")
}

type fixedIDs struct{}

func (fixedIDs) NewID() (string, error) { return "run-1", nil }

func newEngine(store crawler.Store, fetcher crawler.Fetcher, workers int, opts ...crawler.EngineOption) *crawler.Engine {
	return crawler.NewEngine(
		crawler.EngineConfig{Workers: workers},
		store,
		fetcher,
		crawler.NewPoliteness(nil, nil),
		zap.NewNop(),
		opts...,
	)
}

func TestCrawlDepthFirstWithinScope(t *testing.T) {
	t.Parallel()

	store := memstore.NewStore()
	fetcher := &fakeFetcher{pages: sitePages()}
	pub := memory.New()
	engine := newEngine(store, fetcher, 1, crawler.WithPublisher(pub), crawler.WithIDGenerator(fixedIDs{}))

	result, err := engine.Crawl(context.Background(), "https://example.edu", 1)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusDone, result.Status)
	require.Equal(t, 3, result.Pages)

	require.Equal(t, []string{
		"https://example.edu/",
		"https://example.edu/a",
		"https://example.edu/b",
		"https://other.org/missing",
	}, fetcher.Calls())

	job, ok := store.Job(result.JobID)
	require.True(t, ok)
	require.Equal(t, crawler.JobStatusDone, job.Status)
	require.Equal(t, 3, job.PagesFound)
	require.Equal(t, "https://example.edu", job.SeedURL)

	page, ok := store.Page("https://example.edu/a")
	require.True(t, ok)
	require.Equal(t, 1, page.Depth)
	require.Equal(t, "example.edu", page.Domain)
	require.Equal(t, result.JobID, page.JobID)

	_, ok = store.Page("https://example.edu/c")
	require.False(t, ok, "depth limit should stop the crawl at /a")

	require.Equal(t, []string{"physics", "quantum", "quantum physics"}, store.TopicsForPage("https://example.edu/"))

	events := pub.JobEvents()
	require.Len(t, events, 1)
	require.Equal(t, crawler.JobStatusDone, events[0].Status)
	require.Equal(t, 3, events[0].PagesFound)
	require.Equal(t, "run-1", events[0].RunID)
	require.Equal(t, crawler.DefaultEventTopic, pub.Messages()[0].Topic)
}

func TestCrawlDepthZeroVisitsOnlySeed(t *testing.T) {
	t.Parallel()

	store := memstore.NewStore()
	fetcher := &fakeFetcher{pages: sitePages()}
	engine := newEngine(store, fetcher, 1)

	result, err := engine.Crawl(context.Background(), "https://example.edu/", 0)
	require.NoError(t, err)
	require.Equal(t, 1, result.Pages)
	require.Equal(t, []string{"https://example.edu/"}, fetcher.Calls())
}

func TestCrawlSkipsKnownSeed(t *testing.T) {
	t.Parallel()

	store := memstore.NewStore()
	ctx := context.Background()
	_, err := store.SavePage(ctx, crawler.PageInput{URL: "https://example.edu/", Domain: "example.edu"})
	require.NoError(t, err)

	fetcher := &fakeFetcher{pages: sitePages()}
	result, err := newEngine(store, fetcher, 1).Crawl(ctx, "https://example.edu", 3)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusDone, result.Status)
	require.Zero(t, result.Pages)
	require.Empty(t, fetcher.Calls())
}

func TestCrawlSkipsNonHTML(t *testing.T) {
	t.Parallel()

	store := memstore.NewStore()
	fetcher := &fakeFetcher{
		pages:   sitePages(),
		nonHTML: map[string]bool{"https://example.edu/b": true},
	}
	result, err := newEngine(store, fetcher, 1).Crawl(context.Background(), "https://example.edu", 1)
	require.NoError(t, err)
	require.Equal(t, 2, result.Pages)
	_, ok := store.Page("https://example.edu/b")
	require.False(t, ok)
}

func TestCrawlInterrupted(t *testing.T) {
	t.Parallel()

	store := memstore.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := &fakeFetcher{pages: sitePages()}
	fetcher.onFetch = func(url string) {
		if url == "https://example.edu/a" {
			cancel()
		}
	}

	result, err := newEngine(store, fetcher, 1).Crawl(ctx, "https://example.edu", 2)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, crawler.JobStatusInterrupted, result.Status)
	require.Equal(t, 1, result.Pages)

	job, ok := store.Job(result.JobID)
	require.True(t, ok)
	require.Equal(t, crawler.JobStatusInterrupted, job.Status)
	require.Equal(t, 1, job.PagesFound)
}

func TestCrawlStoreFailureMarksError(t *testing.T) {
	t.Parallel()

	base := memstore.NewStore()
	fetcher := &fakeFetcher{pages: sitePages()}
	result, err := newEngine(failingSaveStore{Store: base}, fetcher, 1).Crawl(context.Background(), "https://example.edu", 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")
	require.Equal(t, crawler.JobStatusError, result.Status)
	require.Zero(t, result.Pages)

	job, ok := base.Job(result.JobID)
	require.True(t, ok)
	require.Equal(t, crawler.JobStatusError, job.Status)
	require.Zero(t, job.PagesFound)
}

func TestCrawlDuplicateSaveAndTopicFailures(t *testing.T) {
	t.Parallel()

	store := memstore.NewStore()
	fetcher := &fakeFetcher{pages: sitePages()}
	engine := newEngine(flakyStore{Store: store, dupURL: "https://example.edu/a"}, fetcher, 1)

	result, err := engine.Crawl(context.Background(), "https://example.edu", 2)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusDone, result.Status)
	require.Equal(t, 2, result.Pages)

	// /c is only linked from /a, whose links are dropped with the duplicate.
	require.Equal(t, []string{
		"https://example.edu/",
		"https://example.edu/a",
		"https://example.edu/b",
		"https://other.org/missing",
	}, fetcher.Calls())

	_, ok := store.Page("https://example.edu/a")
	require.False(t, ok)
	_, ok = store.Page("https://example.edu/b")
	require.True(t, ok)
	require.Empty(t, store.TopicsForPage("https://example.edu/"))

	job, ok := store.Job(result.JobID)
	require.True(t, ok)
	require.Equal(t, crawler.JobStatusDone, job.Status)
	require.Equal(t, 2, job.PagesFound)
}

func TestCrawlRobotsBlocked(t *testing.T) {
	t.Parallel()

	store := memstore.NewStore()
	fetcher := &fakeFetcher{pages: sitePages()}
	engine := crawler.NewEngine(
		crawler.EngineConfig{},
		store,
		fetcher,
		crawler.NewPoliteness(blockPath("https://example.edu/a"), nil),
		zap.NewNop(),
	)

	result, err := engine.Crawl(context.Background(), "https://example.edu", 1)
	require.NoError(t, err)
	require.Equal(t, 2, result.Pages)
	require.NotContains(t, fetcher.Calls(), "https://example.edu/a")
}

func TestTraverseWithWorkerPool(t *testing.T) {
	t.Parallel()

	store := memstore.NewStore()
	fetcher := &fakeFetcher{pages: sitePages()}
	ctx := context.Background()
	jobID, err := store.CreateJob(ctx, "https://example.edu", 2)
	require.NoError(t, err)

	pages, err := newEngine(store, fetcher, 4).Traverse(ctx, "https://example.edu", 2, jobID)
	require.NoError(t, err)
	require.Equal(t, 4, pages)
	require.ElementsMatch(t, []string{
		"https://example.edu/",
		"https://example.edu/a",
		"https://example.edu/b",
		"https://example.edu/c",
		"https://other.org/missing",
	}, fetcher.Calls())

	count, err := store.CountPagesForJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, 4, count)
}

type blockPath string

func (b blockPath) Allowed(_ context.Context, rawURL string) bool { return rawURL != string(b) }
