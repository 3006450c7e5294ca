package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/eduspider/internal/metrics"
)

// Engine orchestrates crawl jobs.
type Engine struct {
	cfg        EngineConfig
	store      Store
	fetcher    Fetcher
	politeness *Politeness
	publisher  Publisher
	clock      Clock
	ids        IDGenerator
	logger     *zap.Logger
}

// EngineOption customizes optional Engine collaborators.
type EngineOption func(*Engine)

// WithPublisher sets the job event publisher.
func WithPublisher(p Publisher) EngineOption {
	return func(e *Engine) { e.publisher = p }
}

// WithClock overrides the clock used for job event timestamps.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator sets the generator for run IDs.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) { e.ids = g }
}

// NewEngine wires the crawl engine.
func NewEngine(
	cfg EngineConfig,
	store Store,
	fetcher Fetcher,
	politeness *Politeness,
	logger *zap.Logger,
	opts ...EngineOption,
) *Engine {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	if politeness == nil {
		politeness = NewPoliteness(nil, nil)
	}
	e := &Engine{
		cfg:        cfg.withDefaults(),
		store:      store,
		fetcher:    fetcher,
		politeness: politeness,
		clock:      utcClock{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Crawl runs one job rooted at seed: it creates the job, traverses up to
// maxDepth, and finalizes the job as done, interrupted, or error. The job
// is finalized even when ctx is canceled. A non-nil error accompanies the
// interrupted and error outcomes.
func (e *Engine) Crawl(ctx context.Context, seed string, maxDepth int) (Result, error) {
	runID := e.newRunID()
	startedAt := e.clock.Now()

	jobID, err := e.store.CreateJob(ctx, seed, maxDepth)
	if err != nil {
		return Result{}, fmt.Errorf("create job: %w", err)
	}
	logger := e.logger.With(zap.Int64("job_id", jobID), zap.String("run_id", runID))
	logger.Info("Starting crawl", zap.String("seed", seed), zap.Int("max_depth", maxDepth))

	pages, travErr := e.traverse(ctx, seed, maxDepth, jobID, logger)

	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.FinalizeTimeout)
	defer cancel()

	result := Result{JobID: jobID, Pages: pages, Status: JobStatusDone}
	switch {
	case travErr == nil:
	case errors.Is(travErr, context.Canceled) || errors.Is(travErr, context.DeadlineExceeded):
		result.Status = JobStatusInterrupted
		count, countErr := e.store.CountPagesForJob(finalCtx, jobID)
		if countErr != nil {
			logger.Error("Failed to count pages for interrupted job", zap.Error(countErr))
			count = pages
		}
		result.Pages = count
	default:
		result.Status = JobStatusError
		result.Pages = 0
		logger.Error("Crawl failed", zap.Error(travErr))
	}

	if !result.Status.Terminal() {
		return result, fmt.Errorf("job %d ended in non-terminal status %q", jobID, result.Status)
	}
	if err := e.store.FinishJob(finalCtx, jobID, result.Pages, result.Status); err != nil {
		travErr = errors.Join(travErr, fmt.Errorf("finish job %d: %w", jobID, err))
	}
	metrics.ObserveJob(string(result.Status))
	e.publish(finalCtx, JobEvent{
		JobID:      jobID,
		RunID:      runID,
		SeedURL:    seed,
		MaxDepth:   maxDepth,
		Status:     result.Status,
		PagesFound: result.Pages,
		StartedAt:  startedAt,
		FinishedAt: e.clock.Now(),
	}, logger)

	logger.Info("Crawl finished", zap.String("status", string(result.Status)), zap.Int("pages", result.Pages))
	return result, travErr
}

// Traverse visits seed and its in-scope descendants up to maxDepth, tagging
// saved pages with jobID. It returns the number of newly saved pages.
// Failures at a single URL are logged and contribute zero pages; only
// cancellation and store failures are returned.
func (e *Engine) Traverse(ctx context.Context, seed string, maxDepth int, jobID int64) (int, error) {
	return e.traverse(ctx, seed, maxDepth, jobID, e.logger.With(zap.Int64("job_id", jobID)))
}

func (e *Engine) traverse(ctx context.Context, seed string, maxDepth int, jobID int64, logger *zap.Logger) (int, error) {
	visited := newConcurrentVisitTracker()
	work := newFrontier(frontierItem{url: seed, depth: 0})
	var saved atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.cfg.Workers; i++ {
		g.Go(func() error {
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			for {
				item, ok := work.Pop(gctx)
				if !ok {
					return gctx.Err()
				}
				n, err := e.visit(gctx, item, maxDepth, jobID, visited, work, logger)
				work.Done()
				if err != nil {
					return err
				}
				saved.Add(int64(n))
			}
		})
	}
	err := g.Wait()
	if err == nil {
		// Workers drained the frontier; a cancellation that raced the last
		// item no longer matters.
		return int(saved.Load()), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	return int(saved.Load()), err
}

// visit runs every gate for one frontier item and returns 1 when a new
// page was saved.
func (e *Engine) visit(
	ctx context.Context,
	item frontierItem,
	maxDepth int,
	jobID int64,
	visited visitTracker,
	work *frontier,
	logger *zap.Logger,
) (int, error) {
	canonical := Canonicalize(item.url)
	if item.depth > maxDepth || !visited.MarkIfNew(canonical) {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	log := logger.With(zap.String("url", canonical), zap.Int("depth", item.depth))

	exists, err := e.store.PageExists(ctx, canonical)
	if err != nil {
		return 0, fmt.Errorf("check page %s: %w", canonical, err)
	}
	if exists {
		metrics.ObserveSkip(metrics.SkipKnown)
		return 0, nil
	}

	if !e.politeness.IsAllowed(ctx, canonical) {
		log.Info("Blocked by robots.txt")
		metrics.ObserveSkip(metrics.SkipRobots)
		return 0, nil
	}

	domain := Domain(canonical)
	if err := e.politeness.WaitForSlot(ctx, domain); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	log.Info("Fetching")
	resp, err := e.fetcher.Fetch(ctx, canonical)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		log.Warn("Fetch failed", zap.Error(err))
		metrics.ObserveFetch(metrics.FetchError)
		return 0, nil
	}
	if !resp.HTML {
		log.Debug("Skipping non-HTML response", zap.String("content_type", resp.ContentType))
		metrics.ObserveFetch(metrics.FetchNonHTML)
		return 0, nil
	}
	metrics.ObserveFetch(metrics.FetchOK)

	base := resp.URL
	if base == "" {
		base = canonical
	}
	content, err := ParsePage(string(resp.Body), base)
	if err != nil {
		log.Warn("Parse failed", zap.Error(err))
		return 0, nil
	}

	pageID, err := e.store.SavePage(ctx, PageInput{
		URL:         canonical,
		Title:       content.Title,
		Description: content.Description,
		Domain:      domain,
		Depth:       item.depth,
		JobID:       jobID,
	})
	if errors.Is(err, ErrDuplicate) {
		metrics.ObserveSkip(metrics.SkipDuplicate)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("save page %s: %w", canonical, err)
	}
	metrics.ObservePageSaved()

	e.linkTopics(ctx, pageID, content, log)

	if item.depth < maxDepth {
		work.Push(e.children(content.Links, item.depth+1, visited)...)
	}
	return 1, nil
}

// children filters links in the same order the traversal gates them:
// canonical form and visited set, skip patterns, then scope.
func (e *Engine) children(links []string, depth int, visited visitTracker) []frontierItem {
	out := make([]frontierItem, 0, len(links))
	for _, link := range links {
		link = Canonicalize(link)
		if visited.Seen(link) {
			continue
		}
		if ShouldSkip(link) {
			continue
		}
		if !InScope(link) {
			continue
		}
		out = append(out, frontierItem{url: link, depth: depth})
	}
	return out
}

func (e *Engine) linkTopics(ctx context.Context, pageID int64, content PageContent, log *zap.Logger) {
	linked := 0
	for _, name := range ExtractTopics(content.Title, content.Headings) {
		topicID, err := e.store.GetOrCreateTopic(ctx, name)
		if err != nil {
			log.Warn("Failed to store topic", zap.String("topic", name), zap.Error(err))
			continue
		}
		if err := e.store.LinkPageTopic(ctx, pageID, topicID); err != nil {
			log.Warn("Failed to link topic", zap.String("topic", name), zap.Error(err))
			continue
		}
		linked++
	}
	metrics.ObserveTopicsLinked(linked)
}

func (e *Engine) publish(ctx context.Context, event JobEvent, log *zap.Logger) {
	if e.publisher == nil {
		return
	}
	if _, err := e.publisher.Publish(ctx, e.cfg.EventTopic, event); err != nil {
		log.Warn("Failed to publish job event", zap.Error(err))
	}
}

func (e *Engine) newRunID() string {
	if e.ids == nil {
		return ""
	}
	id, err := e.ids.NewID()
	if err != nil {
		e.logger.Warn("Failed to generate run id", zap.Error(err))
		return ""
	}
	return id
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
