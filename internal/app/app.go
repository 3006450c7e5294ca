// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/eduspider/internal/clock/system"
	"github.com/JakeFAU/eduspider/internal/config"
	"github.com/JakeFAU/eduspider/internal/crawler"
	collyfetcher "github.com/JakeFAU/eduspider/internal/fetcher/colly"
	"github.com/JakeFAU/eduspider/internal/id/uuid"
	"github.com/JakeFAU/eduspider/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/eduspider/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/eduspider/internal/publisher/pubsub"
	memorystore "github.com/JakeFAU/eduspider/internal/storage/memory"
	"github.com/JakeFAU/eduspider/internal/storage/postgres"
	"github.com/JakeFAU/eduspider/internal/storage/sqlite"
)

// Backend is the persistence surface the commands need.
type Backend interface {
	crawler.Store
	crawler.Catalog
}

// App holds the shared services for one process.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	backend   Backend
	publisher crawler.Publisher
	engine    *crawler.Engine
	closers   []func() error
}

// New builds every service described by cfg. It fails fast when a backend
// cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}

	backend, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	a.backend = backend

	publisher, err := a.openPublisher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.publisher = publisher

	robots := crawler.NewRobotsEnforcer(
		cfg.Crawler.RespectRobots,
		cfg.Crawler.UserAgent,
		cfg.Crawler.RobotsTimeout,
		logger.Named("robots"),
	)
	gate := ratelimit.New(ratelimit.Config{MinInterval: cfg.Crawler.MinDomainInterval})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Crawler.UserAgent,
		Timeout:      cfg.Crawler.RequestTimeout,
		MaxBodyBytes: cfg.Crawler.MaxBodyBytes,
	})

	a.engine = crawler.NewEngine(
		cfg.EngineConfig(),
		backend,
		fetcher,
		crawler.NewPoliteness(robots, gate),
		logger.Named("crawler"),
		crawler.WithPublisher(publisher),
		crawler.WithClock(system.New()),
		crawler.WithIDGenerator(uuid.New()),
	)
	return a, nil
}

func (a *App) openBackend(ctx context.Context) (Backend, error) {
	switch a.cfg.Store.Driver {
	case config.DriverMemory:
		a.logger.Info("Using in-memory store. Results are discarded on exit.")
		return memorystore.NewStore(), nil
	case config.DriverPostgres:
		store, err := postgres.NewStore(ctx, postgres.Config{DSN: a.cfg.Store.DSN})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		a.logger.Info("Using postgres store")
		return store, nil
	case config.DriverSQLite, "":
		store, err := sqlite.Open(a.cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.logger.Info("Using sqlite store", zap.String("path", store.Path()))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", a.cfg.Store.Driver)
	}
}

func (a *App) openPublisher(ctx context.Context) (crawler.Publisher, error) {
	if !a.cfg.PubSub.Enabled() {
		return memorypublisher.New(), nil
	}
	pub, err := pubsubpublisher.Dial(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.closers = append(a.closers, pub.Close)
	a.logger.Info("Publishing job events to Pub/Sub",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pub, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Engine returns the crawl engine.
func (a *App) Engine() *crawler.Engine { return a.engine }

// Crawl runs one crawl job rooted at seed.
func (a *App) Crawl(ctx context.Context, seed string, maxDepth int) (crawler.Result, error) {
	return a.engine.Crawl(ctx, seed, maxDepth)
}

// Catalog returns the read side of the configured store.
func (a *App) Catalog() crawler.Catalog { return a.backend }

// Store returns the write side of the configured store.
func (a *App) Store() crawler.Store { return a.backend }

// Close releases backends in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Failed to close service", zap.Error(err))
		}
	}
	a.closers = nil
}
