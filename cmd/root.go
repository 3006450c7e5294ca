// Package cmd defines and implements the CLI commands for the eduspider executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/eduspider/internal/app"
	"github.com/JakeFAU/eduspider/internal/config"
	"github.com/JakeFAU/eduspider/internal/crawler"
	"github.com/JakeFAU/eduspider/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Catalog() crawler.Catalog
	Crawl(ctx context.Context, seed string, maxDepth int) (crawler.Result, error)
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// loadConfig is swapped in tests to avoid touching the environment.
var loadConfig = config.Load

type rootOptions struct {
	cfgFile    string
	depth      int
	workers    int
	seed       string
	outOfScope bool
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "eduspider <url>",
		Short: "Crawl .edu, .org, and .gov sites and catalog their topics.",
		Long: `eduspider crawls a seed URL depth-first, staying within .edu, .org,
and .gov domains. It honors robots.txt, spaces requests to each domain,
and records every new page with topics extracted from its title and
headings.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,

		// Load configuration and build the application before any RunE.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// An out-of-scope seed is reported without touching any backend.
			if !cmd.HasParent() && len(args) == 1 {
				opts.seed = crawler.EnsureScheme(args[0])
				if !crawler.InScope(opts.seed) {
					opts.outOfScope = true
					return nil
				}
			}

			cfg, err := loadConfig(opts.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("workers") {
				if opts.workers <= 0 {
					return errors.New("--workers must be > 0")
				}
				cfg.Crawler.Workers = opts.workers
			}

			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
				_ = logging.Sync(appInstance.Logger())
			}
		},

		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.outOfScope {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s is not a .edu, .org, or .gov domain\n", opts.seed)
				return nil
			}
			return runCrawl(cmd, opts.seed, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML, TOML, or JSON)")
	cmd.Flags().IntVar(&opts.depth, "depth", crawler.DefaultMaxDepth, "maximum link depth from the seed")
	cmd.PersistentFlags().IntVar(&opts.workers, "workers", crawler.DefaultWorkers, "number of concurrent crawl workers")

	cmd.AddCommand(newTopicsCmd(), newPagesCmd(), newJobsCmd(), newServeCmd())
	return cmd
}

func runCrawl(cmd *cobra.Command, seed string, opts *rootOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	depth := opts.depth
	if !cmd.Flags().Changed("depth") {
		depth = appInstance.Config().Crawler.MaxDepthDefault
	}
	if depth < 0 {
		return errors.New("--depth must be >= 0")
	}

	fmt.Fprintf(out, "Starting crawl: %s (max depth %d)\n", seed, depth)
	result, err := appInstance.Crawl(cmd.Context(), seed, depth)
	switch result.Status {
	case crawler.JobStatusDone:
		fmt.Fprintf(out, "Crawl complete. Pages found: %d\n", result.Pages)
		return nil
	case crawler.JobStatusInterrupted:
		fmt.Fprintf(out, "Crawl interrupted. Saved %d pages before stopping.\n", result.Pages)
		return nil
	default:
		if err == nil {
			err = errors.New("crawl ended without a terminal status")
		}
		fmt.Fprintf(out, "Crawl failed: %v\n", err)
		return fmt.Errorf("crawl %s: %w", seed, err)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running
// command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		logger, lerr := logging.New(false)
		if lerr != nil {
			fmt.Fprintln(os.Stderr, "Command execution failed:", err)
			os.Exit(1)
		}
		logger.Fatal("Command execution failed", zap.Error(err))
	}
}
