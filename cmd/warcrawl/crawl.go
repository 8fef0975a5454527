package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/warcrawl/internal/blocklist"
	"github.com/nao1215/warcrawl/internal/config"
	"github.com/nao1215/warcrawl/internal/crawler"
	"github.com/nao1215/warcrawl/internal/database"
	"github.com/nao1215/warcrawl/internal/log"
	"github.com/nao1215/warcrawl/internal/model"
	"github.com/nao1215/warcrawl/internal/pipeline"
	"github.com/nao1215/warcrawl/internal/politeness"
	"github.com/nao1215/warcrawl/internal/report"
	"github.com/nao1215/warcrawl/internal/telemetry"
	"github.com/nao1215/warcrawl/internal/transport"
)

// shutdownTimeout bounds the final metric export.
const shutdownTimeout = 5 * time.Second

// crawlFlagKeys maps configuration keys to crawl flags.
var crawlFlagKeys = map[string]string{
	"plan":              "plan",
	"depth":             "depth",
	"batch_size":        "batch",
	"proxy":             "proxy",
	"timeout":           "timeout",
	"archive_dir":       "archive-dir",
	"db_dir":            "db-dir",
	"no_db":             "no-db",
	"json":              "json",
	"markdown":          "markdown",
	"output":            "output",
	"user_agent":        "user-agent",
	"launch_interval":   "launch-interval",
	"max_errors":        "max-errors",
	"digest_algorithm":  "digest",
	"telemetry_enabled": "telemetry",
	"collector_url":     "collector-url",
}

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [domain...]",
		Short: "Crawl domains into WARC archives",
		Long: `Crawl runs one attempt per domain. Domains come from the command line,
the crawl plan, or, when neither names any, the domains saved by earlier
runs.

Each attempt probes the domain, resumes or revisits earlier archives,
reads robots.txt and sitemaps, then fetches pages until the visit budget
is spent, the site is exhausted, or too many fetches fail. Archives are
written to <archive-dir>/<domain>/final.warc.gz.

Examples:
  # Crawl a single domain
  warcrawl crawl example.com

  # Crawl every domain of a plan, eight at a time
  warcrawl crawl --plan plan.yaml --batch 8

  # Crawl through a SOCKS5 proxy and write a Markdown report
  warcrawl crawl --proxy 127.0.0.1:1080 --markdown -o report.md example.com

  # Resume the domains crawled before
  warcrawl crawl`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	cmd.Flags().StringP("plan", "p", "", "Crawl plan file")
	cmd.Flags().IntP("depth", "d", config.DefaultDepth,
		"Visit budget of domains without one")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of domains crawled concurrently")
	cmd.Flags().Duration("launch-interval", config.DefaultLaunchInterval,
		"Minimum spacing between attempt launches")

	cmd.Flags().String("proxy", "", "SOCKS5 proxy address (host:port)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Connection timeout")
	cmd.Flags().String("user-agent", crawler.DefaultSettings().UserAgent,
		"User-Agent header")
	cmd.Flags().Int("max-errors", crawler.DefaultMaxErrors,
		"Failed fetches that end an attempt")
	cmd.Flags().String("digest", string(crawler.DefaultSettings().DigestAlgorithm),
		"Archive digest algorithm: sha256 or blake2b-256")

	cmd.Flags().String("archive-dir", "", "Archive root directory (default: XDG data directory)")
	cmd.Flags().String("db-dir", "", "Database directory (default: XDG data directory)")
	cmd.Flags().Bool("no-db", false, "Run without the database")

	cmd.Flags().BoolP("json", "j", false, "Output the report as JSON")
	cmd.Flags().BoolP("markdown", "m", false, "Output the report as Markdown")
	cmd.Flags().StringP("output", "o", "", "Write the report to a file")

	cmd.Flags().Bool("telemetry", false, "Export metrics over OTLP/HTTP")
	cmd.Flags().String("collector-url", "", "OTLP/HTTP collector endpoint (host:port)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, crawlFlagKeys)
	if err != nil {
		return err
	}
	cfg.Targets = args
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.New(cmd.ErrOrStderr(), cfg.LogFormat, cfg.Verbose)
	slog.SetDefault(logger)
	if cfg.ConfigFilePath != "" {
		logger.Debug("loaded configuration", "path", cfg.ConfigFilePath)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle interrupt signals for graceful shutdown. Cancelling the
	// context stops every attempt at its next step; what each attempt
	// fetched so far is still filed as its final archive.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received interrupt signal, stopping crawl")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runCrawl(ctx, cfg, cmd.OutOrStdout(), logger)
}

// runCrawl performs the crawl described by cfg.
func runCrawl(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) error {
	var db *database.CrawlDB
	if !cfg.NoDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Warn("failed to close database", "error", err)
			}
		}()
	}

	var store specStore
	if db != nil {
		store = db
	}
	specs, err := buildSpecs(ctx, cfg, store)
	if err != nil {
		return err
	}

	crawl, shutdown, err := newDomainCrawler(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush metrics", "error", err)
		}
	}()

	reports, batchErr := runBatch(ctx, cfg, crawl, specs, db, out, logger)
	if err := outputReport(cfg, reports, out); err != nil {
		return err
	}
	return batchErr
}

// specStore persists the crawl specs between runs.
type specStore interface {
	ListCrawlSpecs(ctx context.Context) ([]model.CrawlSpec, error)
	SaveCrawlSpec(ctx context.Context, spec model.CrawlSpec) error
}

// buildSpecs collects the crawl specs of this run. Plan entries come first,
// then domains named on the command line. When neither names a domain the
// specs saved by earlier runs are crawled again. store may be nil.
func buildSpecs(ctx context.Context, cfg *config.Config, store specStore) ([]model.CrawlSpec, error) {
	var specs []model.CrawlSpec
	if cfg.PlanFile != "" {
		plan, err := config.LoadPlan(cfg.PlanFile)
		if err != nil {
			return nil, err
		}
		specs, err = plan.Specs(cfg.Depth)
		if err != nil {
			return nil, err
		}
	}

	named, err := config.SpecsFromDomains(cfg.Targets, cfg.Depth)
	if err != nil {
		return nil, err
	}
	for _, spec := range named {
		if !slices.ContainsFunc(specs, func(s model.CrawlSpec) bool { return s.Domain == spec.Domain }) {
			specs = append(specs, spec)
		}
	}

	if len(specs) == 0 && store != nil {
		saved, err := store.ListCrawlSpecs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load saved domains: %w", err)
		}
		if len(saved) == 0 {
			return nil, config.ErrNoTarget
		}
		return withDefaultSeeds(saved), nil
	}
	if len(specs) == 0 {
		return nil, config.ErrNoTarget
	}

	specs = withDefaultSeeds(specs)
	if store != nil {
		for _, spec := range specs {
			if err := store.SaveCrawlSpec(ctx, spec); err != nil {
				return nil, fmt.Errorf("failed to save %s: %w", spec.Domain, err)
			}
		}
	}
	return specs, nil
}

// withDefaultSeeds gives every spec without seeds the domain root.
func withDefaultSeeds(specs []model.CrawlSpec) []model.CrawlSpec {
	for i := range specs {
		if len(specs[i].Seeds) == 0 {
			specs[i].Seeds = []string{"https://" + specs[i].Domain + "/"}
		}
	}
	return specs
}

// newDomainCrawler wires the crawler to the transport, blocklist, database
// and metrics. The returned function flushes the metrics.
func newDomainCrawler(
	ctx context.Context,
	cfg *config.Config,
	db *database.CrawlDB,
	logger *slog.Logger,
) (*crawler.DomainCrawler, func(context.Context) error, error) {
	client, err := transport.NewClient(cfg.Proxy,
		transport.WithTimeout(cfg.Timeout),
		transport.WithHeaders(cfg.Headers),
	)
	if err != nil {
		return nil, nil, err
	}
	if client.ProxyAddress() != "" {
		status := client.CheckProxy(ctx)
		if err := status.Error(); err != nil {
			return nil, nil, fmt.Errorf("proxy %s: %w", client.ProxyAddress(), err)
		}
		logger.Info("using proxy", "address", client.ProxyAddress())
	}

	blocks, err := blocklist.New(cfg.BlockedCIDRs, cfg.BlockedDomains, cfg.BlockedPaths)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid blocklist: %w", err)
	}

	metrics, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:        cfg.TelemetryEnabled,
		CollectorURL:   cfg.CollectorURL,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: getVersion(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	opts := []crawler.Option{
		crawler.WithHTTPClient(client.NewHTTPClient()),
		crawler.WithThrottle(politeness.NewLaunchThrottle(cfg.LaunchInterval)),
		crawler.WithURLBlocklist(blocks),
		crawler.WithIPBlocklist(blocks),
		crawler.WithObserver(metrics.Metrics),
		crawler.WithLogger(logger),
	}
	// A nil *CrawlDB must not become a non-nil interface.
	if db != nil {
		opts = append(opts,
			crawler.WithKnownLinkSource(db),
			crawler.WithKnownLinkSink(db),
		)
	}
	return crawler.New(cfg.Settings(), opts...), metrics.Shutdown, nil
}

// runBatch crawls specs concurrently, printing progress as attempts finish
// and recording each attempt in the database.
func runBatch(
	ctx context.Context,
	cfg *config.Config,
	runner pipeline.Runner,
	specs []model.CrawlSpec,
	db *database.CrawlDB,
	out io.Writer,
	logger *slog.Logger,
) ([]*model.AttemptReport, error) {
	// Progress lines are dropped when a machine-readable report goes to out.
	progress := out
	if cfg.ReportFile == "" && (cfg.JSONReport || cfg.MarkdownReport) {
		progress = io.Discard
	}
	fmt.Fprintf(progress, "Crawling %d domain(s) (concurrency: %d)...\n\n", len(specs), cfg.BatchSize)
	startTime := time.Now()

	bp := pipeline.NewBatchProcessor(runner,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	var (
		mu       sync.Mutex
		finished int
	)
	reports := make([]*model.AttemptReport, len(specs))
	err := bp.ProcessBatchWithCallback(ctx, specs, func(r *model.AttemptReport, index int) {
		mu.Lock()
		defer mu.Unlock()
		finished++
		reports[index] = r

		fmt.Fprintf(progress, "[%d/%d] %s: %s (fetched %d, errors %d)\n",
			finished, len(specs), r.Domain, r.Termination, r.Fetched, r.Errors)

		if db == nil {
			return
		}
		// Record even after cancellation so the history shows the stop.
		recordCtx := context.WithoutCancel(ctx)
		if _, err := db.RecordAttempt(recordCtx, r); err != nil {
			logger.Error("failed to record attempt", "domain", r.Domain, "error", err)
		}
	})

	fmt.Fprintf(progress, "\nCrawl completed in %s\n\n", time.Since(startTime).Round(time.Millisecond))
	// Specs never started after cancellation have no report.
	return slices.DeleteFunc(reports, func(r *model.AttemptReport) bool { return r == nil }), err
}

// outputReport writes the run report in the configured format, to the
// report file or out.
func outputReport(cfg *config.Config, reports []*model.AttemptReport, out io.Writer) error {
	if cfg.ReportFile != "" {
		if dir := filepath.Dir(cfg.ReportFile); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(out)
	default:
		writer = report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
	_, err := writer.Write(reports)
	return err
}
