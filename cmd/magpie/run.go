package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FranksOps/magpie/internal/config"
	"github.com/FranksOps/magpie/internal/dedup"
	"github.com/FranksOps/magpie/internal/fingerprint"
	"github.com/FranksOps/magpie/internal/metrics"
	"github.com/FranksOps/magpie/internal/pipeline"
	"github.com/FranksOps/magpie/internal/report"
	"github.com/FranksOps/magpie/internal/scraper"
	"github.com/FranksOps/magpie/internal/serp"
	"github.com/FranksOps/magpie/internal/storage"
	"github.com/FranksOps/magpie/internal/storage/csvbackend"
	"github.com/FranksOps/magpie/internal/storage/jsonbackend"
	"github.com/FranksOps/magpie/internal/storage/postgres"
	"github.com/FranksOps/magpie/internal/storage/sqlite"
	"github.com/FranksOps/magpie/pkg/proxy"
	"github.com/FranksOps/magpie/pkg/ratelimit"
	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a full harvest: search, dedup, extract, persist",
		Long: `Run executes the full harvest pipeline.

Each query is sent to the configured search vendor, scoped to the target site.
Result URLs are normalized and deduplicated, then each page is fetched and
parsed into a product, collection or page record. At the end of the run the
full record dump and a summary are written as JSON.

Examples:
  # Harvest a store with Google Custom Search
  magpie run --site example-store.com --query "running shoes" --query "trail shoes"

  # Use SerpAPI, two result pages per query, archive into SQLite as you go
  magpie run --vendor serpapi --site example-store.com --query shoes \
    --pages 2 --archive sqlite --archive-path magpie.db

  # Headless browser, no vendor account needed
  magpie run --vendor browser --site example-store.com --query shoes`,
		RunE: runRunCmd,
	}

	cmd.Flags().String("vendor", "", "Search vendor: googlecse, serpapi, searchapi, scraperapi, browser")
	cmd.Flags().StringP("site", "s", "", "Target site to scope queries to (site: operator)")
	cmd.Flags().StringArrayP("query", "q", nil, "Search query (repeatable)")

	cmd.Flags().Int("max-queries", 0, "Cap on total search API calls (0 = no cap)")
	cmd.Flags().Int("pages", 0, "Result pages to request per query")
	cmd.Flags().Int("max-urls", 0, "Cap on unique URLs entering extraction")
	cmd.Flags().Int("concurrency", 0, "Extraction workers (1 = strict discovery order)")

	cmd.Flags().Float64("rate", 0, "Requests per second against the vendor")
	cmd.Flags().Duration("retry-delay", 0, "Wait before the single retry after a vendor rate limit")
	cmd.Flags().Duration("timeout", 0, "Per-request timeout")

	cmd.Flags().Bool("no-robots", false, "Skip robots.txt checks on the target site")
	cmd.Flags().Bool("sitemaps", false, "Also seed URLs from the target site's sitemaps")
	cmd.Flags().Bool("no-overviews", false, "Skip AI Overview collection")

	cmd.Flags().StringP("output", "o", "", "Path for the full record dump (JSON)")
	cmd.Flags().String("summary", "", "Path for the run summary (JSON)")

	cmd.Flags().String("format", "text", "Console summary rendering: text, html, none")

	cmd.Flags().String("archive", "", "Incremental archive backend: jsonl, sqlite, postgres, csv")
	cmd.Flags().String("archive-path", "", "File path for the json/sqlite/csv archive")
	cmd.Flags().String("archive-dsn", "", "Connection string for the postgres archive")
	cmd.Flags().String("redis", "", "Redis address for cross-run URL dedup")

	cmd.Flags().Int("metrics-port", 0, "Expose Prometheus metrics on this port (0 = off)")
	cmd.Flags().String("proxy-file", "", "File with one proxy URL per line")
	cmd.Flags().String("fingerprint", "", "TLS fingerprint profile: chrome, firefox, safari, go, random")

	return cmd
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(getVerboseFlag(cmd))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	format, _ := cmd.Flags().GetString("format")
	return runHarvest(ctx, cfg, logger, format)
}

// loadConfig reads the config file named by the global --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		configFile = ""
	}
	return config.Load(configFile)
}

// applyRunFlags overlays explicitly set flags onto the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("vendor") {
		cfg.Vendor, _ = f.GetString("vendor")
	}
	if f.Changed("site") {
		cfg.TargetSite, _ = f.GetString("site")
	}
	if f.Changed("query") {
		cfg.Queries, _ = f.GetStringArray("query")
	}
	if f.Changed("max-queries") {
		cfg.MaxQueries, _ = f.GetInt("max-queries")
	}
	if f.Changed("pages") {
		cfg.MaxPagesPerQuery, _ = f.GetInt("pages")
	}
	if f.Changed("max-urls") {
		cfg.MaxURLs, _ = f.GetInt("max-urls")
	}
	if f.Changed("concurrency") {
		cfg.Concurrency, _ = f.GetInt("concurrency")
	}
	if f.Changed("rate") {
		cfg.RateLimit, _ = f.GetFloat64("rate")
	}
	if f.Changed("retry-delay") {
		cfg.RetryDelay, _ = f.GetDuration("retry-delay")
	}
	if f.Changed("timeout") {
		cfg.Timeout, _ = f.GetDuration("timeout")
	}
	if f.Changed("no-robots") {
		noRobots, _ := f.GetBool("no-robots")
		cfg.RespectRobots = !noRobots
	}
	if f.Changed("sitemaps") {
		cfg.SeedSitemaps, _ = f.GetBool("sitemaps")
	}
	if f.Changed("no-overviews") {
		noOverviews, _ := f.GetBool("no-overviews")
		cfg.CollectOverviews = !noOverviews
	}
	if f.Changed("output") {
		cfg.OutputPath, _ = f.GetString("output")
	}
	if f.Changed("summary") {
		cfg.SummaryPath, _ = f.GetString("summary")
	}
	if f.Changed("archive") {
		cfg.Archive.Backend, _ = f.GetString("archive")
	}
	if f.Changed("archive-path") {
		cfg.Archive.Path, _ = f.GetString("archive-path")
	}
	if f.Changed("archive-dsn") {
		cfg.Archive.DSN, _ = f.GetString("archive-dsn")
	}
	if f.Changed("redis") {
		cfg.RedisAddr, _ = f.GetString("redis")
	}
	if f.Changed("metrics-port") {
		cfg.MetricsPort, _ = f.GetInt("metrics-port")
	}
	if f.Changed("proxy-file") {
		cfg.ProxyFile, _ = f.GetString("proxy-file")
	}
	if f.Changed("fingerprint") {
		cfg.Fingerprint, _ = f.GetString("fingerprint")
	}
}

// buildProvider constructs the configured search vendor.
func buildProvider(cfg *config.Config) (serp.Provider, error) {
	switch cfg.Vendor {
	case config.VendorGoogleCSE:
		return serp.NewGoogleCSE(serp.GoogleCSEConfig{
			APIKey:   cfg.GoogleAPIKey,
			EngineID: cfg.GoogleEngineID,
			Timeout:  cfg.Timeout,
		})
	case config.VendorSerpAPI:
		return serp.NewSerpAPI(serp.SerpAPIConfig{
			APIKey:  cfg.SerpAPIKey,
			Timeout: cfg.Timeout,
		})
	case config.VendorSearchAPI:
		return serp.NewSearchAPI(serp.SearchAPIConfig{
			APIKey:  cfg.SearchAPIKey,
			Timeout: cfg.Timeout,
		})
	case config.VendorScraperAPI:
		return serp.NewScraperAPI(serp.ScraperAPIConfig{
			APIKey:  cfg.ScraperAPIKey,
			Timeout: cfg.Timeout,
		})
	case config.VendorBrowser:
		proxyPool, err := buildProxyPool(cfg)
		if err != nil {
			return nil, err
		}
		return serp.NewBrowser(serp.BrowserConfig{
			Headless:  cfg.Headless,
			Timeout:   cfg.Timeout,
			ProxyPool: proxyPool,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vendor %q", cfg.Vendor)
	}
}

func buildProxyPool(cfg *config.Config) (*proxy.Pool, error) {
	if cfg.ProxyFile == "" {
		return nil, nil
	}
	pool := proxy.NewPool(proxy.Config{})
	if err := pool.LoadFile(cfg.ProxyFile); err != nil {
		return nil, fmt.Errorf("load proxy file: %w", err)
	}
	return pool, nil
}

func buildFetcher(cfg *config.Config) (*scraper.Fetcher, error) {
	proxyPool, err := buildProxyPool(cfg)
	if err != nil {
		return nil, err
	}
	return scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      cfg.Timeout,
		MaxRedirects: 5,
		UseCookieJar: true,
		ProxyPool:    proxyPool,
		Fingerprint:  fingerprint.Profile(cfg.Fingerprint),
	})
}

// buildArchive opens the optional incremental archive backend.
func buildArchive(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Archive.Backend {
	case "":
		return nil, nil
	case "jsonl":
		return jsonbackend.New(cfg.Archive.Path)
	case "sqlite":
		return sqlite.New(cfg.Archive.Path)
	case "postgres":
		return postgres.New(ctx, cfg.Archive.DSN)
	case "csv":
		return csvbackend.New(cfg.Archive.Path)
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
}

// runHarvest wires the pipeline together and writes the output artifacts.
func runHarvest(ctx context.Context, cfg *config.Config, logger *slog.Logger, format string) error {
	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	fetcher, err := buildFetcher(cfg)
	if err != nil {
		return err
	}

	var set dedup.Set
	if cfg.RedisAddr != "" {
		set, err = dedup.NewRedisSet(ctx, dedup.RedisConfig{Addr: cfg.RedisAddr})
		if err != nil {
			return err
		}
	} else {
		set = dedup.NewMemorySet()
	}
	defer set.Close()

	archive, err := buildArchive(ctx, cfg)
	if err != nil {
		return err
	}
	if archive != nil {
		defer archive.Close()
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit > 0 {
		limiter = ratelimit.NewLimiter(cfg.RateLimit, 0.1)
		defer limiter.Stop()
	}

	if cfg.MetricsPort > 0 {
		srv := metrics.Start(cfg.MetricsPort)
		defer func() {
			_ = srv.Stop(context.Background())
		}()
		logger.Info("metrics server started", "port", cfg.MetricsPort)
	}

	p, err := pipeline.New(pipeline.Config{
		Queries:          cfg.Queries,
		TargetSite:       cfg.TargetSite,
		MaxQueries:       cfg.MaxQueries,
		MaxPagesPerQuery: cfg.MaxPagesPerQuery,
		MaxURLs:          cfg.MaxURLs,
		Concurrency:      cfg.Concurrency,
		RetryDelay:       cfg.RetryDelay,
		RespectRobots:    cfg.RespectRobots,
		UserAgent:        cfg.UserAgent,
		SeedSitemaps:     cfg.SeedSitemaps,
		CollectOverviews: cfg.CollectOverviews,
	}, pipeline.Options{
		Provider: provider,
		Fetcher:  fetcher,
		Set:      set,
		Archive:  archive,
		Limiter:  limiter,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	spin := spinner.New(spinner.CharSets[9], 100*time.Millisecond)
	spin.Suffix = fmt.Sprintf(" harvesting %s via %s", cfg.TargetSite, provider.Name())
	spin.Start()

	result, runErr := p.Run(ctx)

	spin.Stop()

	if writeErr := writeArtifacts(cfg, provider.Name(), result); writeErr != nil {
		return writeErr
	}

	switch format {
	case "html":
		_ = report.WriteHTML(os.Stdout, result.Summary)
	case "none":
	default:
		_ = report.WriteText(os.Stdout, result.Summary)
	}

	if runErr != nil {
		// Partial output was still written; fail the run only when there is
		// nothing to show for it.
		if len(result.Records) == 0 {
			return runErr
		}
		fmt.Fprintf(os.Stderr, "\nWarning: run ended early: %v\n", runErr)
	}

	return nil
}

// writeArtifacts writes the full-data dump and summary files.
func writeArtifacts(cfg *config.Config, vendor string, result *pipeline.Result) error {
	out, err := os.Create(cfg.OutputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()
	if err := report.WriteDump(out, report.Dump{
		Vendor:      vendor,
		TargetSite:  cfg.TargetSite,
		GeneratedAt: time.Now().UTC(),
		Records:     result.Records,
		Overviews:   result.Overviews,
	}); err != nil {
		return err
	}

	sum, err := os.Create(cfg.SummaryPath)
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	defer sum.Close()
	if err := report.WriteJSON(sum, result.Summary); err != nil {
		return err
	}

	fmt.Printf("Wrote %d records to %s\n", len(result.Records), cfg.OutputPath)
	fmt.Printf("Wrote summary to %s\n\n", cfg.SummaryPath)
	return nil
}
