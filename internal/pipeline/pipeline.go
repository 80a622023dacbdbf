package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/FranksOps/magpie/internal/analyzer"
	"github.com/FranksOps/magpie/internal/dedup"
	"github.com/FranksOps/magpie/internal/extract"
	"github.com/FranksOps/magpie/internal/metrics"
	"github.com/FranksOps/magpie/internal/report"
	"github.com/FranksOps/magpie/internal/scraper"
	"github.com/FranksOps/magpie/internal/serp"
	"github.com/FranksOps/magpie/internal/storage"
	"github.com/FranksOps/magpie/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
)

// Config holds the knobs for one harvest run.
type Config struct {
	// Queries are the raw search queries to run. When TargetSite is set, each
	// query is scoped to it with a site: operator unless it already has one.
	Queries    []string
	TargetSite string

	// MaxQueries caps the total number of search API calls across the run.
	// Zero means no cap.
	MaxQueries int
	// MaxPagesPerQuery caps result pagination per query. Zero means one page.
	MaxPagesPerQuery int
	// MaxURLs caps how many unique URLs enter the extraction phase.
	MaxURLs int

	// Concurrency bounds the extraction workers. Zero or one means pages are
	// fetched strictly in discovery order.
	Concurrency int

	// RetryDelay is how long to wait before the single retry after a vendor
	// rate limit.
	RetryDelay time.Duration

	RespectRobots    bool
	UserAgent        string
	SeedSitemaps     bool
	CollectOverviews bool
}

// Pipeline orchestrates a harvest: search the vendor, dedup the URLs, fetch
// and extract each page, and aggregate a summary.
type Pipeline struct {
	cfg      Config
	provider serp.Provider
	fetcher  *scraper.Fetcher
	robots   *scraper.RobotsChecker
	sitemaps *scraper.SitemapFetcher
	set      dedup.Set
	archive  storage.Backend
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
}

// Options carries the collaborators a Pipeline needs. Archive and Limiter are
// optional.
type Options struct {
	Provider serp.Provider
	Fetcher  *scraper.Fetcher
	Set      dedup.Set
	Archive  storage.Backend
	Limiter  *ratelimit.Limiter
	Logger   *slog.Logger
}

// New validates the collaborators and builds a Pipeline.
func New(cfg Config, opts Options) (*Pipeline, error) {
	if opts.Provider == nil {
		return nil, errors.New("pipeline: provider is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("pipeline: fetcher is required")
	}
	if opts.Set == nil {
		opts.Set = dedup.NewMemorySet()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxPagesPerQuery <= 0 {
		cfg.MaxPagesPerQuery = 1
	}

	return &Pipeline{
		cfg:      cfg,
		provider: opts.Provider,
		fetcher:  opts.Fetcher,
		robots:   scraper.NewRobotsChecker(opts.Fetcher, opts.Logger),
		sitemaps: scraper.NewSitemapFetcher(opts.Fetcher, opts.Logger),
		set:      opts.Set,
		archive:  opts.Archive,
		limiter:  opts.Limiter,
		logger:   opts.Logger,
	}, nil
}

// Result is everything a run produced.
type Result struct {
	Records   []*storage.Record
	Overviews []*serp.Overview
	Summary   report.Summary
}

// target pairs a deduplicated URL with the query and snippet context it was
// discovered through.
type target struct {
	url         string
	sourceQuery string
}

// Run executes the full harvest. A vendor auth failure aborts the search
// phase but the run still extracts and returns whatever was collected; the
// auth error comes back alongside the partial Result.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{}
	res.Summary.Vendor = p.provider.Name()
	res.Summary.TargetSite = p.cfg.TargetSite
	res.Summary.StartTime = time.Now().UTC()

	queries := p.planQueries()
	res.Summary.QueriesPlanned = len(queries)

	targets, searchErr := p.searchPhase(ctx, queries, &res.Summary)

	if p.cfg.SeedSitemaps && p.cfg.TargetSite != "" {
		p.seedFromSitemaps(ctx, &targets, &res.Summary)
	}

	res.Summary.UniqueURLs = len(targets)

	if p.cfg.CollectOverviews && searchErr == nil {
		res.Overviews = p.overviewPhase(ctx, queries, &res.Summary)
	}

	records, err := p.extractPhase(ctx, targets, &res.Summary)
	if err != nil {
		res.Summary.Finalize(time.Now().UTC())
		return res, err
	}
	res.Records = records

	res.Summary.CountRecords(records)
	res.Summary.Finalize(time.Now().UTC())

	return res, searchErr
}

// planQueries scopes each query to the target site.
func (p *Pipeline) planQueries() []string {
	queries := make([]string, 0, len(p.cfg.Queries))
	for _, q := range p.cfg.Queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if p.cfg.TargetSite != "" && !strings.Contains(q, "site:") {
			q = q + " site:" + p.cfg.TargetSite
		}
		queries = append(queries, q)
	}
	return queries
}

// searchPhase runs every planned query through the vendor and returns the
// deduplicated extraction targets in discovery order.
func (p *Pipeline) searchPhase(ctx context.Context, queries []string, summary *report.Summary) ([]target, error) {
	var targets []target

	for _, query := range queries {
		for page := 0; page < p.cfg.MaxPagesPerQuery; page++ {
			if p.cfg.MaxQueries > 0 && summary.SearchCalls >= p.cfg.MaxQueries {
				summary.QuotaLimited = true
				p.logger.Warn("search call budget exhausted", "calls", summary.SearchCalls)
				return targets, nil
			}

			if p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					return targets, fmt.Errorf("rate limiter: %w", err)
				}
			}

			results, err := p.searchWithRetry(ctx, query, page, summary)
			if err != nil {
				var authErr *serp.AuthError
				if errors.As(err, &authErr) {
					// Credentials are dead; no point sending more queries.
					p.logger.Error("vendor rejected credentials, aborting search phase",
						"vendor", authErr.Vendor, "query", query)
					return targets, err
				}
				summary.SkippedErrors++
				p.logger.Warn("query skipped", "query", query, "err", err)
				break
			}

			if len(results) == 0 {
				break
			}

			summary.ResultsSeen += len(results)

			for _, r := range results {
				if p.cfg.MaxURLs > 0 && len(targets) >= p.cfg.MaxURLs {
					return targets, nil
				}

				normalized, err := dedup.Normalize(r.URL)
				if err != nil {
					p.logger.Debug("unparseable result url", "url", r.URL, "err", err)
					continue
				}

				first, err := p.set.Visit(ctx, normalized)
				if err != nil {
					return targets, fmt.Errorf("dedup: %w", err)
				}
				if !first {
					continue
				}

				targets = append(targets, target{url: normalized, sourceQuery: r.SourceQuery})
			}
		}
	}

	return targets, nil
}

// searchWithRetry performs one vendor call, retrying exactly once after a
// rate limit.
func (p *Pipeline) searchWithRetry(ctx context.Context, query string, page int, summary *report.Summary) ([]serp.Result, error) {
	summary.SearchCalls++
	results, err := p.provider.Search(ctx, query, page)
	if err == nil {
		metrics.RecordSearch(p.provider.Name(), "ok")
		return results, nil
	}

	var rateErr *serp.RateLimitError
	if !errors.As(err, &rateErr) {
		metrics.RecordSearch(p.provider.Name(), searchStatus(err))
		return nil, err
	}

	summary.RateLimitHits++
	metrics.RecordSearch(p.provider.Name(), "rate_limited")
	p.logger.Warn("vendor rate limited, retrying once", "query", query, "delay", p.cfg.RetryDelay)

	select {
	case <-time.After(p.cfg.RetryDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	summary.SearchCalls++
	results, err = p.provider.Search(ctx, query, page)
	if err != nil {
		metrics.RecordSearch(p.provider.Name(), searchStatus(err))
		return nil, err
	}
	metrics.RecordSearch(p.provider.Name(), "ok")
	return results, nil
}

func searchStatus(err error) string {
	var authErr *serp.AuthError
	var rateErr *serp.RateLimitError
	switch {
	case errors.As(err, &authErr):
		return "auth_error"
	case errors.As(err, &rateErr):
		return "rate_limited"
	default:
		return "network_error"
	}
}

// seedFromSitemaps augments the target list with URLs from the target site's
// sitemaps, up to the URL cap. Sitemap failures only cost the seeds.
func (p *Pipeline) seedFromSitemaps(ctx context.Context, targets *[]target, summary *report.Summary) {
	sitemapURLs, err := p.robots.Sitemaps(ctx, p.cfg.TargetSite)
	if err != nil || len(sitemapURLs) == 0 {
		sitemapURLs = []string{"https://" + p.cfg.TargetSite + "/sitemap.xml"}
	}

	for _, sm := range sitemapURLs {
		urls, err := p.sitemaps.FetchSitemap(ctx, sm)
		if err != nil {
			p.logger.Debug("sitemap seeding failed", "sitemap", sm, "err", err)
			continue
		}

		for _, raw := range urls {
			if p.cfg.MaxURLs > 0 && len(*targets) >= p.cfg.MaxURLs {
				return
			}

			normalized, err := dedup.Normalize(raw)
			if err != nil {
				continue
			}
			if !p.onTargetSite(normalized) {
				continue
			}

			first, err := p.set.Visit(ctx, normalized)
			if err != nil || !first {
				continue
			}

			*targets = append(*targets, target{url: normalized, sourceQuery: "sitemap"})
		}
	}
}

func (p *Pipeline) onTargetSite(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	site := strings.TrimPrefix(strings.ToLower(p.cfg.TargetSite), "www.")
	return host == site || strings.HasSuffix(host, "."+site)
}

// overviewPhase collects the AI Overview for each query, when the vendor
// supports it. Overview failures never fail the run.
func (p *Pipeline) overviewPhase(ctx context.Context, queries []string, summary *report.Summary) []*serp.Overview {
	op, ok := p.provider.(serp.OverviewProvider)
	if !ok {
		p.logger.Debug("vendor has no overview support", "vendor", p.provider.Name())
		return nil
	}

	var overviews []*serp.Overview
	for _, query := range queries {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return overviews
			}
		}

		o, err := op.Overview(ctx, query)
		if err != nil {
			summary.SkippedErrors++
			p.logger.Warn("overview fetch failed", "query", query, "err", err)
			continue
		}
		if o == nil {
			continue
		}
		overviews = append(overviews, o)
		summary.OverviewsFound++
	}
	return overviews
}

// extractPhase fetches every target and turns the pages into records. Fetch
// and parse failures skip the page and count against SkippedErrors.
func (p *Pipeline) extractPhase(ctx context.Context, targets []target, summary *report.Summary) ([]*storage.Record, error) {
	var (
		mu      sync.Mutex
		records []*storage.Record
		skipped int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for _, t := range targets {
		t := t
		g.Go(func() error {
			record, ok := p.extractOne(gctx, t)
			mu.Lock()
			defer mu.Unlock()
			if !ok {
				skipped++
				return nil
			}
			records = append(records, record)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return records, err
	}

	summary.SkippedErrors += skipped
	return records, nil
}

// extractOne fetches and parses a single target. A false return means the
// page was skipped.
func (p *Pipeline) extractOne(ctx context.Context, t target) (*storage.Record, bool) {
	if p.cfg.RespectRobots {
		allowed, err := p.robots.IsAllowed(ctx, t.url, p.cfg.UserAgent)
		if err == nil && !allowed {
			p.logger.Debug("robots.txt disallows url", "url", t.url)
			return nil, false
		}
	}

	res, err := p.fetcher.Fetch(ctx, t.url)
	if err != nil {
		p.logger.Warn("fetch failed", "url", t.url, "err", err)
		return nil, false
	}

	metrics.RecordFetch(hostOf(t.url), res.StatusCode, res.Blocked, res.Error, res.Duration)

	if res.Error != "" {
		p.logger.Warn("fetch error, skipping page", "url", t.url, "err", res.Error)
		return nil, false
	}
	if res.Blocked {
		p.logger.Warn("bot protection triggered, skipping page", "url", t.url, "source", res.BlockSource)
		return nil, false
	}
	if res.StatusCode >= 400 {
		p.logger.Warn("bad status, skipping page", "url", t.url, "status", res.StatusCode)
		return nil, false
	}

	record, err := extract.Extract(t.url, t.sourceQuery, res.Body)
	if err != nil {
		p.logger.Warn("extraction failed, skipping record", "url", t.url, "err", err)
		return nil, false
	}

	if terms := analyzer.QueryTerms(t.sourceQuery); len(terms) > 0 {
		record.TermMatches = analyzer.CountTermMatches(string(res.Body), terms)
	}

	metrics.RecordExtracted(string(record.Type))

	if p.archive != nil {
		if err := p.archive.Save(ctx, record); err != nil {
			// The in-memory copy still makes it to the final dump.
			p.logger.Warn("archive save failed", "url", t.url, "err", err)
		}
	}

	p.logger.Info("page extracted", "url", t.url, "type", record.Type)
	return record, true
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	return u.Host
}
