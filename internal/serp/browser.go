package serp

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/magpie/pkg/proxy"
	"github.com/FranksOps/magpie/pkg/useragent"
	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// overviewSelectors are the DOM probes for the AI Overview block, in the
// order they should be tried. Google rotates these; keep the list current.
var overviewSelectors = []string{
	`div[data-md="311"]`,
	`div[data-attrid*="ai_overview"]`,
	`div[aria-label*="AI Overview"]`,
}

// BrowserConfig configures the chromedp-driven SERP provider.
type BrowserConfig struct {
	Headless bool
	Timeout  time.Duration
	// SearchURL overrides the search page base, for tests.
	SearchURL string
	Language  string
	UAPool    *useragent.Pool
	ProxyPool *proxy.Pool
}

// Browser drives a headless Chrome session to fetch Google result pages
// directly, without a vendor API. It is the slowest provider and the most
// likely to hit bot challenges, but it sees exactly what a user sees.
type Browser struct {
	cfg BrowserConfig
}

// NewBrowser creates a browser-automation provider.
func NewBrowser(cfg BrowserConfig) *Browser {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = "https://www.google.com/search"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	return &Browser{cfg: cfg}
}

func (b *Browser) Name() string { return "browser" }

func (b *Browser) searchURL(query string, page int) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("hl", b.cfg.Language)
	if page > 0 {
		params.Set("start", strconv.Itoa(page*10))
	}
	return b.cfg.SearchURL + "?" + params.Encode()
}

// fetchHTML navigates to the target URL in a fresh browser context and
// returns the rendered document.
func (b *Browser) fetchHTML(ctx context.Context, target string) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(b.cfg.UAPool.GetSequential()),
	)
	if b.cfg.ProxyPool != nil {
		if p := b.cfg.ProxyPool.Next(); p != nil {
			opts = append(opts, chromedp.ProxyServer(p.String()))
		}
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, b.cfg.Timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, &NetworkError{Vendor: b.Name(), Err: err}
	}

	return []byte(html), nil
}

// Search renders one Google result page and scrapes the organic results out
// of the DOM.
func (b *Browser) Search(ctx context.Context, query string, page int) ([]Result, error) {
	html, err := b.fetchHTML(ctx, b.searchURL(query, page))
	if err != nil {
		return nil, err
	}

	if isChallenge(html) {
		return nil, &RateLimitError{Vendor: b.Name()}
	}

	return parseGoogleSERP(query, page, html)
}

// Overview renders the result page and probes the known AI Overview
// selectors.
func (b *Browser) Overview(ctx context.Context, query string) (*Overview, error) {
	html, err := b.fetchHTML(ctx, b.searchURL(query, 0))
	if err != nil {
		return nil, err
	}

	if isChallenge(html) {
		return nil, &RateLimitError{Vendor: b.Name()}
	}

	return parseOverviewHTML(b.Name(), query, html)
}

// isChallenge spots the Google interstitial asking for a captcha, which for
// our purposes is a rate-limit signal.
func isChallenge(html []byte) bool {
	return bytes.Contains(html, []byte("g-recaptcha")) ||
		bytes.Contains(html, []byte("Our systems have detected unusual traffic"))
}

// parseGoogleSERP extracts organic results from a rendered Google SERP.
func parseGoogleSERP(query string, page int, html []byte) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, &NetworkError{Vendor: "browser", Err: fmt.Errorf("parse serp html: %w", err)}
	}

	var results []Result
	doc.Find("div.g").Each(func(i int, s *goquery.Selection) {
		link, ok := s.Find("a[href]").First().Attr("href")
		if !ok || !strings.HasPrefix(link, "http") {
			return
		}
		title := strings.TrimSpace(s.Find("h3").First().Text())
		if title == "" {
			return
		}
		snippet := strings.TrimSpace(s.Find(`div[data-sncf="1"]`).First().Text())
		if snippet == "" {
			snippet = strings.TrimSpace(s.Find("div.VwiC3b").First().Text())
		}

		results = append(results, Result{
			URL:         link,
			Title:       title,
			Snippet:     snippet,
			SourceQuery: query,
			Position:    page*10 + len(results) + 1,
		})
	})

	return results, nil
}

// parseOverviewHTML probes the rendered page for the AI Overview block and
// collects its text and hyperlinks.
func parseOverviewHTML(vendor, query string, html []byte) (*Overview, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, &NetworkError{Vendor: vendor, Err: fmt.Errorf("parse overview html: %w", err)}
	}

	for _, selector := range overviewSelectors {
		block := doc.Find(selector).First()
		if block.Length() == 0 {
			continue
		}

		content := strings.TrimSpace(block.Text())
		if content == "" {
			continue
		}

		var links []string
		block.Find("a[href]").Each(func(i int, a *goquery.Selection) {
			if href, ok := a.Attr("href"); ok && strings.HasPrefix(href, "http") {
				links = append(links, href)
			}
		})

		return &Overview{
			Query:       query,
			Vendor:      vendor,
			Content:     content,
			Links:       links,
			ExtractedAt: time.Now().UTC(),
		}, nil
	}

	return nil, nil
}
