package serp

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ScraperAPIConfig configures the ScraperAPI structured Google search provider.
type ScraperAPIConfig struct {
	APIKey string
	// Endpoint overrides the API URL, for tests.
	Endpoint string
	Country  string
	Language string
	Timeout  time.Duration
}

// ScraperAPI searches Google through ScraperAPI's structured data endpoint,
// which proxies the search and autoparses the result page into JSON.
type ScraperAPI struct {
	cfg    ScraperAPIConfig
	client *vendorClient
}

// NewScraperAPI creates a ScraperAPI provider.
func NewScraperAPI(cfg ScraperAPIConfig) (*ScraperAPI, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.scraperapi.com/structured/google/search"
	}
	if cfg.Country == "" {
		cfg.Country = "us"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	client, err := newVendorClient("scraperapi", cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &ScraperAPI{cfg: cfg, client: client}, nil
}

func (s *ScraperAPI) Name() string { return "scraperapi" }

type scraperapiResponse struct {
	OrganicResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
	} `json:"organic_results"`
	serpPayload
}

func (s *ScraperAPI) params(query string) url.Values {
	params := url.Values{}
	params.Set("api_key", s.cfg.APIKey)
	params.Set("autoparse", "true")
	params.Set("query", query)
	params.Set("country", s.cfg.Country)
	params.Set("hl", s.cfg.Language)
	return params
}

// Search returns one page of organic results.
func (s *ScraperAPI) Search(ctx context.Context, query string, page int) ([]Result, error) {
	params := s.params(query)
	if page > 0 {
		params.Set("page", strconv.Itoa(page+1))
	}

	var resp scraperapiResponse
	if err := s.client.getJSON(ctx, s.cfg.Endpoint, params, nil, &resp); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(resp.OrganicResults))
	for _, item := range resp.OrganicResults {
		results = append(results, Result{
			URL:         item.Link,
			Title:       item.Title,
			Snippet:     item.Snippet,
			SourceQuery: query,
			Position:    item.Position,
		})
	}

	return results, nil
}

// Overview fetches the AI Overview for a query. ScraperAPI does not document
// a stable field for the overview block, so after the standard fallback chain
// we scan the top-level keys for anything that looks like generative content
// and carry it verbatim.
func (s *ScraperAPI) Overview(ctx context.Context, query string) (*Overview, error) {
	var raw map[string]json.RawMessage
	if err := s.client.getJSON(ctx, s.cfg.Endpoint, s.params(query), nil, &raw); err != nil {
		return nil, err
	}

	// Re-decode the known answer surfaces and try the standard chain first.
	buf, err := json.Marshal(raw)
	if err == nil {
		var payload serpPayload
		if json.Unmarshal(buf, &payload) == nil {
			if o := overviewFromPayload(s.Name(), query, &payload); o != nil {
				return o, nil
			}
		}
	}

	for key, val := range raw {
		lower := strings.ToLower(key)
		if !strings.Contains(lower, "ai_overview") && !strings.Contains(lower, "generative") {
			continue
		}
		content := strings.TrimSpace(string(val))
		if content == "" || content == "null" {
			continue
		}
		return &Overview{
			Query:       query,
			Vendor:      s.Name(),
			Content:     content,
			ExtractedAt: time.Now().UTC(),
		}, nil
	}

	return nil, nil
}
