package serp

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// SerpAPIConfig configures the SerpAPI provider.
type SerpAPIConfig struct {
	APIKey string
	// Endpoint overrides the API URL, for tests.
	Endpoint string
	// Country and Language map to the gl/hl parameters. Defaults: us/en.
	Country  string
	Language string
	Timeout  time.Duration
}

// SerpAPI searches Google through serpapi.com.
type SerpAPI struct {
	cfg    SerpAPIConfig
	client *vendorClient
}

// NewSerpAPI creates a SerpAPI provider.
func NewSerpAPI(cfg SerpAPIConfig) (*SerpAPI, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://serpapi.com/search"
	}
	if cfg.Country == "" {
		cfg.Country = "us"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	client, err := newVendorClient("serpapi", cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &SerpAPI{cfg: cfg, client: client}, nil
}

func (s *SerpAPI) Name() string { return "serpapi" }

type serpapiResponse struct {
	OrganicResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
	} `json:"organic_results"`
	serpPayload
}

func (s *SerpAPI) params(query string) url.Values {
	params := url.Values{}
	params.Set("api_key", s.cfg.APIKey)
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("google_domain", "google.com")
	params.Set("gl", s.cfg.Country)
	params.Set("hl", s.cfg.Language)
	return params
}

// Search returns one page of organic results. SerpAPI pages by a 0-based
// result offset in the start parameter.
func (s *SerpAPI) Search(ctx context.Context, query string, page int) ([]Result, error) {
	params := s.params(query)
	if page > 0 {
		params.Set("start", strconv.Itoa(page*10))
	}

	var resp serpapiResponse
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

// Overview fetches the AI Overview block for a query, falling back through
// the answer surfaces Google may use instead.
func (s *SerpAPI) Overview(ctx context.Context, query string) (*Overview, error) {
	var resp serpapiResponse
	if err := s.client.getJSON(ctx, s.cfg.Endpoint, s.params(query), nil, &resp); err != nil {
		return nil, err
	}
	return overviewFromPayload(s.Name(), query, &resp.serpPayload), nil
}
