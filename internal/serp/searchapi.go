package serp

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// SearchAPIConfig configures the SearchApi.io provider.
type SearchAPIConfig struct {
	APIKey string
	// Endpoint overrides the API URL, for tests.
	Endpoint string
	Timeout  time.Duration
}

// SearchAPI searches Google through searchapi.io. The key travels in an
// Authorization header rather than a query parameter.
type SearchAPI struct {
	cfg    SearchAPIConfig
	client *vendorClient
}

// NewSearchAPI creates a SearchApi.io provider.
func NewSearchAPI(cfg SearchAPIConfig) (*SearchAPI, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://www.searchapi.io/api/v1/search"
	}
	client, err := newVendorClient("searchapi", cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &SearchAPI{cfg: cfg, client: client}, nil
}

func (s *SearchAPI) Name() string { return "searchapi" }

type searchapiResponse struct {
	OrganicResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
	} `json:"organic_results"`
	serpPayload
}

func (s *SearchAPI) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+s.cfg.APIKey)
	return h
}

// Search returns one page of organic results. SearchApi.io pages by a 1-based
// page number.
func (s *SearchAPI) Search(ctx context.Context, query string, page int) ([]Result, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	if page > 0 {
		params.Set("page", strconv.Itoa(page+1))
	}

	var resp searchapiResponse
	if err := s.client.getJSON(ctx, s.cfg.Endpoint, params, s.header(), &resp); err != nil {
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

// Overview fetches the AI Overview block for a query.
func (s *SearchAPI) Overview(ctx context.Context, query string) (*Overview, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)

	var resp searchapiResponse
	if err := s.client.getJSON(ctx, s.cfg.Endpoint, params, s.header(), &resp); err != nil {
		return nil, err
	}
	return overviewFromPayload(s.Name(), query, &resp.serpPayload), nil
}
