package serp

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

const cseResultsPerPage = 10 // API hard limit per request

// GoogleCSEConfig configures the Google Custom Search JSON API provider.
type GoogleCSEConfig struct {
	APIKey   string
	EngineID string
	// Endpoint overrides the API URL, for tests.
	Endpoint string
	Timeout  time.Duration
}

// GoogleCSE searches via the Google Custom Search JSON API.
type GoogleCSE struct {
	cfg    GoogleCSEConfig
	client *vendorClient
}

// NewGoogleCSE creates a Google Custom Search provider.
func NewGoogleCSE(cfg GoogleCSEConfig) (*GoogleCSE, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://www.googleapis.com/customsearch/v1"
	}
	client, err := newVendorClient("googlecse", cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &GoogleCSE{cfg: cfg, client: client}, nil
}

func (g *GoogleCSE) Name() string { return "googlecse" }

type cseResponse struct {
	Items []struct {
		Title       string `json:"title"`
		Link        string `json:"link"`
		Snippet     string `json:"snippet"`
		DisplayLink string `json:"displayLink"`
		PageMap     *struct {
			Metatags []map[string]string `json:"metatags"`
			CSEImage []struct {
				Src string `json:"src"`
			} `json:"cse_image"`
		} `json:"pagemap"`
	} `json:"items"`
}

// Search returns one page of organic results. The API pages by 1-based start
// index in steps of 10 and caps out at 10 pages (100 results).
func (g *GoogleCSE) Search(ctx context.Context, query string, page int) ([]Result, error) {
	params := url.Values{}
	params.Set("key", g.cfg.APIKey)
	params.Set("cx", g.cfg.EngineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(cseResultsPerPage))
	params.Set("start", strconv.Itoa(page*cseResultsPerPage+1))

	var resp cseResponse
	if err := g.client.getJSON(ctx, g.cfg.Endpoint, params, nil, &resp); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(resp.Items))
	for i, item := range resp.Items {
		r := Result{
			URL:         item.Link,
			Title:       item.Title,
			Snippet:     item.Snippet,
			SourceQuery: query,
			Position:    page*cseResultsPerPage + i + 1,
		}

		if item.PageMap != nil {
			meta := make(map[string]string)
			if len(item.PageMap.Metatags) > 0 {
				copyMetatags(meta, item.PageMap.Metatags[0])
			}
			if len(item.PageMap.CSEImage) > 0 && item.PageMap.CSEImage[0].Src != "" {
				meta["image"] = item.PageMap.CSEImage[0].Src
			}
			if len(meta) > 0 {
				r.Metadata = meta
			}
		}

		results = append(results, r)
	}

	return results, nil
}

// metatagKeys are the page metadata fields worth carrying along with a result.
var metatagKeys = []string{
	"description",
	"og:description",
	"og:type",
	"og:site_name",
	"og:price:amount",
	"og:price:currency",
	"og:availability",
	"og:image",
}

func copyMetatags(dst map[string]string, metatags map[string]string) {
	for _, key := range metatagKeys {
		if v, ok := metatags[key]; ok && v != "" {
			dst[key] = v
		}
	}
}
