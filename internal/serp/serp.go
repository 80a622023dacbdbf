package serp

import (
	"context"
	"time"
)

// Result is a single organic search result, normalized across vendors.
type Result struct {
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	Snippet     string            `json:"snippet"`
	SourceQuery string            `json:"sourceQuery"`
	Position    int               `json:"position,omitempty"`
	// Metadata carries vendor-supplied page metadata (og: tags etc.) when the
	// vendor returns it alongside the result.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Provider abstracts a search vendor that can return organic results for a
// query. page is zero-based; implementations translate it to whatever offset
// scheme the vendor uses. An empty slice with a nil error means the vendor has
// no more results for the query.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, page int) ([]Result, error)
}

// Overview is the AI Overview (or nearest equivalent answer block) a vendor
// returned for a query.
type Overview struct {
	Query       string    `json:"query"`
	Vendor      string    `json:"vendor"`
	Content     string    `json:"content"`
	Links       []string  `json:"links,omitempty"`
	ExtractedAt time.Time `json:"extractedAt"`
}

// OverviewProvider is implemented by vendors that can surface the Google AI
// Overview block for a query. A nil Overview with a nil error means the query
// produced no overview, which is common and not an error.
type OverviewProvider interface {
	Overview(ctx context.Context, query string) (*Overview, error)
}
