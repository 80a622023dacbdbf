package storage

import (
	"context"
	"time"
)

// RecordType classifies an extracted record by the kind of page it came from.
type RecordType string

const (
	TypeProduct    RecordType = "product"
	TypeCollection RecordType = "collection"
	TypePage       RecordType = "page"
)

// Product holds fields extracted from a product detail page.
type Product struct {
	Name         string   `json:"name"`
	Price        string   `json:"price,omitempty"`
	SalePrice    string   `json:"salePrice,omitempty"`
	Currency     string   `json:"currency,omitempty"`
	Availability string   `json:"availability,omitempty"`
	Description  string   `json:"description,omitempty"`
	Images       []string `json:"images,omitempty"`
	Variants     []string `json:"variants,omitempty"`
}

// Collection holds fields extracted from a collection/listing page.
type Collection struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	ProductURLs []string `json:"productUrls,omitempty"`
}

// Page holds fields extracted from any page that is neither a product nor a
// collection. Missing fields stay empty; partial data is expected.
type Page struct {
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	NavLinks    []string          `json:"navLinks,omitempty"`
	Links       []string          `json:"links,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Record is the outcome of extracting one page. Exactly one of Product,
// Collection, or Page is set, matching Type.
type Record struct {
	ID          string         `json:"id"`
	Type        RecordType     `json:"type"`
	SourceURL   string         `json:"sourceUrl"`
	SourceQuery string         `json:"sourceQuery,omitempty"`
	ExtractedAt time.Time      `json:"extractedAt"`
	Product     *Product       `json:"product,omitempty"`
	Collection  *Collection    `json:"collection,omitempty"`
	Page        *Page          `json:"page,omitempty"`
	TermMatches map[string]int `json:"termMatches,omitempty"`
}

// Title returns the human-readable title of the record regardless of variant.
func (r *Record) Title() string {
	switch {
	case r.Product != nil:
		return r.Product.Name
	case r.Collection != nil:
		return r.Collection.Title
	case r.Page != nil:
		return r.Page.Title
	}
	return ""
}

// Filter allows querying for specific Records.
type Filter struct {
	Type        RecordType
	SourceQuery string
	Since       *time.Time
	Limit       int
	Offset      int
}

// Backend defines the interface for archiving and querying extracted records.
// Backends save incrementally, one record at a time, as the pipeline produces
// them.
type Backend interface {
	Save(ctx context.Context, record *Record) error
	Query(ctx context.Context, filter Filter) ([]*Record, error)
	Close() error
}
