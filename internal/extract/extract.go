package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/magpie/internal/storage"
	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
)

// ParseError reports a page whose HTML could not be turned into a record.
// The pipeline skips the record and keeps going.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Classify decides what kind of record a URL should produce, from its path
// alone. Shopify-style stores expose /products/ and /collections/ path
// segments; anything else is a generic page until the HTML says otherwise.
func Classify(pageURL string) storage.RecordType {
	u, err := url.Parse(pageURL)
	if err != nil {
		return storage.TypePage
	}

	for _, seg := range strings.Split(u.Path, "/") {
		switch strings.ToLower(seg) {
		case "products", "product":
			return storage.TypeProduct
		case "collections", "collection", "category", "categories":
			return storage.TypeCollection
		}
	}
	return storage.TypePage
}

// Extract parses a fetched page into a structured record. Classification is
// path-based first, with an og:type=product override for stores that keep
// products off the conventional path. Extraction never fails on missing
// fields; only unreadable HTML returns a ParseError.
func Extract(pageURL, sourceQuery string, html []byte) (*storage.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, &ParseError{URL: pageURL, Err: err}
	}

	recordType := Classify(pageURL)
	if recordType == storage.TypePage && metaProperty(doc, "og:type") == "product" {
		recordType = storage.TypeProduct
	}

	record := &storage.Record{
		ID:          uuid.New().String(),
		Type:        recordType,
		SourceURL:   pageURL,
		SourceQuery: sourceQuery,
		ExtractedAt: time.Now().UTC(),
	}

	switch recordType {
	case storage.TypeProduct:
		record.Product = extractProduct(doc)
	case storage.TypeCollection:
		record.Collection = extractCollection(pageURL, doc)
	default:
		record.Page = extractPage(pageURL, doc)
	}

	return record, nil
}

func metaProperty(doc *goquery.Document, prop string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[property=%q]`, prop)).First().Attr("content")
	if content == "" {
		content, _ = doc.Find(fmt.Sprintf(`meta[name=%q]`, prop)).First().Attr("content")
	}
	return strings.TrimSpace(content)
}

func pageTitle(doc *goquery.Document) string {
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	if og := metaProperty(doc, "og:title"); og != "" {
		return og
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func pageDescription(doc *goquery.Document) string {
	if d := metaProperty(doc, "og:description"); d != "" {
		return d
	}
	return metaProperty(doc, "description")
}

func extractProduct(doc *goquery.Document) *storage.Product {
	p := &storage.Product{
		Name:         pageTitle(doc),
		Description:  pageDescription(doc),
		Price:        metaProperty(doc, "og:price:amount"),
		Currency:     metaProperty(doc, "og:price:currency"),
		Availability: metaProperty(doc, "og:availability"),
	}

	if p.Price == "" {
		p.Price = metaProperty(doc, "product:price:amount")
	}
	if p.Currency == "" {
		p.Currency = metaProperty(doc, "product:price:currency")
	}
	if p.SalePrice == "" {
		p.SalePrice = metaProperty(doc, "product:sale_price:amount")
	}
	if p.Availability == "" {
		p.Availability = metaProperty(doc, "product:availability")
	}

	seen := map[string]bool{}
	doc.Find(`meta[property="og:image"], meta[property="og:image:secure_url"]`).Each(func(i int, s *goquery.Selection) {
		if src, ok := s.Attr("content"); ok && src != "" && !seen[src] {
			seen[src] = true
			p.Images = append(p.Images, src)
		}
	})
	doc.Find("img[src]").Each(func(i int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" || seen[src] {
			return
		}
		if strings.Contains(src, "/products/") || strings.Contains(src, "product") {
			seen[src] = true
			p.Images = append(p.Images, src)
		}
	})

	// Shopify variant selectors live inside the add-to-cart form
	doc.Find(`form[action*="/cart/add"] option, select[name="id"] option`).Each(func(i int, s *goquery.Selection) {
		if v := strings.TrimSpace(s.Text()); v != "" {
			p.Variants = append(p.Variants, v)
		}
	})

	return p
}

func extractCollection(pageURL string, doc *goquery.Document) *storage.Collection {
	c := &storage.Collection{
		Title:       pageTitle(doc),
		Description: pageDescription(doc),
	}

	base, _ := url.Parse(pageURL)
	seen := map[string]bool{}
	doc.Find(`a[href*="/products/"], a[href*="/product/"]`).Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		resolved := resolveHref(base, href)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		c.ProductURLs = append(c.ProductURLs, resolved)
	})

	return c
}

func extractPage(pageURL string, doc *goquery.Document) *storage.Page {
	p := &storage.Page{
		Title:       pageTitle(doc),
		Description: pageDescription(doc),
		Metadata:    map[string]string{},
	}

	doc.Find("meta[property], meta[name]").Each(func(i int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok || content == "" {
			return
		}
		key, _ := s.Attr("property")
		if key == "" {
			key, _ = s.Attr("name")
		}
		if key != "" {
			p.Metadata[key] = content
		}
	})

	base, _ := url.Parse(pageURL)
	navSeen := map[string]bool{}
	doc.Find("nav a[href], header a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved := resolveHref(base, href)
		if resolved == "" || navSeen[resolved] {
			return
		}
		navSeen[resolved] = true
		p.NavLinks = append(p.NavLinks, resolved)
	})

	linkSeen := map[string]bool{}
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved := resolveHref(base, href)
		if resolved == "" || linkSeen[resolved] {
			return
		}
		linkSeen[resolved] = true
		p.Links = append(p.Links, resolved)
	})

	return p
}

// resolveHref turns a possibly relative href into an absolute URL, dropping
// fragments, javascript: and mailto: links.
func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	ref.Fragment = ""
	return ref.String()
}
