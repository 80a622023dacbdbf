package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const flatSitemap = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/products/one</loc></url>
  <url><loc>https://example.com/products/two</loc></url>
  <url><loc>https://example.com/about</loc></url>
</urlset>`

func TestFetchSitemapFlat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(flatSitemap))
	}))
	defer server.Close()

	f := newTestFetcher(t, FetchConfig{Timeout: 5 * time.Second})
	sf := NewSitemapFetcher(f, nil)

	urls, err := sf.FetchSitemap(context.Background(), server.URL+"/sitemap.xml")
	if err != nil {
		t.Fatalf("FetchSitemap failed: %v", err)
	}

	if len(urls) != 3 {
		t.Fatalf("Expected 3 URLs, got %d", len(urls))
	}
	if urls[0] != "https://example.com/products/one" {
		t.Errorf("Unexpected first URL: %q", urls[0])
	}
}

func TestFetchSitemapIndex(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/sitemap-products.xml</loc></sitemap>
  <sitemap><loc>%s/sitemap-missing.xml</loc></sitemap>
</sitemapindex>`, server.URL, server.URL)
	})
	mux.HandleFunc("/sitemap-products.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(flatSitemap))
	})
	// sitemap-missing.xml 404s; the fetcher should warn and continue

	f := newTestFetcher(t, FetchConfig{Timeout: 5 * time.Second})
	sf := NewSitemapFetcher(f, nil)

	urls, err := sf.FetchSitemap(context.Background(), server.URL+"/sitemap.xml")
	if err != nil {
		t.Fatalf("FetchSitemap failed: %v", err)
	}

	if len(urls) != 3 {
		t.Fatalf("Expected 3 URLs from the nested sitemap, got %d", len(urls))
	}
}

func TestFetchSitemapBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := newTestFetcher(t, FetchConfig{Timeout: 5 * time.Second})
	sf := NewSitemapFetcher(f, nil)

	if _, err := sf.FetchSitemap(context.Background(), server.URL+"/sitemap.xml"); err == nil {
		t.Errorf("Expected error for 404 sitemap")
	}
}

func TestFetchSitemapGarbage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not xml"))
	}))
	defer server.Close()

	f := newTestFetcher(t, FetchConfig{Timeout: 5 * time.Second})
	sf := NewSitemapFetcher(f, nil)

	if _, err := sf.FetchSitemap(context.Background(), server.URL+"/sitemap.xml"); err == nil {
		t.Errorf("Expected error for non-XML content")
	}
}
