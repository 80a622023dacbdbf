package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const testRobots = `User-agent: *
Disallow: /admin/
Allow: /

Sitemap: https://example.com/sitemap.xml
Sitemap: https://example.com/sitemap-products.xml
`

func TestRobotsCheckerIsAllowed(t *testing.T) {
	var fetches int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&fetches, 1)
		w.Write([]byte(testRobots))
	}))
	defer server.Close()

	f := newTestFetcher(t, FetchConfig{Timeout: 5 * time.Second})
	checker := NewRobotsChecker(f, nil)
	ctx := context.Background()

	allowed, err := checker.IsAllowed(ctx, server.URL+"/products/shoe", "magpie")
	if err != nil {
		t.Fatalf("IsAllowed failed: %v", err)
	}
	if !allowed {
		t.Errorf("Expected /products/shoe to be allowed")
	}

	adminAllowed, err := checker.IsAllowed(ctx, server.URL+"/admin/panel", "magpie")
	if err != nil {
		t.Fatalf("IsAllowed failed: %v", err)
	}
	if adminAllowed {
		t.Errorf("Expected /admin/panel to be disallowed")
	}

	// Both checks should have hit the cached policy
	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("Expected robots.txt fetched once, got %d", n)
	}
}

func TestRobotsCheckerFollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/real-robots.txt", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/real-robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testRobots))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f := newTestFetcher(t, FetchConfig{Timeout: 5 * time.Second, MaxRedirects: 5})
	checker := NewRobotsChecker(f, nil)

	allowed, err := checker.IsAllowed(context.Background(), server.URL+"/admin/panel", "magpie")
	if err != nil {
		t.Fatalf("IsAllowed failed: %v", err)
	}
	if allowed {
		t.Errorf("Expected the redirected robots.txt policy to apply")
	}
}

func TestRobotsCheckerMissingDefaultsToAllow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := newTestFetcher(t, FetchConfig{Timeout: 5 * time.Second})
	checker := NewRobotsChecker(f, nil)

	allowed, err := checker.IsAllowed(context.Background(), server.URL+"/anything", "magpie")
	if err != nil {
		t.Fatalf("IsAllowed failed: %v", err)
	}
	if !allowed {
		t.Errorf("Expected missing robots.txt to default to allow")
	}
}

func TestRobotsCheckerUnreachableDefaultsToAllow(t *testing.T) {
	f := newTestFetcher(t, FetchConfig{Timeout: 2 * time.Second})
	checker := NewRobotsChecker(f, nil)

	allowed, err := checker.IsAllowed(context.Background(), "http://127.0.0.1:1/page", "magpie")
	if err != nil {
		t.Fatalf("IsAllowed failed: %v", err)
	}
	if !allowed {
		t.Errorf("Expected unreachable host to default to allow")
	}
}

func TestRobotsCheckerSitemaps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testRobots))
	}))
	defer server.Close()

	f := newTestFetcher(t, FetchConfig{Timeout: 5 * time.Second})
	checker := NewRobotsChecker(f, nil)

	sitemaps, err := checker.Sitemaps(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Sitemaps failed: %v", err)
	}
	if len(sitemaps) != 2 {
		t.Fatalf("Expected 2 sitemap URLs, got %d", len(sitemaps))
	}
	if sitemaps[1] != "https://example.com/sitemap-products.xml" {
		t.Errorf("Unexpected sitemap URL: %q", sitemaps[1])
	}
}

func TestRobotsCheckerSitemapsNoFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := newTestFetcher(t, FetchConfig{Timeout: 5 * time.Second})
	checker := NewRobotsChecker(f, nil)

	sitemaps, err := checker.Sitemaps(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Sitemaps failed: %v", err)
	}
	if len(sitemaps) != 0 {
		t.Errorf("Expected no sitemaps, got %v", sitemaps)
	}
}
