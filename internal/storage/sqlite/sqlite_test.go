package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/magpie/internal/storage"
)

func TestSQLiteBackend(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "magpie.db")

	b, err := New(dsn)
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	rec1 := &storage.Record{
		ID:          "sq1",
		Type:        storage.TypeProduct,
		SourceURL:   "https://example.com/products/one",
		SourceQuery: "trail shoes",
		ExtractedAt: now.Add(-2 * time.Hour),
		Product:     &storage.Product{Name: "One", Price: "79.99", Currency: "USD"},
	}

	rec2 := &storage.Record{
		ID:          "sq2",
		Type:        storage.TypeCollection,
		SourceURL:   "https://example.com/collections/sale",
		SourceQuery: "sale",
		ExtractedAt: now.Add(-1 * time.Hour),
		Collection:  &storage.Collection{Title: "Sale", ProductURLs: []string{"https://example.com/products/one"}},
	}

	if err := b.Save(ctx, rec1); err != nil {
		t.Fatalf("Failed to save record 1: %v", err)
	}
	if err := b.Save(ctx, rec2); err != nil {
		t.Fatalf("Failed to save record 2: %v", err)
	}

	products, err := b.Query(ctx, storage.Filter{Type: storage.TypeProduct})
	if err != nil {
		t.Fatalf("Failed to query by type: %v", err)
	}
	if len(products) != 1 || products[0].ID != "sq1" {
		t.Fatalf("Expected only sq1 for product filter, got %d results", len(products))
	}
	if products[0].Product == nil || products[0].Product.Currency != "USD" {
		t.Errorf("Expected product payload to round-trip, got %+v", products[0].Product)
	}

	byQuery, err := b.Query(ctx, storage.Filter{SourceQuery: "sale"})
	if err != nil {
		t.Fatalf("Failed to query by source query: %v", err)
	}
	if len(byQuery) != 1 || byQuery[0].ID != "sq2" {
		t.Fatalf("Expected only sq2 for query filter, got %d results", len(byQuery))
	}

	past := now.Add(-90 * time.Minute)
	since, err := b.Query(ctx, storage.Filter{Since: &past})
	if err != nil {
		t.Fatalf("Failed to query by since: %v", err)
	}
	if len(since) != 1 || since[0].ID != "sq2" {
		t.Fatalf("Expected only sq2 for since filter, got %d results", len(since))
	}

	all, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(all))
	}
	if all[0].ID != "sq2" {
		t.Errorf("Expected sq2 first (newest), got %s", all[0].ID)
	}

	limited, err := b.Query(ctx, storage.Filter{Limit: 1})
	if err != nil {
		t.Fatalf("Failed to query limit: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "sq2" {
		t.Fatalf("Expected sq2 with limit 1, got %d results", len(limited))
	}
}

func TestSQLiteBackendReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "magpie.db")
	ctx := context.Background()

	b, err := New(dsn)
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	if err := b.Save(ctx, &storage.Record{
		ID:          "persist",
		Type:        storage.TypePage,
		SourceURL:   "https://example.com/about",
		ExtractedAt: time.Now().UTC(),
		Page:        &storage.Page{Title: "About"},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b2, err := New(dsn)
	if err != nil {
		t.Fatalf("Failed to reopen backend: %v", err)
	}
	defer b2.Close()

	all, err := b2.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 1 || all[0].ID != "persist" {
		t.Fatalf("Expected persisted record after reopen, got %d results", len(all))
	}
}
