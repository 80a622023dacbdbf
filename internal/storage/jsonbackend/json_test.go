package jsonbackend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/magpie/internal/storage"
)

func TestJSONBackend(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "magpie.jsonl")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create JSON backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond).UTC() // JSON marshals with precision limits

	rec1 := &storage.Record{
		ID:          "json1",
		Type:        storage.TypeProduct,
		SourceURL:   "https://example.com/products/one",
		SourceQuery: "trail shoes",
		ExtractedAt: now.Add(-2 * time.Hour),
		Product:     &storage.Product{Name: "One", Price: "79.99"},
	}

	rec2 := &storage.Record{
		ID:          "json2",
		Type:        storage.TypePage,
		SourceURL:   "https://example.com/about",
		SourceQuery: "about example",
		ExtractedAt: now.Add(-1 * time.Hour),
		Page:        &storage.Page{Title: "About"},
	}

	if err := b.Save(ctx, rec1); err != nil {
		t.Fatalf("Failed to save record 1: %v", err)
	}
	if err := b.Save(ctx, rec2); err != nil {
		t.Fatalf("Failed to save record 2: %v", err)
	}

	// Type filter
	products, err := b.Query(ctx, storage.Filter{Type: storage.TypeProduct})
	if err != nil {
		t.Fatalf("Failed to query by type: %v", err)
	}
	if len(products) != 1 || products[0].ID != "json1" {
		t.Fatalf("Expected only json1 for product filter, got %d results", len(products))
	}
	if products[0].Product == nil || products[0].Product.Price != "79.99" {
		t.Errorf("Expected product payload to round-trip, got %+v", products[0].Product)
	}

	// SourceQuery filter
	byQuery, err := b.Query(ctx, storage.Filter{SourceQuery: "about example"})
	if err != nil {
		t.Fatalf("Failed to query by source query: %v", err)
	}
	if len(byQuery) != 1 || byQuery[0].ID != "json2" {
		t.Fatalf("Expected only json2 for query filter, got %d results", len(byQuery))
	}

	// Since filter
	past := now.Add(-90 * time.Minute)
	since, err := b.Query(ctx, storage.Filter{Since: &past})
	if err != nil {
		t.Fatalf("Failed to query by since: %v", err)
	}
	if len(since) != 1 || since[0].ID != "json2" {
		t.Fatalf("Expected only json2 for since filter, got %d results", len(since))
	}

	// No filters, newest first
	all, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(all))
	}
	if all[0].ID != "json2" {
		t.Errorf("Expected json2 first (newest), got %s", all[0].ID)
	}

	// Limit
	limited, err := b.Query(ctx, storage.Filter{Limit: 1})
	if err != nil {
		t.Fatalf("Failed to query limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(limited))
	}

	// Offset
	offset, err := b.Query(ctx, storage.Filter{Offset: 1})
	if err != nil {
		t.Fatalf("Failed to query offset: %v", err)
	}
	if len(offset) != 1 || offset[0].ID != "json1" {
		t.Fatalf("Expected json1 for offset 1, got %d results", len(offset))
	}
}

func TestJSONBackendSaveAfterQuery(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "magpie.jsonl")
	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	if err := b.Save(ctx, &storage.Record{ID: "a", Type: storage.TypePage, ExtractedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := b.Query(ctx, storage.Filter{}); err != nil {
		t.Fatalf("query: %v", err)
	}
	// The query seeks the file; a subsequent save must still append
	if err := b.Save(ctx, &storage.Record{ID: "b", Type: storage.TypePage, ExtractedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("save after query: %v", err)
	}

	all, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 records after interleaved save, got %d", len(all))
	}
}
