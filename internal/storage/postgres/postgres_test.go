package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/FranksOps/magpie/internal/storage"
)

// TestPostgresBackend needs a live database; set MAGPIE_TEST_PG_DSN to run it.
func TestPostgresBackend(t *testing.T) {
	dsn := os.Getenv("MAGPIE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("MAGPIE_TEST_PG_DSN not set, skipping Postgres test")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer b.Close()

	now := time.Now().UTC()
	runID := fmt.Sprintf("pgtest-%d", now.UnixNano())

	rec1 := &storage.Record{
		ID:          runID + "-1",
		Type:        storage.TypeProduct,
		SourceURL:   "https://example.com/products/one",
		SourceQuery: runID,
		ExtractedAt: now.Add(-2 * time.Hour),
		Product:     &storage.Product{Name: "One", Price: "79.99"},
	}
	rec2 := &storage.Record{
		ID:          runID + "-2",
		Type:        storage.TypePage,
		SourceURL:   "https://example.com/about",
		SourceQuery: runID,
		ExtractedAt: now.Add(-1 * time.Hour),
		Page:        &storage.Page{Title: "About"},
	}

	if err := b.Save(ctx, rec1); err != nil {
		t.Fatalf("Failed to save record 1: %v", err)
	}
	if err := b.Save(ctx, rec2); err != nil {
		t.Fatalf("Failed to save record 2: %v", err)
	}

	// Scope all queries to this run via the unique source query
	all, err := b.Query(ctx, storage.Filter{SourceQuery: runID})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(all))
	}
	if all[0].ID != runID+"-2" {
		t.Errorf("Expected newest record first, got %s", all[0].ID)
	}

	products, err := b.Query(ctx, storage.Filter{SourceQuery: runID, Type: storage.TypeProduct})
	if err != nil {
		t.Fatalf("Failed to query by type: %v", err)
	}
	if len(products) != 1 || products[0].ID != runID+"-1" {
		t.Fatalf("Expected only the product record, got %d results", len(products))
	}
	if products[0].Product == nil || products[0].Product.Price != "79.99" {
		t.Errorf("Expected product payload to round-trip, got %+v", products[0].Product)
	}

	past := now.Add(-90 * time.Minute)
	since, err := b.Query(ctx, storage.Filter{SourceQuery: runID, Since: &past})
	if err != nil {
		t.Fatalf("Failed to query by since: %v", err)
	}
	if len(since) != 1 || since[0].ID != runID+"-2" {
		t.Fatalf("Expected only the newer record for since filter, got %d results", len(since))
	}
}
