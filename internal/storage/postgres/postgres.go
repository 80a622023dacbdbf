package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/FranksOps/magpie/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	source_url TEXT NOT NULL,
	source_query TEXT,
	extracted_at TIMESTAMPTZ NOT NULL,
	payload JSONB NOT NULL
);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	_, err = pool.Exec(ctx, schema)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, record *storage.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	query := `
	INSERT INTO records (id, type, source_url, source_query, extracted_at, payload)
	VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = b.pool.Exec(ctx, query,
		record.ID,
		string(record.Type),
		record.SourceURL,
		record.SourceQuery,
		record.ExtractedAt,
		payload,
	)

	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Record, error) {
	query := `SELECT payload FROM records WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Type != "" {
		query += fmt.Sprintf(` AND type = $%d`, paramCount)
		args = append(args, string(filter.Type))
		paramCount++
	}
	if filter.SourceQuery != "" {
		query += fmt.Sprintf(` AND source_query = $%d`, paramCount)
		args = append(args, filter.SourceQuery)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND extracted_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY extracted_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
		paramCount++
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var results []*storage.Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}

		var r storage.Record
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}

		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
