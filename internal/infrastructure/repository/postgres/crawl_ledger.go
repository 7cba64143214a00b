package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/webrag/internal/core/domain"
)

// CrawlLedger mirrors page outcomes and chunk embeddings into Postgres so runs
// can be audited and queried with pgvector outside the file store.
type CrawlLedger struct {
	db *sql.DB
}

func NewCrawlLedger(db *sql.DB) *CrawlLedger {
	return &CrawlLedger{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (l *CrawlLedger) EnsureSchema(ctx context.Context) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Concurrent runs against one database race on CREATE EXTENSION otherwise.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS crawl_pages (
	url TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	error_kind TEXT,
	error_message TEXT,
	title TEXT,
	description TEXT,
	method TEXT,
	http_status INTEGER NOT NULL DEFAULT 0,
	chunks_indexed INTEGER NOT NULL DEFAULT 0,
	chunks_skipped INTEGER NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	extracted_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS crawl_chunks (
	chunk_id TEXT PRIMARY KEY,
	source_url TEXT NOT NULL,
	sequence_index INTEGER NOT NULL,
	heading_path JSONB NOT NULL DEFAULT '[]'::jsonb,
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	embedding vector NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_crawl_pages_status ON crawl_pages(status);
CREATE INDEX IF NOT EXISTS idx_crawl_chunks_source_url ON crawl_chunks(source_url);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (l *CrawlLedger) RecordPage(ctx context.Context, outcome domain.PageOutcome) error {
	var extractedAt sql.NullTime
	if !outcome.ExtractedAt.IsZero() {
		extractedAt = sql.NullTime{Time: outcome.ExtractedAt, Valid: true}
	}

	_, err := l.db.ExecContext(ctx, `
INSERT INTO crawl_pages (
	url, status, error_kind, error_message, title, description, method, http_status,
	chunks_indexed, chunks_skipped, duration_ms, extracted_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (url) DO UPDATE SET
	status = EXCLUDED.status,
	error_kind = EXCLUDED.error_kind,
	error_message = EXCLUDED.error_message,
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	method = EXCLUDED.method,
	http_status = EXCLUDED.http_status,
	chunks_indexed = EXCLUDED.chunks_indexed,
	chunks_skipped = EXCLUDED.chunks_skipped,
	duration_ms = EXCLUDED.duration_ms,
	extracted_at = EXCLUDED.extracted_at,
	updated_at = EXCLUDED.updated_at
`,
		outcome.URL, string(outcome.Status), string(outcome.ErrorKind), outcome.Error,
		outcome.Title, outcome.Description, outcome.Method, outcome.HTTPStatus,
		outcome.Indexed, outcome.Skipped, outcome.Duration.Milliseconds(), extractedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert crawl page: %w", err)
	}
	return nil
}

func (l *CrawlLedger) RecordVectors(ctx context.Context, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vectors tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	for _, rec := range records {
		headingPath, err := json.Marshal(nonNilStrings(rec.Chunk.HeadingPath))
		if err != nil {
			return fmt.Errorf("marshal heading path: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO crawl_chunks (
	chunk_id, source_url, sequence_index, heading_path, content, content_hash, embedding, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (chunk_id) DO UPDATE SET
	heading_path = EXCLUDED.heading_path,
	content = EXCLUDED.content,
	content_hash = EXCLUDED.content_hash,
	embedding = EXCLUDED.embedding,
	updated_at = EXCLUDED.updated_at
`,
			rec.ChunkID, rec.Chunk.SourceURL, rec.Chunk.SequenceIndex, headingPath,
			rec.Chunk.Text, rec.ContentHash, pgvector.NewVector(rec.Vector), now,
		)
		if err != nil {
			return fmt.Errorf("upsert crawl chunk %s: %w", rec.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit vectors tx: %w", err)
	}
	return nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
