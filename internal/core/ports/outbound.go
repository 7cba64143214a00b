package ports

import (
	"context"
	"time"

	"github.com/kirillkom/webrag/internal/core/domain"
)

// PolicyGate answers whether a URL may be crawled and how far apart requests to its domain must be.
type PolicyGate interface {
	IsAllowed(ctx context.Context, rawURL string) (bool, error)
	Policy(ctx context.Context, rawURL string) (domain.SitePolicy, error)
}

// PageFetcher retrieves a page body. Only called for URLs the PolicyGate allows.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*domain.Page, error)
}

// ContentExtractor turns a fetched page into normalized markdown.
type ContentExtractor interface {
	Extract(ctx context.Context, page *domain.Page) (*domain.CleanedDocument, error)
}

// Chunker splits a cleaned document into retrieval-sized chunks.
type Chunker interface {
	Chunk(doc *domain.CleanedDocument) []domain.Chunk
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the append-only chunk vector index.
type VectorStore interface {
	Info(ctx context.Context) (domain.StoreInfo, error)
	// Bind records the embedding model on an empty store or verifies it on a populated one.
	Bind(ctx context.Context, model string, dimensions int) error
	ExistingHashes(ctx context.Context, chunkIDs []string) (map[string]string, error)
	Append(ctx context.Context, records []domain.VectorRecord) error
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.QueryResult, error)
	Flush(ctx context.Context) error
}

// OutputWriter persists per-site documents, the combined chunk list, and the run summary.
type OutputWriter interface {
	WriteSiteDocument(ctx context.Context, outcome domain.PageOutcome) error
	WriteCombined(ctx context.Context, chunks []domain.Chunk) error
	WriteSummary(ctx context.Context, summary domain.RunSummary) error
}

// CrawlLedger mirrors page outcomes and vectors into a database.
type CrawlLedger interface {
	RecordPage(ctx context.Context, outcome domain.PageOutcome) error
	RecordVectors(ctx context.Context, records []domain.VectorRecord) error
}

// EventPublisher announces a flushed store to downstream consumers.
type EventPublisher interface {
	PublishStoreFlushed(ctx context.Context, event domain.StoreFlushed) error
}

// PipelineObserver receives per-page progress for metrics.
type PipelineObserver interface {
	StartPage()
	FinishPage(outcome domain.PageOutcome)
	ObserveStage(stage string, duration time.Duration)
}
