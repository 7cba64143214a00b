package ports

import (
	"context"

	"github.com/kirillkom/webrag/internal/core/domain"
)

// CrawlRunner is the inbound contract for the batch fetch-to-index pipeline.
type CrawlRunner interface {
	Run(ctx context.Context, urls []string) (*domain.RunSummary, error)
}

// ChunkSearcher is the inbound contract for similarity search over the built store.
type ChunkSearcher interface {
	Search(ctx context.Context, query string, k int) ([]domain.QueryResult, error)
}
