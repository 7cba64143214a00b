package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kirillkom/webrag/internal/core/domain"
	"github.com/kirillkom/webrag/internal/core/ports"
)

const defaultEmbedBatchSize = 32

type IndexResult struct {
	Indexed int
	Skipped int
	Records []domain.VectorRecord
}

// Indexer embeds a page's chunks and appends them to the store in one
// write. Chunks whose id is already stored with the same content hash are
// skipped.
type Indexer struct {
	embedder  ports.Embedder
	store     ports.VectorStore
	batchSize int

	mu        sync.Mutex
	boundDims int
}

func NewIndexer(embedder ports.Embedder, store ports.VectorStore, batchSize int) *Indexer {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	return &Indexer{
		embedder:  embedder,
		store:     store,
		batchSize: batchSize,
	}
}

// Prepare binds the active model to the store before any page is processed.
func (ix *Indexer) Prepare(ctx context.Context) error {
	return ix.store.Bind(ctx, ix.embedder.Model(), 0)
}

func (ix *Indexer) Index(ctx context.Context, chunks []domain.Chunk) (IndexResult, error) {
	var result IndexResult
	if len(chunks) == 0 {
		return result, nil
	}

	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		ids[i] = chunk.ID
	}
	existing, err := ix.store.ExistingHashes(ctx, ids)
	if err != nil {
		return result, domain.WrapError(domain.ErrIndexWrite, "read existing hashes", err)
	}

	pending := make([]domain.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if hash, ok := existing[chunk.ID]; ok && hash == chunk.ContentHash {
			result.Skipped++
			continue
		}
		pending = append(pending, chunk)
	}

	// Nothing reaches the store until every batch of the page has embedded.
	records := make([]domain.VectorRecord, 0, len(pending))
	for start := 0; start < len(pending); start += ix.batchSize {
		end := min(start+ix.batchSize, len(pending))
		batch, err := ix.embedBatch(ctx, pending[start:end])
		if err != nil {
			return result, err
		}
		records = append(records, batch...)
	}
	if len(records) == 0 {
		return result, nil
	}

	if err := ix.store.Append(ctx, records); err != nil {
		if domain.IsFatal(err) {
			return result, err
		}
		return result, domain.WrapError(domain.ErrIndexWrite, "append records", err)
	}
	result.Indexed = len(records)
	result.Records = records
	return result, nil
}

func (ix *Indexer) embedBatch(ctx context.Context, batch []domain.Chunk) ([]domain.VectorRecord, error) {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Text
	}

	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, domain.ErrEmbedding) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrEmbedding, "embed chunks", err)
	}
	dims, err := verifyVectors(vectors, len(batch))
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed chunks", err)
	}
	if err := ix.bindDimensions(ctx, dims); err != nil {
		return nil, err
	}

	records := make([]domain.VectorRecord, len(batch))
	for i, chunk := range batch {
		records[i] = domain.VectorRecord{
			ChunkID:     chunk.ID,
			Vector:      vectors[i],
			ContentHash: chunk.ContentHash,
			Chunk:       chunk,
		}
	}
	return records, nil
}

func (ix *Indexer) bindDimensions(ctx context.Context, dims int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.boundDims == dims {
		return nil
	}
	if err := ix.store.Bind(ctx, ix.embedder.Model(), dims); err != nil {
		return err
	}
	ix.boundDims = dims
	return nil
}

func verifyVectors(vectors [][]float32, want int) (int, error) {
	if len(vectors) != want {
		return 0, fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), want)
	}
	dims := len(vectors[0])
	if dims == 0 {
		return 0, errors.New("empty embedding vector")
	}
	for i, v := range vectors {
		if len(v) != dims {
			return 0, fmt.Errorf("vector %d has %d dims, expected %d", i, len(v), dims)
		}
	}
	return dims, nil
}
