package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kirillkom/webrag/internal/core/domain"
	"github.com/kirillkom/webrag/internal/core/ports"
)

type MismatchPolicy string

const (
	MismatchRefuse MismatchPolicy = "refuse"
	MismatchWarn   MismatchPolicy = "warn"
)

type SearchUseCase struct {
	embedder ports.Embedder
	store    ports.VectorStore
	policy   MismatchPolicy
}

func NewSearchUseCase(embedder ports.Embedder, store ports.VectorStore, policy MismatchPolicy) *SearchUseCase {
	if policy != MismatchWarn {
		policy = MismatchRefuse
	}
	return &SearchUseCase{
		embedder: embedder,
		store:    store,
		policy:   policy,
	}
}

func (uc *SearchUseCase) Search(ctx context.Context, query string, k int) ([]domain.QueryResult, error) {
	if k <= 0 {
		return []domain.QueryResult{}, nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query is empty"))
	}

	info, err := uc.store.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("read store info: %w", err)
	}
	if info.VectorCount == 0 {
		return nil, domain.ErrEmptyStore
	}

	active := uc.embedder.Model()
	mismatch := info.EmbeddingModel != "" && info.EmbeddingModel != active
	if mismatch && uc.policy == MismatchRefuse {
		return nil, domain.WrapError(domain.ErrEmbeddingModelMismatch, "search",
			fmt.Errorf("store built with %s, active model is %s", info.EmbeddingModel, active))
	}

	queryVector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if mismatch {
		if info.Dimensions > 0 && len(queryVector) != info.Dimensions {
			return nil, domain.WrapError(domain.ErrEmbeddingModelMismatch, "search",
				fmt.Errorf("store has %d dims, %s produced %d", info.Dimensions, active, len(queryVector)))
		}
		slog.Warn("embedding_model_mismatch",
			"store_model", info.EmbeddingModel,
			"active_model", active,
		)
	}

	results, err := uc.store.Search(ctx, queryVector, k)
	if err != nil {
		return nil, fmt.Errorf("search vector store: %w", err)
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
