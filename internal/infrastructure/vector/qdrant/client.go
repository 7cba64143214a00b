package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/webrag/internal/core/domain"
	"github.com/kirillkom/webrag/internal/infrastructure/resilience"
)

// Client is the qdrant-backed vector store. Points are keyed by chunk id and
// carry the embedding model in their payload, so a collection built with a
// different model is detected on Bind.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
	model             string
}

func New(baseURL, collection string, retry resilience.Config) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   resilience.NewExecutor(retry),
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) Info(ctx context.Context) (domain.StoreInfo, error) {
	size, exists, err := c.vectorSize(ctx)
	if err != nil || !exists {
		return domain.StoreInfo{}, err
	}
	count, err := c.count(ctx)
	if err != nil {
		return domain.StoreInfo{}, err
	}
	model, err := c.storedModel(ctx)
	if err != nil {
		return domain.StoreInfo{}, err
	}
	return domain.StoreInfo{EmbeddingModel: model, Dimensions: size, VectorCount: count}, nil
}

func (c *Client) Bind(ctx context.Context, model string, dimensions int) error {
	size, exists, err := c.vectorSize(ctx)
	if err != nil {
		return domain.WrapError(domain.ErrIndexWrite, "bind qdrant", err)
	}
	if exists {
		if dimensions > 0 && size != dimensions {
			return domain.WrapError(domain.ErrEmbeddingModelMismatch, "bind qdrant",
				fmt.Errorf("collection %s has %d dims, %s produced %d", c.collection, size, model, dimensions))
		}
		stored, err := c.storedModel(ctx)
		if err != nil {
			return domain.WrapError(domain.ErrIndexWrite, "bind qdrant", err)
		}
		if stored != "" && stored != model {
			return domain.WrapError(domain.ErrEmbeddingModelMismatch, "bind qdrant",
				fmt.Errorf("collection %s built with %s, active model is %s", c.collection, stored, model))
		}
		c.markCollectionEnsured(size)
	} else if dimensions > 0 {
		if err := c.ensureCollection(ctx, dimensions); err != nil {
			return domain.WrapError(domain.ErrIndexWrite, "bind qdrant", err)
		}
	}

	c.ensureMu.Lock()
	c.model = model
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) ExistingHashes(ctx context.Context, chunkIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}

	var resp struct {
		Result []point `json:"result"`
	}
	err := c.call(ctx, http.MethodPost, c.collectionPath("/points"), map[string]any{
		"ids":          chunkIDs,
		"with_payload": []string{"content_hash"},
		"with_vector":  false,
	}, &resp, "retrieve")
	if isNotFound(err) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	for _, p := range resp.Result {
		out[p.ID] = getStringPayload(p.Payload, "content_hash")
	}
	return out, nil
}

func (c *Client) Append(ctx context.Context, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := c.ensureCollection(ctx, len(records[0].Vector)); err != nil {
		return domain.WrapError(domain.ErrIndexWrite, "append qdrant", err)
	}

	c.ensureMu.Lock()
	model := c.model
	c.ensureMu.Unlock()

	points := make([]point, 0, len(records))
	for _, r := range records {
		points = append(points, point{
			ID:     r.ChunkID,
			Vector: r.Vector,
			Payload: map[string]any{
				"chunk_id":        r.ChunkID,
				"text":            r.Chunk.Text,
				"source_url":      r.Chunk.SourceURL,
				"title":           r.Chunk.Title,
				"heading_path":    r.Chunk.HeadingPath,
				"sequence_index":  r.Chunk.SequenceIndex,
				"char_length":     r.Chunk.CharLength,
				"content_hash":    r.ContentHash,
				"embedding_model": model,
			},
		})
	}

	err := c.call(ctx, http.MethodPut, c.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil, "upsert")
	if err != nil {
		return domain.WrapError(domain.ErrIndexWrite, "append qdrant", err)
	}
	return nil
}

// tieFetchLimit caps the follow-up query that collects points tied with the
// k-th score.
const tieFetchLimit = 1024

func (c *Client) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.QueryResult, error) {
	if limit <= 0 {
		return []domain.QueryResult{}, nil
	}

	// One point past the cutoff shows whether the k-th score is tied.
	out, err := c.searchPoints(ctx, queryVector, limit+1, nil)
	if isNotFound(err) {
		return nil, domain.ErrEmptyStore
	}
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		if count, countErr := c.count(ctx); countErr == nil && count == 0 {
			return nil, domain.ErrEmptyStore
		}
		return out, nil
	}

	sortResults(out)
	if len(out) > limit && out[limit].Score == out[limit-1].Score {
		cutoff := out[limit-1].Score
		out, err = c.searchPoints(ctx, queryVector, limit+tieFetchLimit, &cutoff)
		if err != nil {
			return nil, err
		}
		sortResults(out)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *Client) searchPoints(ctx context.Context, queryVector []float32, limit int, threshold *float64) ([]domain.QueryResult, error) {
	request := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if threshold != nil {
		request["score_threshold"] = *threshold
	}

	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := c.call(ctx, http.MethodPost, c.collectionPath("/points/search"), request, &resp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.QueryResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, domain.QueryResult{
			ChunkID:     r.ID,
			Score:       r.Score,
			Text:        getStringPayload(r.Payload, "text"),
			SourceURL:   getStringPayload(r.Payload, "source_url"),
			Title:       getStringPayload(r.Payload, "title"),
			HeadingPath: getStringsPayload(r.Payload, "heading_path"),
		})
	}
	return out, nil
}

func sortResults(out []domain.QueryResult) {
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
}

// Flush is a no-op: upserts are issued with wait=true.
func (c *Client) Flush(context.Context) error {
	return nil
}

func (c *Client) collectionPath(suffix string) string {
	return "/collections/" + c.collection + suffix
}

func (c *Client) vectorSize(ctx context.Context) (int, bool, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := c.call(ctx, http.MethodGet, c.collectionPath(""), nil, &resp, "collection_info")
	if isNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return resp.Result.Config.Params.Vectors.Size, true, nil
}

func (c *Client) count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := c.call(ctx, http.MethodPost, c.collectionPath("/points/count"), map[string]any{"exact": true}, &resp, "count"); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (c *Client) storedModel(ctx context.Context) (string, error) {
	var resp struct {
		Result struct {
			Points []point `json:"points"`
		} `json:"result"`
	}
	err := c.call(ctx, http.MethodPost, c.collectionPath("/points/scroll"), map[string]any{
		"limit":        1,
		"with_payload": []string{"embedding_model"},
		"with_vector":  false,
	}, &resp, "scroll")
	if err != nil {
		return "", err
	}
	if len(resp.Result.Points) == 0 {
		return "", nil
	}
	return getStringPayload(resp.Result.Points[0].Payload, "embedding_model"), nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	err := c.call(ctx, http.MethodPut, c.collectionPath(""), map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}, nil, "ensure_collection")

	// 409 when the collection already exists.
	var statusErr *HTTPStatusError
	if err != nil && !(errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict) {
		return err
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getStringsPayload(payload map[string]any, key string) []string {
	raw, _ := payload[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
