// Package openai embeds text through any OpenAI-compatible embeddings endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/webrag/internal/core/domain"
	"github.com/kirillkom/webrag/internal/infrastructure/resilience"
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Retry   resilience.Config
}

type Embedder struct {
	client   *openai.Client
	model    openai.EmbeddingModel
	executor *resilience.Executor
}

func New(cfg Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		clientCfg.BaseURL = base
	}
	return &Embedder{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    openai.EmbeddingModel(cfg.Model),
		executor: resilience.NewExecutor(cfg.Retry),
	}
}

func (e *Embedder) Model() string {
	return string(e.model)
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp openai.EmbeddingResponse
	err := e.executor.Execute(ctx, "openai:embed", func(callCtx context.Context) error {
		var err error
		resp, err = e.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
			Input: texts,
			Model: e.model,
		})
		return err
	}, classifyOpenAIError)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbedding, "openai embed", wrapTemporaryIfNeeded("openai embed", err))
	}

	if len(resp.Data) != len(texts) {
		return nil, domain.WrapError(domain.ErrEmbedding, "openai embed",
			fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}
	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, domain.WrapError(domain.ErrEmbedding, "openai embed", fmt.Errorf("embedding index %d out of range", item.Index))
		}
		out[item.Index] = item.Embedding
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func classifyOpenAIError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	if status := statusCode(err); status > 0 {
		retryable := isRetryableHTTPStatus(status)
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyOpenAIError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
