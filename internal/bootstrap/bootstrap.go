package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/webrag/internal/config"
	"github.com/kirillkom/webrag/internal/core/ports"
	"github.com/kirillkom/webrag/internal/core/usecase"
	"github.com/kirillkom/webrag/internal/infrastructure/chunking"
	"github.com/kirillkom/webrag/internal/infrastructure/embedding/hashing"
	"github.com/kirillkom/webrag/internal/infrastructure/embedding/ollama"
	"github.com/kirillkom/webrag/internal/infrastructure/embedding/openai"
	"github.com/kirillkom/webrag/internal/infrastructure/extractor"
	"github.com/kirillkom/webrag/internal/infrastructure/fetcher/httpfetch"
	"github.com/kirillkom/webrag/internal/infrastructure/output"
	"github.com/kirillkom/webrag/internal/infrastructure/policy/robots"
	"github.com/kirillkom/webrag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/webrag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/webrag/internal/infrastructure/resilience"
	"github.com/kirillkom/webrag/internal/infrastructure/vector/filestore"
	"github.com/kirillkom/webrag/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/webrag/internal/observability/metrics"
)

// CrawlApp holds everything a crawl run needs. The search use case shares the
// run's store so test queries see freshly appended vectors.
type CrawlApp struct {
	Config config.Config

	Crawl   *usecase.CrawlUseCase
	Search  *usecase.SearchUseCase
	Store   ports.VectorStore
	Metrics *metrics.CrawlMetrics

	closeFn func()
}

func NewCrawlApp(ctx context.Context, cfg config.Config) (*CrawlApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	embedder := newEmbedder(cfg)
	store, err := newVectorStore(ctx, cfg, false)
	if err != nil {
		return nil, err
	}
	crawlMetrics := metrics.NewCrawlMetrics()

	gate := robots.NewGate(robots.Options{
		UserAgent:    cfg.UserAgent,
		FailOpen:     cfg.RobotsFailOpen,
		DefaultDelay: cfg.DefaultCrawlDelay,
		MaxDelay:     cfg.MaxCrawlDelay,
	})
	fetchOpts := httpfetch.Options{
		UserAgent:    cfg.UserAgent,
		Timeout:      cfg.FetchTimeout,
		MaxBodyBytes: cfg.MaxPageBytes,
		Retry:        fetchRetry(cfg),
		Delays:       gate,
		Observer:     crawlMetrics,
	}
	if cfg.RenderURL != "" {
		fetchOpts.Renderer = httpfetch.NewRenderClient(cfg.RenderURL, cfg.FetchTimeout)
	}

	deps := usecase.CrawlDeps{
		Policy:    gate,
		Fetcher:   httpfetch.New(fetchOpts),
		Extractor: extractor.NewRouter(cfg.MinContentLength),
		Chunker: chunking.NewChunker(chunking.Options{
			ChunkSize:      cfg.ChunkSize,
			ChunkOverlap:   cfg.ChunkOverlap,
			MinChunkLength: cfg.MinChunkLength,
		}),
		Indexer:  usecase.NewIndexer(embedder, store, cfg.EmbedBatchSize),
		Store:    store,
		Output:   output.NewWriter(cfg.OutputDir),
		Observer: crawlMetrics,
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.PostgresDSN != "" {
		db, ledger, err := openLedger(ctx, cfg.PostgresDSN)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, func() { _ = db.Close() })
		deps.Ledger = ledger
	}
	if cfg.NATSURL != "" {
		publisher, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{Retry: resilience.DefaultConfig()})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init event publisher: %w", err)
		}
		closers = append(closers, publisher.Close)
		deps.Publisher = publisher
	}

	return &CrawlApp{
		Config:  cfg,
		Crawl:   usecase.NewCrawlUseCase(deps, cfg.Concurrency),
		Search:  usecase.NewSearchUseCase(embedder, store, usecase.MismatchPolicy(cfg.ModelMismatchPolicy)),
		Store:   store,
		Metrics: crawlMetrics,
		closeFn: closeAll,
	}, nil
}

func (a *CrawlApp) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// SearchApp opens an existing store read-only for the search, serve, demo
// and mcp commands.
type SearchApp struct {
	Config config.Config

	Search *usecase.SearchUseCase
	Store  ports.VectorStore
}

func NewSearchApp(ctx context.Context, cfg config.Config) (*SearchApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := newVectorStore(ctx, cfg, true)
	if err != nil {
		return nil, err
	}
	return &SearchApp{
		Config: cfg,
		Search: usecase.NewSearchUseCase(newEmbedder(cfg), store, usecase.MismatchPolicy(cfg.ModelMismatchPolicy)),
		Store:  store,
	}, nil
}

func newEmbedder(cfg config.Config) ports.Embedder {
	switch cfg.EmbeddingProvider {
	case "openai":
		return openai.New(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.EmbeddingModel,
			Retry:   resilience.DefaultConfig(),
		})
	case "hashing":
		return hashing.New(cfg.HashingDimensions)
	default:
		return ollama.NewEmbedder(ollama.New(cfg.OllamaURL, cfg.EmbeddingModel, resilience.DefaultConfig()))
	}
}

func newVectorStore(ctx context.Context, cfg config.Config, readOnly bool) (ports.VectorStore, error) {
	switch cfg.VectorBackend {
	case "qdrant":
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, resilience.DefaultConfig()), nil
	default:
		store, err := filestore.Open(ctx, cfg.VectorStorePath, filestore.Options{ReadOnly: readOnly})
		if err != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
		return store, nil
	}
}

func openLedger(ctx context.Context, dsn string) (*sql.DB, *postgres.CrawlLedger, error) {
	db, err := postgres.OpenDB(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	ledger := postgres.NewCrawlLedger(db)
	if err := ledger.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	slog.Info("crawl_ledger_enabled")
	return db, ledger, nil
}

func fetchRetry(cfg config.Config) resilience.Config {
	retry := resilience.DefaultConfig()
	retry.RetryMaxAttempts = cfg.FetchMaxAttempts
	retry.RetryInitialBackoff = cfg.FetchInitialBackoff
	retry.RetryMaxBackoff = cfg.FetchMaxBackoff
	return retry
}
