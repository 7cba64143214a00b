package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/webrag/internal/core/domain"
	"github.com/kirillkom/webrag/internal/core/ports"
)

const (
	StagePolicy  = "policy"
	StageFetch   = "fetch"
	StageExtract = "extract"
	StageChunk   = "chunk"
	StageIndex   = "index"
)

// CrawlDeps wires the pipeline. Output, Ledger, Publisher and Observer are optional.
type CrawlDeps struct {
	Policy    ports.PolicyGate
	Fetcher   ports.PageFetcher
	Extractor ports.ContentExtractor
	Chunker   ports.Chunker
	Indexer   *Indexer
	Store     ports.VectorStore
	Output    ports.OutputWriter
	Ledger    ports.CrawlLedger
	Publisher ports.EventPublisher
	Observer  ports.PipelineObserver
}

type CrawlUseCase struct {
	deps        CrawlDeps
	concurrency int
	now         func() time.Time
}

func NewCrawlUseCase(deps CrawlDeps, concurrency int) *CrawlUseCase {
	if concurrency <= 0 {
		concurrency = 1
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	return &CrawlUseCase{
		deps:        deps,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Run processes every URL once. Per-URL failures land in the summary; only
// store-level failures are returned, and they stop the remaining units.
func (uc *CrawlUseCase) Run(ctx context.Context, urls []string) (*domain.RunSummary, error) {
	startedAt := uc.now().UTC()
	urls = dedupeURLs(urls)

	if err := uc.deps.Indexer.Prepare(ctx); err != nil {
		return nil, err
	}

	outcomes := make([]domain.PageOutcome, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.concurrency)
	for i, rawURL := range urls {
		g.Go(func() error {
			outcome, err := uc.processURL(gctx, rawURL)
			outcomes[i] = outcome
			if err != nil {
				return err
			}
			uc.persistOutcome(gctx, outcome)
			return nil
		})
	}
	runErr := g.Wait()

	// Progress made before an interrupt is still persisted.
	ctx = context.WithoutCancel(ctx)
	if runErr != nil {
		summary := uc.summarize(ctx, outcomes, startedAt)
		slog.Error("run_halted", "error", runErr, "failed_urls", len(summary.FailedURLs))
		uc.writeSummary(ctx, summary)
		return summary, runErr
	}

	if err := uc.deps.Store.Flush(ctx); err != nil {
		if !domain.IsKind(err, domain.ErrIndexWrite) {
			err = domain.WrapError(domain.ErrIndexWrite, "flush store", err)
		}
		summary := uc.summarize(ctx, outcomes, startedAt)
		slog.Error("run_halted", "error", err, "failed_urls", len(summary.FailedURLs))
		uc.writeSummary(ctx, summary)
		return summary, err
	}

	summary := uc.summarize(ctx, outcomes, startedAt)
	if uc.deps.Output != nil {
		if err := uc.deps.Output.WriteCombined(ctx, collectChunks(outcomes)); err != nil {
			slog.Warn("write_combined_failed", "error", err)
		}
	}
	uc.writeSummary(ctx, summary)
	uc.publishFlushed(ctx, summary)

	slog.Info("run_completed",
		"total_urls", summary.TotalURLs,
		"successful_urls", summary.SuccessfulURLs,
		"failed_urls", len(summary.FailedURLs),
		"chunks_indexed", summary.TotalChunksIndexed,
		"chunks_skipped", summary.TotalChunksSkipped,
		"vector_count", summary.VectorCount,
	)
	return summary, nil
}

func (uc *CrawlUseCase) processURL(ctx context.Context, rawURL string) (outcome domain.PageOutcome, fatal error) {
	started := uc.now()
	outcome = domain.PageOutcome{URL: rawURL}
	uc.deps.Observer.StartPage()
	defer func() {
		outcome.Duration = uc.now().Sub(started)
		uc.deps.Observer.FinishPage(outcome)
		slog.Info("page_processed",
			"url", rawURL,
			"status", outcome.Status,
			"error_kind", outcome.ErrorKind,
			"chunks", len(outcome.Chunks),
			"indexed", outcome.Indexed,
			"skipped", outcome.Skipped,
			"duration_ms", outcome.Duration.Milliseconds(),
		)
	}()

	if err := ctx.Err(); err != nil {
		return failOutcome(outcome, err), nil
	}

	var allowed bool
	err := uc.stage(StagePolicy, func() error {
		var err error
		allowed, err = uc.deps.Policy.IsAllowed(ctx, rawURL)
		return err
	})
	if err != nil {
		return failOutcome(outcome, err), nil
	}
	if !allowed {
		outcome = failOutcome(outcome, domain.WrapError(domain.ErrPolicyDenied, "check robots", fmt.Errorf("%s disallowed by robots.txt", rawURL)))
		outcome.Status = domain.PageSkipped
		return outcome, nil
	}

	var page *domain.Page
	if err := uc.stage(StageFetch, func() error {
		var err error
		page, err = uc.deps.Fetcher.Fetch(ctx, rawURL)
		return err
	}); err != nil {
		return failOutcome(outcome, err), nil
	}
	outcome.HTTPStatus = page.StatusCode
	outcome.Rendered = page.Rendered

	var doc *domain.CleanedDocument
	if err := uc.stage(StageExtract, func() error {
		var err error
		doc, err = uc.deps.Extractor.Extract(ctx, page)
		return err
	}); err != nil {
		return failOutcome(outcome, err), nil
	}
	outcome.Title = doc.Title
	outcome.Description = doc.Description
	outcome.Method = doc.Method
	outcome.ExtractedAt = doc.ExtractedAt

	var chunks []domain.Chunk
	_ = uc.stage(StageChunk, func() error {
		chunks = uc.deps.Chunker.Chunk(doc)
		return nil
	})
	if len(chunks) == 0 {
		return failOutcome(outcome, &domain.ExtractionError{Kind: domain.ExtractionNoContentFound, URL: rawURL}), nil
	}
	outcome.Chunks = chunks

	var result IndexResult
	if err := uc.stage(StageIndex, func() error {
		var err error
		result, err = uc.deps.Indexer.Index(ctx, chunks)
		return err
	}); err != nil {
		outcome = failOutcome(outcome, err)
		if domain.IsFatal(err) {
			return outcome, err
		}
		return outcome, nil
	}

	outcome.Status = domain.PageIndexed
	outcome.Indexed = result.Indexed
	outcome.Skipped = result.Skipped
	if uc.deps.Ledger != nil && len(result.Records) > 0 {
		if err := uc.deps.Ledger.RecordVectors(ctx, result.Records); err != nil {
			slog.Warn("ledger_record_vectors_failed", "url", rawURL, "error", err)
		}
	}
	return outcome, nil
}

func (uc *CrawlUseCase) stage(name string, fn func() error) error {
	started := uc.now()
	err := fn()
	uc.deps.Observer.ObserveStage(name, uc.now().Sub(started))
	return err
}

func (uc *CrawlUseCase) persistOutcome(ctx context.Context, outcome domain.PageOutcome) {
	if uc.deps.Output != nil {
		if err := uc.deps.Output.WriteSiteDocument(ctx, outcome); err != nil {
			slog.Warn("write_site_document_failed", "url", outcome.URL, "error", err)
		}
	}
	if uc.deps.Ledger != nil {
		if err := uc.deps.Ledger.RecordPage(ctx, outcome); err != nil {
			slog.Warn("ledger_record_page_failed", "url", outcome.URL, "error", err)
		}
	}
}

func (uc *CrawlUseCase) summarize(ctx context.Context, outcomes []domain.PageOutcome, startedAt time.Time) *domain.RunSummary {
	summary := BuildSummary(outcomes)
	summary.StartedAt = startedAt
	summary.FinishedAt = uc.now().UTC()
	summary.EmbeddingModel = uc.deps.Indexer.embedder.Model()

	info, err := uc.deps.Store.Info(ctx)
	if err != nil {
		slog.Warn("store_info_failed", "error", err)
	} else {
		summary.VectorCount = info.VectorCount
	}
	return &summary
}

func (uc *CrawlUseCase) writeSummary(ctx context.Context, summary *domain.RunSummary) {
	if uc.deps.Output == nil {
		return
	}
	if err := uc.deps.Output.WriteSummary(ctx, *summary); err != nil {
		slog.Warn("write_summary_failed", "error", err)
	}
}

func (uc *CrawlUseCase) publishFlushed(ctx context.Context, summary *domain.RunSummary) {
	if uc.deps.Publisher == nil {
		return
	}
	event := domain.StoreFlushed{
		EmbeddingModel: summary.EmbeddingModel,
		VectorCount:    summary.VectorCount,
		TotalURLs:      summary.TotalURLs,
		FailedURLs:     len(summary.FailedURLs),
		FlushedAt:      uc.now().UTC(),
	}
	if err := uc.deps.Publisher.PublishStoreFlushed(ctx, event); err != nil {
		slog.Warn("publish_store_flushed_failed", "error", err)
	}
}

// BuildSummary aggregates outcomes in input order.
func BuildSummary(outcomes []domain.PageOutcome) domain.RunSummary {
	summary := domain.RunSummary{
		TotalURLs:  len(outcomes),
		FailedURLs: []domain.FailedURL{},
	}
	for _, o := range outcomes {
		if o.Status == domain.PageIndexed {
			summary.SuccessfulURLs++
			summary.TotalChunks += len(o.Chunks)
			summary.TotalChunksIndexed += o.Indexed
			summary.TotalChunksSkipped += o.Skipped
			continue
		}
		summary.FailedURLs = append(summary.FailedURLs, domain.FailedURL{
			URL:       o.URL,
			ErrorKind: o.ErrorKind,
			Error:     o.Error,
		})
	}
	summary.ContentStats = contentStats(collectChunks(outcomes))
	return summary
}

func contentStats(chunks []domain.Chunk) domain.ContentStats {
	if len(chunks) == 0 {
		return domain.ContentStats{}
	}
	stats := domain.ContentStats{MinChunkLength: chunks[0].CharLength}
	sources := make(map[string]struct{})
	for _, c := range chunks {
		stats.TotalCharacters += c.CharLength
		stats.MinChunkLength = min(stats.MinChunkLength, c.CharLength)
		stats.MaxChunkLength = max(stats.MaxChunkLength, c.CharLength)
		sources[c.SourceURL] = struct{}{}
	}
	stats.AverageChunkLength = float64(stats.TotalCharacters) / float64(len(chunks))
	stats.UniqueSources = len(sources)
	return stats
}

func collectChunks(outcomes []domain.PageOutcome) []domain.Chunk {
	var out []domain.Chunk
	for _, o := range outcomes {
		if o.Status == domain.PageIndexed {
			out = append(out, o.Chunks...)
		}
	}
	if out == nil {
		out = []domain.Chunk{}
	}
	return out
}

func failOutcome(outcome domain.PageOutcome, err error) domain.PageOutcome {
	outcome.Status = domain.PageFailed
	outcome.ErrorKind = domain.KindOf(err)
	outcome.Error = err.Error()
	if errors.Is(err, context.DeadlineExceeded) && outcome.ErrorKind == domain.KindUnknown {
		outcome.ErrorKind = domain.KindCanceled
	}
	return outcome
}

func dedupeURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

type nopObserver struct{}

func (nopObserver) StartPage()                         {}
func (nopObserver) FinishPage(domain.PageOutcome)      {}
func (nopObserver) ObserveStage(string, time.Duration) {}
