package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/webrag/internal/core/domain"
)

type crawlFixture struct {
	policy    *policyFake
	fetcher   *fetcherFake
	embedder  *embedderFake
	store     *storeFake
	output    *outputFake
	publisher *publisherFake
	observer  *observerFake
}

func newCrawlFixture() *crawlFixture {
	return &crawlFixture{
		policy:    &policyFake{denied: map[string]bool{}},
		fetcher:   &fetcherFake{bodies: map[string]string{}, errs: map[string]error{}},
		embedder:  &embedderFake{},
		store:     newStoreFake(),
		output:    &outputFake{},
		publisher: &publisherFake{},
		observer:  &observerFake{},
	}
}

func (f *crawlFixture) useCase() *CrawlUseCase {
	return NewCrawlUseCase(CrawlDeps{
		Policy:    f.policy,
		Fetcher:   f.fetcher,
		Extractor: extractorFake{},
		Chunker:   chunkerFake{},
		Indexer:   NewIndexer(f.embedder, f.store, 2),
		Store:     f.store,
		Output:    f.output,
		Publisher: f.publisher,
		Observer:  f.observer,
	}, 3)
}

func TestRunSkipsDeniedURLWithoutFetching(t *testing.T) {
	f := newCrawlFixture()
	denied := "https://site/private/page"
	allowed := "https://site/public/page"
	f.policy.denied[denied] = true
	f.fetcher.bodies[denied] = "secret line"
	f.fetcher.bodies[allowed] = "public web scraping line"

	summary, err := f.useCase().Run(context.Background(), []string{denied, allowed})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.fetcher.called(denied) {
		t.Fatalf("fetcher must not be called for a denied url")
	}
	if f.store.sources()[denied] {
		t.Fatalf("no vector record may reference a denied url")
	}
	if len(summary.FailedURLs) != 1 || summary.FailedURLs[0].ErrorKind != domain.KindPolicyDenied {
		t.Fatalf("expected PolicyDenied entry, got %+v", summary.FailedURLs)
	}
	if summary.SuccessfulURLs != 1 || summary.TotalChunks != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	for _, site := range f.output.sites {
		if site.URL == denied && (site.Status != domain.PageSkipped || len(site.Chunks) != 0) {
			t.Fatalf("unexpected denied outcome: %+v", site)
		}
	}
}

func TestRunRecordsPerURLFailuresAndContinues(t *testing.T) {
	f := newCrawlFixture()
	f.fetcher.errs["https://a.example/missing"] = &domain.FetchError{Kind: domain.FetchNotFound, URL: "https://a.example/missing", StatusCode: 404}
	f.fetcher.bodies["https://b.example/empty"] = "EMPTY"
	f.fetcher.bodies["https://c.example/ok"] = "docker line\nagent line"
	f.fetcher.bodies["https://d.example/bad-embed"] = "POISON line"
	f.embedder.fail = "POISON"

	urls := []string{"https://a.example/missing", "https://b.example/empty", "https://c.example/ok", "https://d.example/bad-embed"}
	summary, err := f.useCase().Run(context.Background(), urls)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	kinds := map[string]domain.ErrorKind{}
	for _, failed := range summary.FailedURLs {
		kinds[failed.URL] = failed.ErrorKind
	}
	want := map[string]domain.ErrorKind{
		"https://a.example/missing":   "NotFound",
		"https://b.example/empty":     domain.KindNoContentFound,
		"https://d.example/bad-embed": domain.KindEmbeddingFailed,
	}
	for url, kind := range want {
		if kinds[url] != kind {
			t.Fatalf("expected %s for %s, got %q (all: %v)", kind, url, kinds[url], kinds)
		}
	}
	if summary.TotalURLs != 4 || summary.SuccessfulURLs != 1 || summary.TotalChunksIndexed != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(f.output.sites) != 4 || len(f.output.combined) != 2 || f.output.summary == nil {
		t.Fatalf("expected outputs for every url, got sites=%d combined=%d", len(f.output.sites), len(f.output.combined))
	}
	if f.store.flushed != 1 {
		t.Fatalf("expected one flush, got %d", f.store.flushed)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].VectorCount != 2 || f.publisher.events[0].FailedURLs != 3 {
		t.Fatalf("unexpected publish events: %+v", f.publisher.events)
	}
	if f.observer.started != 4 || len(f.observer.finished) != 4 || f.observer.stages[StageFetch] != 4 {
		t.Fatalf("unexpected observer calls: %+v", f.observer)
	}
}

func TestRunHaltsOnIndexWriteFailure(t *testing.T) {
	f := newCrawlFixture()
	f.fetcher.bodies["https://a.example/"] = "web line"
	f.store.appendErr = domain.WrapError(domain.ErrIndexWrite, "append", errors.New("disk full"))

	_, err := f.useCase().Run(context.Background(), []string{"https://a.example/"})
	if !errors.Is(err, domain.ErrIndexWrite) {
		t.Fatalf("expected ErrIndexWrite, got %v", err)
	}
	if f.store.flushed != 0 {
		t.Fatalf("store must not be flushed after a fatal error")
	}
	if f.output.summary == nil {
		t.Fatalf("expected summary to be written on halt")
	}
}

func TestRunReturnsSummaryWhenFlushFails(t *testing.T) {
	f := newCrawlFixture()
	f.fetcher.bodies["https://a.example/"] = "web line"
	f.store.flushErr = errors.New("rename failed")

	summary, err := f.useCase().Run(context.Background(), []string{"https://a.example/"})
	if !errors.Is(err, domain.ErrIndexWrite) {
		t.Fatalf("expected ErrIndexWrite, got %v", err)
	}
	if summary == nil || summary.TotalURLs != 1 {
		t.Fatalf("expected summary with the crawled url, got %+v", summary)
	}
	if f.output.summary == nil {
		t.Fatalf("expected summary to be written after a failed flush")
	}
	if len(f.publisher.events) != 0 {
		t.Fatalf("no event may be published for an unflushed store")
	}
}

func TestRunEmbeddingFailureKeepsPageOutOfStore(t *testing.T) {
	f := newCrawlFixture()
	failing := "https://d.example/page"
	f.fetcher.bodies[failing] = "web line one\ndocker line two\nPOISON line three"
	f.fetcher.bodies["https://e.example/ok"] = "agent line"
	f.embedder.fail = "POISON"

	summary, err := f.useCase().Run(context.Background(), []string{failing, "https://e.example/ok"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.store.sources()[failing] {
		t.Fatalf("failed url left vector records in the store")
	}
	if summary.SuccessfulURLs != 1 || summary.TotalChunksIndexed != 1 || summary.VectorCount != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.FailedURLs) != 1 || summary.FailedURLs[0].ErrorKind != domain.KindEmbeddingFailed {
		t.Fatalf("expected EmbeddingFailed entry, got %+v", summary.FailedURLs)
	}
}

func TestRunModelMismatchFailsBeforeFetching(t *testing.T) {
	f := newCrawlFixture()
	f.store.model = "other-model"
	f.fetcher.bodies["https://a.example/"] = "web line"

	_, err := f.useCase().Run(context.Background(), []string{"https://a.example/"})
	if !errors.Is(err, domain.ErrEmbeddingModelMismatch) {
		t.Fatalf("expected ErrEmbeddingModelMismatch, got %v", err)
	}
	if len(f.fetcher.calls) != 0 {
		t.Fatalf("expected no fetches, got %v", f.fetcher.calls)
	}
}

func TestRunSkipsUnchangedChunksOnRerun(t *testing.T) {
	f := newCrawlFixture()
	f.fetcher.bodies["https://a.example/"] = "web line\nmodel line\ncode line"

	first, err := f.useCase().Run(context.Background(), []string{"https://a.example/"})
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	embedCalls := f.embedder.calls

	second, err := f.useCase().Run(context.Background(), []string{"https://a.example/"})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if first.TotalChunksIndexed != 3 || second.TotalChunksIndexed != 0 || second.TotalChunksSkipped != 3 {
		t.Fatalf("unexpected rerun counts: first=%+v second=%+v", first, second)
	}
	if f.embedder.calls != embedCalls {
		t.Fatalf("unchanged chunks must not be re-embedded")
	}
	if second.VectorCount != 3 {
		t.Fatalf("expected stable vector count, got %d", second.VectorCount)
	}
}

func TestRunDeduplicatesURLs(t *testing.T) {
	f := newCrawlFixture()
	f.fetcher.bodies["https://a.example/"] = "web line"

	summary, err := f.useCase().Run(context.Background(), []string{"https://a.example/", " https://a.example/ ", ""})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.TotalURLs != 1 || len(f.fetcher.calls) != 1 {
		t.Fatalf("expected one unit, got summary=%+v calls=%v", summary, f.fetcher.calls)
	}
}

func TestBuildSummaryContentStats(t *testing.T) {
	outcomes := []domain.PageOutcome{
		{URL: "a", Status: domain.PageIndexed, Indexed: 2, Chunks: []domain.Chunk{
			{SourceURL: "a", CharLength: 100},
			{SourceURL: "a", CharLength: 300},
		}},
		{URL: "b", Status: domain.PageIndexed, Indexed: 1, Chunks: []domain.Chunk{{SourceURL: "b", CharLength: 200}}},
		{URL: "c", Status: domain.PageFailed, ErrorKind: "Timeout"},
	}

	summary := BuildSummary(outcomes)
	stats := summary.ContentStats
	if stats.MinChunkLength != 100 || stats.MaxChunkLength != 300 || stats.TotalCharacters != 600 ||
		stats.AverageChunkLength != 200 || stats.UniqueSources != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if summary.SuccessfulURLs != 2 || len(summary.FailedURLs) != 1 || summary.FailedURLs[0].ErrorKind != "Timeout" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
