package usecase

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/webrag/internal/core/domain"
)

type policyFake struct {
	denied map[string]bool
}

func (f *policyFake) IsAllowed(_ context.Context, rawURL string) (bool, error) {
	return !f.denied[rawURL], nil
}

func (f *policyFake) Policy(context.Context, string) (domain.SitePolicy, error) {
	return domain.SitePolicy{AllowAll: true}, nil
}

type fetcherFake struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	calls  []string
}

func (f *fetcherFake) Fetch(_ context.Context, rawURL string) (*domain.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	f.mu.Unlock()

	if err := f.errs[rawURL]; err != nil {
		return nil, err
	}
	return &domain.Page{URL: rawURL, Body: []byte(f.bodies[rawURL]), ContentType: "text/html", StatusCode: 200}, nil
}

func (f *fetcherFake) called(rawURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == rawURL {
			return true
		}
	}
	return false
}

// extractorFake treats the body as already-clean text; "EMPTY" has no content.
type extractorFake struct{}

func (extractorFake) Extract(_ context.Context, page *domain.Page) (*domain.CleanedDocument, error) {
	text := string(page.Body)
	if text == "EMPTY" {
		return nil, &domain.ExtractionError{Kind: domain.ExtractionNoContentFound, URL: page.URL}
	}
	return &domain.CleanedDocument{URL: page.URL, Title: "title " + page.URL, Text: text, Method: "article"}, nil
}

// chunkerFake emits one chunk per line.
type chunkerFake struct{}

func (chunkerFake) Chunk(doc *domain.CleanedDocument) []domain.Chunk {
	var out []domain.Chunk
	for _, line := range strings.Split(doc.Text, "\n") {
		if line == "" {
			continue
		}
		seq := len(out)
		out = append(out, domain.Chunk{
			ID:            domain.ChunkID(doc.URL, seq),
			Text:          line,
			CharLength:    len(line),
			SourceURL:     doc.URL,
			Title:         doc.Title,
			HeadingPath:   []string{},
			SequenceIndex: seq,
			ContentHash:   domain.ContentHash(line),
		})
	}
	return out
}

// embedderFake maps text onto a fixed vocabulary so related texts score higher.
type embedderFake struct {
	model string
	dims  int
	fail  string
	calls int
	mu    sync.Mutex
}

var fakeVocabulary = []string{"scraping", "web", "docker", "model", "agent", "code"}

func (f *embedderFake) Model() string {
	if f.model == "" {
		return "fake-model"
	}
	return f.model
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if f.fail != "" && strings.Contains(text, f.fail) {
			return nil, errors.New("embedding backend rejected input")
		}
		out[i] = f.vector(text)
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *embedderFake) vector(text string) []float32 {
	dims := f.dims
	if dims == 0 {
		dims = len(fakeVocabulary) + 1
	}
	v := make([]float32, dims)
	lower := strings.ToLower(text)
	for i, word := range fakeVocabulary {
		if i < dims-1 && strings.Contains(lower, word) {
			v[i] = 1
		}
	}
	v[dims-1] = 0.1
	return v
}

type storeFake struct {
	mu        sync.Mutex
	model     string
	dims      int
	records   map[string]domain.VectorRecord
	bindErr   error
	appendErr error
	flushErr  error
	flushed   int
	appends   int
}

func newStoreFake() *storeFake {
	return &storeFake{records: make(map[string]domain.VectorRecord)}
}

func (s *storeFake) Info(context.Context) (domain.StoreInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.StoreInfo{EmbeddingModel: s.model, Dimensions: s.dims, VectorCount: len(s.records)}, nil
}

func (s *storeFake) Bind(_ context.Context, model string, dims int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bindErr != nil {
		return s.bindErr
	}
	if s.model == "" {
		s.model = model
	}
	if s.model != model {
		return domain.WrapError(domain.ErrEmbeddingModelMismatch, "bind", errors.New("model differs"))
	}
	if dims > 0 {
		s.dims = dims
	}
	return nil
}

func (s *storeFake) ExistingHashes(_ context.Context, ids []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			out[id] = r.ContentHash
		}
	}
	return out, nil
}

func (s *storeFake) Append(_ context.Context, records []domain.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appends++
	for _, r := range records {
		s.records[r.ChunkID] = r
	}
	return nil
}

func (s *storeFake) Search(_ context.Context, query []float32, _ int) ([]domain.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return nil, domain.ErrEmptyStore
	}
	out := make([]domain.QueryResult, 0, len(s.records))
	for id, r := range s.records {
		out = append(out, domain.QueryResult{ChunkID: id, Score: cosine(query, r.Vector), Text: r.Chunk.Text, SourceURL: r.Chunk.SourceURL})
	}
	// Unranked and untruncated; ranking is the use case's job.
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkID < out[j].ChunkID })
	return out, nil
}

func (s *storeFake) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed++
	return s.flushErr
}

func (s *storeFake) sources() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool)
	for _, r := range s.records {
		out[r.Chunk.SourceURL] = true
	}
	return out
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type outputFake struct {
	mu       sync.Mutex
	sites    []domain.PageOutcome
	combined []domain.Chunk
	summary  *domain.RunSummary
}

func (o *outputFake) WriteSiteDocument(_ context.Context, outcome domain.PageOutcome) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sites = append(o.sites, outcome)
	return nil
}

func (o *outputFake) WriteCombined(_ context.Context, chunks []domain.Chunk) error {
	o.combined = chunks
	return nil
}

func (o *outputFake) WriteSummary(_ context.Context, summary domain.RunSummary) error {
	o.summary = &summary
	return nil
}

type publisherFake struct {
	events []domain.StoreFlushed
}

func (p *publisherFake) PublishStoreFlushed(_ context.Context, event domain.StoreFlushed) error {
	p.events = append(p.events, event)
	return nil
}

type observerFake struct {
	mu       sync.Mutex
	started  int
	finished []domain.PageOutcome
	stages   map[string]int
}

func (o *observerFake) StartPage() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *observerFake) FinishPage(outcome domain.PageOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, outcome)
}

func (o *observerFake) ObserveStage(stage string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stages == nil {
		o.stages = make(map[string]int)
	}
	o.stages[stage]++
}
