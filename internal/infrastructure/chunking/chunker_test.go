package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/webrag/internal/core/domain"
)

func defaultChunker() *Chunker {
	return NewChunker(Options{ChunkSize: 1000, ChunkOverlap: 200, MinChunkLength: 50})
}

func TestChunkLongSectionWithoutSeparators(t *testing.T) {
	doc := &domain.CleanedDocument{
		URL:   "https://example.com/intro",
		Title: "Intro page",
		Text:  "# Intro\n" + strings.Repeat("A", 1200),
	}

	chunks := defaultChunker().Chunk(doc)
	require.Len(t, chunks, 2)

	assert.Equal(t, strings.Repeat("A", 1000), chunks[0].Text)
	assert.Equal(t, 1000, chunks[0].CharLength)
	assert.Equal(t, 400, chunks[1].CharLength)
	for i, chunk := range chunks {
		assert.Equal(t, []string{"Intro"}, chunk.HeadingPath)
		assert.Equal(t, i, chunk.SequenceIndex)
		assert.Equal(t, doc.URL, chunk.SourceURL)
		assert.Equal(t, "Intro page", chunk.Title)
		assert.Equal(t, domain.ChunkID(doc.URL, i), chunk.ID)
		assert.Equal(t, domain.ContentHash(chunk.Text), chunk.ContentHash)
	}
	assert.NotEqual(t, chunks[0].ID, chunks[1].ID)
}

func TestChunkIsIdempotent(t *testing.T) {
	doc := &domain.CleanedDocument{
		URL:  "https://example.com/a",
		Text: "# One\n" + strings.Repeat("repeatable sentence here. ", 120),
	}
	c := defaultChunker()
	assert.Equal(t, c.Chunk(doc), c.Chunk(doc))
}

func TestChunkHeadingPaths(t *testing.T) {
	text := strings.Join([]string{
		"Preface text here",
		"# A",
		"A body text",
		"## B",
		"B body text",
		"### C",
		"C body text",
		"#### D",
		"D body text",
		"## E",
		"E body text",
	}, "\n")
	doc := &domain.CleanedDocument{URL: "https://example.com/h", Text: text}

	chunks := NewChunker(Options{ChunkSize: 200, ChunkOverlap: 20, MinChunkLength: 5}).Chunk(doc)
	require.Len(t, chunks, 5)

	assert.Empty(t, chunks[0].HeadingPath)
	assert.NotNil(t, chunks[0].HeadingPath)
	assert.Equal(t, []string{"A"}, chunks[1].HeadingPath)
	assert.Equal(t, []string{"A", "B"}, chunks[2].HeadingPath)
	assert.Equal(t, []string{"A", "B", "C"}, chunks[3].HeadingPath)
	assert.Equal(t, "C body text\n#### D\nD body text", chunks[3].Text)
	assert.Equal(t, []string{"A", "E"}, chunks[4].HeadingPath)
}

func TestChunkIgnoresHeadingsInCodeFences(t *testing.T) {
	doc := &domain.CleanedDocument{
		URL:  "https://example.com/code",
		Text: "# A\n```\n# not a heading\n```\nbody text after the fence",
	}

	chunks := NewChunker(Options{ChunkSize: 200, ChunkOverlap: 20, MinChunkLength: 5}).Chunk(doc)
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"A"}, chunks[0].HeadingPath)
	assert.Contains(t, chunks[0].Text, "# not a heading")
}

func TestChunkDropsShortAndPunctuationOnly(t *testing.T) {
	doc := &domain.CleanedDocument{
		URL:  "https://example.com/short",
		Text: "# A\nshort\n# B\n..........----------\n# C\nlong enough body text here",
	}

	chunks := NewChunker(Options{ChunkSize: 200, ChunkOverlap: 20, MinChunkLength: 10}).Chunk(doc)
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"C"}, chunks[0].HeadingPath)
	assert.Equal(t, 0, chunks[0].SequenceIndex)
}

func TestChunkLengthAndOverlapBounds(t *testing.T) {
	const size, overlap = 300, 60
	doc := &domain.CleanedDocument{
		URL:  "https://example.com/prose",
		Text: strings.Repeat("alpha beta gamma delta. ", 200),
	}

	chunks := NewChunker(Options{ChunkSize: size, ChunkOverlap: overlap, MinChunkLength: 10}).Chunk(doc)
	require.Greater(t, len(chunks), 10)

	for i, chunk := range chunks {
		assert.LessOrEqual(t, chunk.CharLength, size)
		if i == 0 {
			continue
		}
		shared := sharedOverlap(chunks[i-1].Text, chunk.Text, overlap)
		assert.Greater(t, shared, 0, "chunk %d shares no overlap with its predecessor", i)
	}
}

func TestChunkDoesNotMixDocuments(t *testing.T) {
	c := NewChunker(Options{ChunkSize: 100, ChunkOverlap: 10, MinChunkLength: 5})
	first := &domain.CleanedDocument{URL: "https://one.example/", Text: strings.Repeat("one ", 80)}
	second := &domain.CleanedDocument{URL: "https://two.example/", Text: strings.Repeat("two ", 80)}

	for _, doc := range []*domain.CleanedDocument{first, second} {
		for _, chunk := range c.Chunk(doc) {
			assert.Equal(t, doc.URL, chunk.SourceURL)
			assert.Contains(t, doc.Text, chunk.Text)
		}
	}
}

func TestSplitterPrefersSentenceBoundary(t *testing.T) {
	s := NewSplitter(40, 0)
	parts := s.Split("The first sentence is here. The second one follows it closely.")
	require.NotEmpty(t, parts)
	assert.Equal(t, "The first sentence is here.", parts[0])
}

func sharedOverlap(prev, next string, limit int) int {
	p, n := []rune(prev), []rune(next)
	for k := min(limit, len(p), len(n)); k > 0; k-- {
		if string(p[len(p)-k:]) == string(n[:k]) {
			return k
		}
	}
	return 0
}
