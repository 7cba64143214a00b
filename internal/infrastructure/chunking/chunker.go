package chunking

import (
	"slices"
	"strings"
	"unicode"

	"github.com/kirillkom/webrag/internal/core/domain"
	"github.com/kirillkom/webrag/internal/infrastructure/mdtext"
)

type Options struct {
	ChunkSize      int
	ChunkOverlap   int
	MinChunkLength int
}

// Chunker is stateless; one instance serves every worker.
type Chunker struct {
	splitter  *Splitter
	minLength int
}

func NewChunker(opts Options) *Chunker {
	return &Chunker{
		splitter:  NewSplitter(opts.ChunkSize, opts.ChunkOverlap),
		minLength: opts.MinChunkLength,
	}
}

func (c *Chunker) Chunk(doc *domain.CleanedDocument) []domain.Chunk {
	if doc == nil {
		return nil
	}

	var out []domain.Chunk
	for _, sec := range sections(doc.Text) {
		for _, text := range c.splitter.Split(sec.body) {
			if !c.keep(text) {
				continue
			}
			seq := len(out)
			out = append(out, domain.Chunk{
				ID:            domain.ChunkID(doc.URL, seq),
				Text:          text,
				CharLength:    mdtext.RuneLen(text),
				SourceURL:     doc.URL,
				Title:         doc.Title,
				HeadingPath:   slices.Clone(sec.headingPath),
				SequenceIndex: seq,
				ContentHash:   domain.ContentHash(text),
			})
		}
	}
	return out
}

func (c *Chunker) keep(text string) bool {
	if mdtext.RuneLen(text) < c.minLength {
		return false
	}
	return strings.IndexFunc(text, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}
