package plaintext

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/webrag/internal/core/domain"
	"github.com/kirillkom/webrag/internal/infrastructure/mdtext"
)

// Extractor handles text/plain and text/markdown bodies as-is.
type Extractor struct {
	minContent int
	now        func() time.Time
}

func NewExtractor(minContentLength int) *Extractor {
	return &Extractor{minContent: minContentLength, now: time.Now}
}

func (e *Extractor) Extract(ctx context.Context, page *domain.Page) (*domain.CleanedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !utf8.Valid(page.Body) {
		return nil, &domain.ExtractionError{Kind: domain.ExtractionNoContentFound, URL: page.URL}
	}

	text := mdtext.Normalize(string(page.Body))
	if strings.TrimSpace(text) == "" || mdtext.RuneLen(text) < e.minContent {
		return nil, &domain.ExtractionError{Kind: domain.ExtractionNoContentFound, URL: page.URL}
	}

	headings := mdtext.Headings(text)
	title := ""
	if len(headings) > 0 {
		title = headings[0].Text
	}

	return &domain.CleanedDocument{
		URL:         page.URL,
		Title:       title,
		Text:        text,
		Headings:    headings,
		Method:      "plaintext",
		ExtractedAt: e.now().UTC(),
	}, nil
}
