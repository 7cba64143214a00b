package pdftext

import (
	"bytes"
	"context"
	"path"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/webrag/internal/core/domain"
	"github.com/kirillkom/webrag/internal/infrastructure/mdtext"
)

type Extractor struct {
	minContent int
	now        func() time.Time
}

func New(minContentLength int) *Extractor {
	return &Extractor{minContent: minContentLength, now: time.Now}
}

// Extract reads the text layer page by page. Scanned documents without one
// yield NoContentFound.
func (e *Extractor) Extract(ctx context.Context, page *domain.Page) (doc *domain.CleanedDocument, err error) {
	// The pdf reader panics on some malformed object streams.
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, &domain.ExtractionError{Kind: domain.ExtractionNoContentFound, URL: page.URL}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(page.Body), int64(len(page.Body)))
	if err != nil {
		return nil, &domain.ExtractionError{Kind: domain.ExtractionNoContentFound, URL: page.URL}
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}

	text := mdtext.Normalize(b.String())
	if mdtext.RuneLen(text) < e.minContent {
		return nil, &domain.ExtractionError{Kind: domain.ExtractionNoContentFound, URL: page.URL}
	}

	return &domain.CleanedDocument{
		URL:         page.URL,
		Title:       titleFromURL(page.URL),
		Text:        text,
		Headings:    mdtext.Headings(text),
		Method:      "pdf",
		ExtractedAt: e.now().UTC(),
	}, nil
}

func titleFromURL(rawURL string) string {
	base := path.Base(strings.SplitN(rawURL, "?", 2)[0])
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		return rawURL
	}
	return strings.NewReplacer("-", " ", "_", " ").Replace(base)
}
