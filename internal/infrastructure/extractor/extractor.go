// Package extractor routes fetched pages to the extractor for their media type.
package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/webrag/internal/core/domain"
	"github.com/kirillkom/webrag/internal/core/ports"
	"github.com/kirillkom/webrag/internal/infrastructure/extractor/htmlx"
	"github.com/kirillkom/webrag/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/webrag/internal/infrastructure/extractor/plaintext"
)

type Router struct {
	html  ports.ContentExtractor
	pdf   ports.ContentExtractor
	plain ports.ContentExtractor
}

func NewRouter(minContentLength int) *Router {
	return &Router{
		html:  htmlx.New(minContentLength),
		pdf:   pdftext.New(minContentLength),
		plain: plaintext.NewExtractor(minContentLength),
	}
}

func (r *Router) Extract(ctx context.Context, page *domain.Page) (*domain.CleanedDocument, error) {
	if page == nil {
		return nil, fmt.Errorf("%w: nil page", domain.ErrInvalidInput)
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(page.ContentType, ";", 2)[0]))
	switch mediaType {
	case "text/html", "application/xhtml+xml", "":
		return r.html.Extract(ctx, page)
	case "application/pdf":
		return r.pdf.Extract(ctx, page)
	case "text/plain", "text/markdown", "text/x-markdown":
		return r.plain.Extract(ctx, page)
	default:
		return nil, &domain.ExtractionError{Kind: domain.ExtractionNoContentFound, URL: page.URL}
	}
}
