// Package htmlx turns fetched HTML into markdown-flavoured clean text.
package htmlx

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"

	"github.com/kirillkom/webrag/internal/core/domain"
	"github.com/kirillkom/webrag/internal/infrastructure/mdtext"
)

const defaultMinContentLength = 100

type Extractor struct {
	minContent int
	now        func() time.Time
}

func New(minContentLength int) *Extractor {
	if minContentLength <= 0 {
		minContentLength = defaultMinContentLength
	}
	return &Extractor{minContent: minContentLength, now: time.Now}
}

func (e *Extractor) Extract(ctx context.Context, page *domain.Page) (*domain.CleanedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", page.URL, err)
	}

	title := pageTitle(doc)
	description := metaContent(doc, "description", "og:description")

	stripBoilerplate(doc)
	region, method, ok := selectRegion(doc, e.minContent)
	if !ok {
		return nil, &domain.ExtractionError{Kind: domain.ExtractionNoContentFound, URL: page.URL}
	}

	fragment, err := goquery.OuterHtml(region)
	if err != nil {
		return nil, fmt.Errorf("render region %s: %w", page.URL, err)
	}
	markdown, err := newConverter(page).ConvertString(fragment)
	if err != nil {
		return nil, fmt.Errorf("convert markdown %s: %w", page.URL, err)
	}

	text := mdtext.Normalize(markdown)
	if mdtext.RuneLen(text) < e.minContent {
		return nil, &domain.ExtractionError{Kind: domain.ExtractionNoContentFound, URL: page.URL}
	}

	headings := mdtext.Headings(text)
	if title == "" && len(headings) > 0 {
		title = headings[0].Text
	}

	return &domain.CleanedDocument{
		URL:         page.URL,
		Title:       title,
		Description: description,
		Text:        text,
		Headings:    headings,
		Method:      method,
		ExtractedAt: e.now().UTC(),
	}, nil
}

func newConverter(page *domain.Page) *md.Converter {
	domainName := ""
	base := page.FinalURL
	if base == "" {
		base = page.URL
	}
	if parsed, err := url.Parse(base); err == nil {
		domainName = parsed.Host
	}

	conv := md.NewConverter(domainName, true, &md.Options{CodeBlockStyle: "fenced"})
	conv.Use(plugin.GitHubFlavored())
	return conv
}

func pageTitle(doc *goquery.Document) string {
	if title := collapse(doc.Find("head title").First().Text()); title != "" {
		return title
	}
	if title := collapse(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return metaContent(doc, "og:title")
}

func metaContent(doc *goquery.Document, names ...string) string {
	for _, name := range names {
		for _, attr := range []string{"name", "property"} {
			content, ok := doc.Find(fmt.Sprintf(`meta[%s=%q]`, attr, name)).First().Attr("content")
			if ok {
				if content = collapse(content); content != "" {
					return content
				}
			}
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
