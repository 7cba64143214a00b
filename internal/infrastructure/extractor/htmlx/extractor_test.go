package htmlx

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/webrag/internal/core/domain"
)

func htmlPage(body string) *domain.Page {
	return &domain.Page{
		URL:         "https://example.com/post",
		Body:        []byte(body),
		ContentType: "text/html",
		StatusCode:  200,
	}
}

func TestExtractArticleDropsNavigation(t *testing.T) {
	body := "<html><body><nav>Menu</nav><article><h1>Intro</h1><p>" +
		strings.Repeat("A", 1200) + "</p></article></body></html>"

	doc, err := New(100).Extract(context.Background(), htmlPage(body))
	require.NoError(t, err)

	assert.NotContains(t, doc.Text, "Menu")
	assert.Contains(t, doc.Text, "# Intro")
	assert.Contains(t, doc.Text, strings.Repeat("A", 1200))
	assert.Equal(t, "article", doc.Method)
	assert.Equal(t, "Intro", doc.Title)
	require.Len(t, doc.Headings, 1)
	assert.Equal(t, domain.Heading{Level: 1, Text: "Intro"}, doc.Headings[0])
}

func TestExtractReadsTitleAndDescription(t *testing.T) {
	body := `<html><head><title> Scraping   Guide </title>
<meta name="description" content="How crawlers work"></head>
<body><main><h2>Basics</h2><p>` + strings.Repeat("crawlers fetch pages ", 10) + `</p></main></body></html>`

	doc, err := New(100).Extract(context.Background(), htmlPage(body))
	require.NoError(t, err)

	assert.Equal(t, "Scraping Guide", doc.Title)
	assert.Equal(t, "How crawlers work", doc.Description)
	assert.Equal(t, "main", doc.Method)
	assert.Contains(t, doc.Text, "## Basics")
}

func TestExtractStripsBoilerplate(t *testing.T) {
	body := `<html><body>
<header><p>Site banner text</p></header>
<div class="cookie-banner">We use cookies to improve things</div>
<article>
  <header><h1>Kept Title</h1></header>
  <script>var tracking = true;</script>
  <div class="share">Share on social networks please</div>
  <p>` + strings.Repeat("Useful body text. ", 10) + `</p>
</article>
<footer>Copyright footer text</footer>
</body></html>`

	doc, err := New(100).Extract(context.Background(), htmlPage(body))
	require.NoError(t, err)

	assert.Contains(t, doc.Text, "# Kept Title")
	assert.Contains(t, doc.Text, "Useful body text.")
	for _, noise := range []string{"Site banner", "cookies", "tracking", "Share on", "Copyright"} {
		assert.NotContains(t, doc.Text, noise)
	}
}

func TestExtractFallsBackToDensity(t *testing.T) {
	body := `<html><body><div class="wrapper">
<div><a href="/a">Link one</a> <a href="/b">Link two</a></div>
<div id="story"><p>` + strings.Repeat("Dense paragraph text. ", 5) + `</p><p>` +
		strings.Repeat("More paragraph text. ", 5) + `</p></div>
</div></body></html>`

	doc, err := New(100).Extract(context.Background(), htmlPage(body))
	require.NoError(t, err)

	assert.Equal(t, "density", doc.Method)
	assert.Contains(t, doc.Text, "Dense paragraph text.")
	assert.NotContains(t, doc.Text, "Link one")
}

func TestExtractKeepsCodeBlocks(t *testing.T) {
	body := `<html><body><article><h1>Code</h1><p>` + strings.Repeat("Explaining the snippet. ", 5) +
		`</p><pre><code>x := 1
y := 2</code></pre></article></body></html>`

	doc, err := New(100).Extract(context.Background(), htmlPage(body))
	require.NoError(t, err)

	assert.Contains(t, doc.Text, "```")
	assert.Contains(t, doc.Text, "x := 1\ny := 2")
}

func TestExtractReportsNoContent(t *testing.T) {
	body := `<html><body><nav>Home</nav><p>Too short.</p></body></html>`

	_, err := New(100).Extract(context.Background(), htmlPage(body))
	require.Error(t, err)

	var extractErr *domain.ExtractionError
	require.True(t, errors.As(err, &extractErr))
	assert.Equal(t, domain.ExtractionNoContentFound, extractErr.Kind)
	assert.True(t, errors.Is(err, domain.ErrExtraction))
	assert.Equal(t, domain.KindNoContentFound, domain.KindOf(err))
}
