package plaintext

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/webrag/internal/core/domain"
)

func TestExtractMarkdownKeepsHeadings(t *testing.T) {
	body := "# Guide\n\n\n" + strings.Repeat("Plain words here. ", 10) + "\n## Next\nMore text follows here."
	page := &domain.Page{URL: "https://example.com/README.md", Body: []byte(body), ContentType: "text/markdown"}

	doc, err := NewExtractor(100).Extract(context.Background(), page)
	require.NoError(t, err)

	assert.Equal(t, "Guide", doc.Title)
	assert.Equal(t, "plaintext", doc.Method)
	assert.Len(t, doc.Headings, 2)
	assert.NotContains(t, doc.Text, "\n\n")
}

func TestExtractRejectsBinary(t *testing.T) {
	page := &domain.Page{URL: "https://example.com/blob", Body: []byte{0xff, 0xfe, 0xfd}}

	_, err := NewExtractor(10).Extract(context.Background(), page)
	assert.True(t, errors.Is(err, domain.ErrExtraction))
}
