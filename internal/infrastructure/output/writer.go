// Package output writes the per-site, combined and summary JSON documents.
package output

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/webrag/internal/core/domain"
	"github.com/kirillkom/webrag/internal/infrastructure/storage/localfs"
)

const (
	combinedFile    = "all_chunks_combined.json"
	summaryFile     = "rag_summary.json"
	siteFileSuffix  = "_chunks.json"
	maxFileBaseName = 100
)

var unsafeFileChars = strings.NewReplacer("/", "_", ":", "_", "*", "_", "?", "_", `"`, "_", "<", "_", ">", "_", "|", "_", `\`, "_")

type Writer struct {
	files *localfs.Storage
}

func NewWriter(dir string) *Writer {
	return &Writer{files: localfs.New(dir)}
}

type siteChunk struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	HeadingPath   []string `json:"headingPath"`
	SequenceIndex int      `json:"sequenceIndex"`
	CharLength    int      `json:"charLength"`
}

type siteDocument struct {
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Method      string      `json:"method"`
	Chunks      []siteChunk `json:"chunks"`
	FetchStatus string      `json:"fetchStatus"`
	Error       string      `json:"error,omitempty"`
	ExtractedAt *time.Time  `json:"extractedAt,omitempty"`
}

func (w *Writer) WriteSiteDocument(ctx context.Context, outcome domain.PageOutcome) error {
	doc := siteDocument{
		URL:         outcome.URL,
		Title:       outcome.Title,
		Description: outcome.Description,
		Method:      outcome.Method,
		Chunks:      make([]siteChunk, 0, len(outcome.Chunks)),
		FetchStatus: outcome.FetchStatusLabel(),
		Error:       outcome.Error,
	}
	if !outcome.ExtractedAt.IsZero() {
		extractedAt := outcome.ExtractedAt
		doc.ExtractedAt = &extractedAt
	}
	for _, c := range outcome.Chunks {
		doc.Chunks = append(doc.Chunks, siteChunk{
			ID:            c.ID,
			Text:          c.Text,
			HeadingPath:   c.HeadingPath,
			SequenceIndex: c.SequenceIndex,
			CharLength:    c.CharLength,
		})
	}
	return w.writeJSON(ctx, SiteFileName(outcome.URL), doc)
}

func (w *Writer) WriteCombined(ctx context.Context, chunks []domain.Chunk) error {
	if chunks == nil {
		chunks = []domain.Chunk{}
	}
	return w.writeJSON(ctx, combinedFile, chunks)
}

func (w *Writer) WriteSummary(ctx context.Context, summary domain.RunSummary) error {
	return w.writeJSON(ctx, summaryFile, summary)
}

func (w *Writer) writeJSON(ctx context.Context, name string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := w.files.Save(ctx, name, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// SiteFileName drops the scheme, replaces path and reserved characters with
// underscores and caps the base name at 100 characters. A capped name ends
// in a hash of the full URL so long URLs sharing a prefix stay distinct.
func SiteFileName(rawURL string) string {
	name := rawURL
	if idx := strings.Index(name, "://"); idx >= 0 {
		name = name[idx+3:]
	}
	name = unsafeFileChars.Replace(name)
	if runes := []rune(name); len(runes) > maxFileBaseName {
		sum := sha256.Sum256([]byte(rawURL))
		suffix := "_" + hex.EncodeToString(sum[:4])
		name = string(runes[:maxFileBaseName-len(suffix)]) + suffix
	}
	if name == "" {
		name = "site"
	}
	return name + siteFileSuffix
}
