// Package filestore is the default vector store: a JSON manifest plus an
// append-only JSON-lines record log, scanned by brute-force cosine search.
package filestore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/webrag/internal/core/domain"
	"github.com/kirillkom/webrag/internal/infrastructure/storage/localfs"
)

const (
	formatVersion = 1
	similarity    = "cosine"
	manifestKey   = "manifest.json"
	recordsKey    = "records.jsonl"

	maxRecordLine = 64 * 1024 * 1024
)

type Manifest struct {
	FormatVersion  int       `json:"formatVersion"`
	EmbeddingModel string    `json:"embeddingModel"`
	Dimensions     int       `json:"dimensions"`
	Similarity     string    `json:"similarity"`
	VectorCount    int       `json:"vectorCount"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type Options struct {
	// ReadOnly stores reject Bind, Append and Flush.
	ReadOnly bool
}

type entry struct {
	record domain.VectorRecord
	norm   float64
}

type Store struct {
	files    *localfs.Storage
	readOnly bool

	mu       sync.RWMutex
	manifest Manifest
	entries  map[string]entry
	pending  []domain.VectorRecord
	dirty    bool
}

func Open(ctx context.Context, dir string, opts Options) (*Store, error) {
	s := &Store{
		files:    localfs.New(dir),
		readOnly: opts.ReadOnly,
		manifest: Manifest{FormatVersion: formatVersion, Similarity: similarity},
		entries:  make(map[string]entry),
	}
	if err := s.loadManifest(ctx); err != nil {
		return nil, err
	}
	if err := s.loadRecords(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadManifest(ctx context.Context) error {
	rc, err := s.files.Open(ctx, manifestKey)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	defer rc.Close()

	var manifest Manifest
	if err := json.NewDecoder(rc).Decode(&manifest); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	if manifest.FormatVersion > formatVersion {
		return fmt.Errorf("manifest format version %d is newer than supported %d", manifest.FormatVersion, formatVersion)
	}
	if manifest.Similarity == "" {
		manifest.Similarity = similarity
	}
	s.manifest = manifest
	return nil
}

// loadRecords replays the log; a later record for an id shadows earlier ones.
func (s *Store) loadRecords(ctx context.Context) error {
	rc, err := s.files.Open(ctx, recordsKey)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open records: %w", err)
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var record domain.VectorRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return fmt.Errorf("decode record line %d: %w", line, err)
		}
		s.entries[record.ChunkID] = entry{record: record, norm: norm(record.Vector)}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read records: %w", err)
	}
	return nil
}

func (s *Store) Info(_ context.Context) (domain.StoreInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.StoreInfo{
		EmbeddingModel: s.manifest.EmbeddingModel,
		Dimensions:     s.manifest.Dimensions,
		VectorCount:    len(s.entries),
	}, nil
}

// Bind records the model on a fresh store. Dimensions may be bound later
// than the model, once the first vector is known.
func (s *Store) Bind(_ context.Context, model string, dimensions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manifest.EmbeddingModel == "" && len(s.entries) == 0 {
		if s.readOnly {
			return domain.WrapError(domain.ErrIndexWrite, "bind store", errors.New("store is read-only"))
		}
		s.manifest.EmbeddingModel = model
		s.dirty = true
	}
	if s.manifest.EmbeddingModel != model {
		return domain.WrapError(domain.ErrEmbeddingModelMismatch, "bind store", fmt.Errorf(
			"store built with %s, active model is %s", s.manifest.EmbeddingModel, model))
	}
	if dimensions <= 0 {
		return nil
	}
	switch s.manifest.Dimensions {
	case 0:
		if s.readOnly {
			return domain.WrapError(domain.ErrIndexWrite, "bind store", errors.New("store is read-only"))
		}
		s.manifest.Dimensions = dimensions
		s.dirty = true
	case dimensions:
	default:
		return domain.WrapError(domain.ErrEmbeddingModelMismatch, "bind store", fmt.Errorf(
			"store has %d dims, %s produced %d", s.manifest.Dimensions, model, dimensions))
	}
	return nil
}

func (s *Store) ExistingHashes(_ context.Context, chunkIDs []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(chunkIDs))
	for _, id := range chunkIDs {
		if e, ok := s.entries[id]; ok {
			out[id] = e.record.ContentHash
		}
	}
	return out, nil
}

func (s *Store) Append(_ context.Context, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readOnly {
		return domain.WrapError(domain.ErrIndexWrite, "append records", errors.New("store is read-only"))
	}
	for _, record := range records {
		if record.ChunkID == "" {
			return domain.WrapError(domain.ErrIndexWrite, "append records", errors.New("record without chunk id"))
		}
		if s.manifest.Dimensions > 0 && len(record.Vector) != s.manifest.Dimensions {
			return domain.WrapError(domain.ErrIndexWrite, "append records",
				fmt.Errorf("vector for %s has %d dims, store expects %d", record.ChunkID, len(record.Vector), s.manifest.Dimensions))
		}
	}
	for _, record := range records {
		s.entries[record.ChunkID] = entry{record: record, norm: norm(record.Vector)}
		s.pending = append(s.pending, record)
	}
	s.dirty = true
	return nil
}

func (s *Store) Search(_ context.Context, queryVector []float32, limit int) ([]domain.QueryResult, error) {
	if limit <= 0 {
		return []domain.QueryResult{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, domain.ErrEmptyStore
	}
	if s.manifest.Dimensions > 0 && len(queryVector) != s.manifest.Dimensions {
		return nil, domain.WrapError(domain.ErrEmbeddingModelMismatch, "search store",
			fmt.Errorf("query has %d dims, store has %d", len(queryVector), s.manifest.Dimensions))
	}

	queryNorm := norm(queryVector)
	results := make([]domain.QueryResult, 0, len(s.entries))
	for id, e := range s.entries {
		chunk := e.record.Chunk
		results = append(results, domain.QueryResult{
			ChunkID:     id,
			Score:       cosine(queryVector, e.record.Vector, queryNorm, e.norm),
			Text:        chunk.Text,
			SourceURL:   chunk.SourceURL,
			Title:       chunk.Title,
			HeadingPath: chunk.HeadingPath,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Flush appends pending records to the log and rewrites the manifest. Both
// files are replaced by rename.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readOnly || !s.dirty {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, record := range s.pending {
		if err := enc.Encode(record); err != nil {
			return domain.WrapError(domain.ErrIndexWrite, "flush store", err)
		}
	}
	if err := s.rewriteRecords(ctx, &buf); err != nil {
		return domain.WrapError(domain.ErrIndexWrite, "flush store", err)
	}

	manifest := s.manifest
	manifest.FormatVersion = formatVersion
	manifest.Similarity = similarity
	manifest.VectorCount = len(s.entries)
	manifest.UpdatedAt = time.Now().UTC()
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return domain.WrapError(domain.ErrIndexWrite, "flush store", err)
	}
	if err := s.files.Save(ctx, manifestKey, bytes.NewReader(raw)); err != nil {
		return domain.WrapError(domain.ErrIndexWrite, "flush store", err)
	}

	s.manifest = manifest
	s.pending = nil
	s.dirty = false
	slog.Info("store_flushed",
		"path", s.files.Path(""),
		"embedding_model", manifest.EmbeddingModel,
		"vector_count", manifest.VectorCount,
	)
	return nil
}

func (s *Store) rewriteRecords(ctx context.Context, tail io.Reader) error {
	existing, err := s.files.Open(ctx, recordsKey)
	if errors.Is(err, os.ErrNotExist) {
		return s.files.Save(ctx, recordsKey, tail)
	}
	if err != nil {
		return err
	}
	defer existing.Close()
	return s.files.Save(ctx, recordsKey, io.MultiReader(existing, tail))
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}
