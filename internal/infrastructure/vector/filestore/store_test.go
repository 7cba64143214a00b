package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/webrag/internal/core/domain"
)

func record(id, text string, vector ...float32) domain.VectorRecord {
	hash := domain.ContentHash(text)
	return domain.VectorRecord{
		ChunkID:     id,
		Vector:      vector,
		ContentHash: hash,
		Chunk: domain.Chunk{
			ID:          id,
			Text:        text,
			SourceURL:   "https://example.com/" + id,
			HeadingPath: []string{"Section"},
			ContentHash: hash,
		},
	}
}

func openBound(t *testing.T, dir string) *Store {
	t.Helper()
	store, err := Open(context.Background(), dir, Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.Bind(context.Background(), "test-model", 2); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	return store
}

func TestSearchRanksByCosineThenID(t *testing.T) {
	ctx := context.Background()
	store := openBound(t, t.TempDir())
	if err := store.Append(ctx, []domain.VectorRecord{
		record("c", "orthogonal", 0, 1),
		record("b", "same direction", 2, 0),
		record("a", "same direction too", 1, 0),
		record("d", "halfway", 1, 1),
	}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	results, err := store.Search(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].ChunkID != "a" || results[1].ChunkID != "b" || results[2].ChunkID != "d" {
		t.Fatalf("unexpected order: %s %s %s", results[0].ChunkID, results[1].ChunkID, results[2].ChunkID)
	}
	if results[0].Score < 0.999 || results[0].SourceURL != "https://example.com/a" {
		t.Fatalf("unexpected top result: %+v", results[0])
	}
}

func TestSearchEmptyStore(t *testing.T) {
	store := openBound(t, t.TempDir())
	if _, err := store.Search(context.Background(), []float32{1, 0}, 3); !errors.Is(err, domain.ErrEmptyStore) {
		t.Fatalf("expected ErrEmptyStore, got %v", err)
	}
}

func TestFlushPersistsAndLatestRecordWins(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store := openBound(t, dir)
	if err := store.Append(ctx, []domain.VectorRecord{record("a", "old text", 1, 0)}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	store = openBound(t, dir)
	if err := store.Append(ctx, []domain.VectorRecord{record("a", "new text", 0, 1), record("b", "other", 1, 1)}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	reopened, err := Open(ctx, dir, Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	info, _ := reopened.Info(ctx)
	if info.VectorCount != 2 || info.EmbeddingModel != "test-model" || info.Dimensions != 2 {
		t.Fatalf("unexpected info: %+v", info)
	}
	hashes, _ := reopened.ExistingHashes(ctx, []string{"a", "b", "missing"})
	if hashes["a"] != domain.ContentHash("new text") || len(hashes) != 2 {
		t.Fatalf("expected latest record to shadow, got %v", hashes)
	}

	raw, err := os.ReadFile(filepath.Join(dir, manifestKey))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if manifest.FormatVersion != formatVersion || manifest.Similarity != "cosine" || manifest.VectorCount != 2 {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}
}

func TestBindRejectsOtherModel(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := openBound(t, dir)
	_ = store.Append(ctx, []domain.VectorRecord{record("a", "text", 1, 0)})
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	reopened, err := Open(ctx, dir, Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := reopened.Bind(ctx, "other-model", 2); !errors.Is(err, domain.ErrEmbeddingModelMismatch) {
		t.Fatalf("expected model mismatch, got %v", err)
	}
	if err := reopened.Bind(ctx, "test-model", 3); !errors.Is(err, domain.ErrEmbeddingModelMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestAppendValidatesDimensions(t *testing.T) {
	store := openBound(t, t.TempDir())
	err := store.Append(context.Background(), []domain.VectorRecord{record("a", "text", 1, 0, 0)})
	if !errors.Is(err, domain.ErrIndexWrite) {
		t.Fatalf("expected ErrIndexWrite, got %v", err)
	}
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	store, err := Open(context.Background(), t.TempDir(), Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.Append(context.Background(), []domain.VectorRecord{record("a", "x", 1)}); !errors.Is(err, domain.ErrIndexWrite) {
		t.Fatalf("expected ErrIndexWrite, got %v", err)
	}
}

func TestFlushFailureIsIndexWriteError(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "store")
	store := openBound(t, dir)
	_ = store.Append(ctx, []domain.VectorRecord{record("a", "text", 1, 0)})

	if err := os.WriteFile(dir, []byte("not a directory"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	if err := store.Flush(ctx); !errors.Is(err, domain.ErrIndexWrite) {
		t.Fatalf("expected ErrIndexWrite, got %v", err)
	}
}
