package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"
)

type Chunk struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	CharLength    int      `json:"charLength"`
	SourceURL     string   `json:"sourceUrl"`
	Title         string   `json:"title,omitempty"`
	HeadingPath   []string `json:"headingPath"`
	SequenceIndex int      `json:"sequenceIndex"`
	ContentHash   string   `json:"contentHash"`
}

// ChunkID derives a stable identifier from the source url and position, so
// re-running on unchanged content reproduces the same ids.
func ChunkID(sourceURL string, sequenceIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceURL+"#"+strconv.Itoa(sequenceIndex))).String()
}

func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// VectorRecord pairs a chunk with its embedding. Records are only ever appended;
// a later record for the same chunk id shadows earlier ones.
type VectorRecord struct {
	ChunkID     string    `json:"chunkId"`
	Vector      []float32 `json:"vector"`
	ContentHash string    `json:"contentHash"`
	Chunk       Chunk     `json:"metadata"`
}
