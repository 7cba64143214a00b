package domain

import "time"

type PageStatus string

const (
	PageIndexed PageStatus = "indexed"
	PageSkipped PageStatus = "skipped"
	PageFailed  PageStatus = "failed"
)

// PageOutcome is the per-URL result of one pipeline unit.
type PageOutcome struct {
	URL         string        `json:"url"`
	Status      PageStatus    `json:"status"`
	ErrorKind   ErrorKind     `json:"errorKind,omitempty"`
	Error       string        `json:"error,omitempty"`
	Title       string        `json:"title,omitempty"`
	Description string        `json:"description,omitempty"`
	Method      string        `json:"method,omitempty"`
	Chunks      []Chunk       `json:"-"`
	Indexed     int           `json:"indexed"`
	Skipped     int           `json:"skipped"`
	Duration    time.Duration `json:"-"`
	ExtractedAt time.Time     `json:"extractedAt"`
	HTTPStatus  int           `json:"httpStatus,omitempty"`
	Rendered    bool          `json:"rendered,omitempty"`
}

// FetchStatus label written to per-site output: "ok" or the error kind.
func (o PageOutcome) FetchStatusLabel() string {
	if o.ErrorKind == "" {
		return "ok"
	}
	return string(o.ErrorKind)
}

type FailedURL struct {
	URL       string    `json:"url"`
	ErrorKind ErrorKind `json:"errorKind"`
	Error     string    `json:"error,omitempty"`
}

type ContentStats struct {
	AverageChunkLength float64 `json:"averageChunkLength"`
	MinChunkLength     int     `json:"minChunkLength"`
	MaxChunkLength     int     `json:"maxChunkLength"`
	TotalCharacters    int     `json:"totalCharacters"`
	UniqueSources      int     `json:"uniqueSources"`
}

type RunSummary struct {
	TotalURLs          int          `json:"totalUrls"`
	SuccessfulURLs     int          `json:"successfulUrls"`
	TotalChunks        int          `json:"totalChunks"`
	TotalChunksIndexed int          `json:"totalChunksIndexed"`
	TotalChunksSkipped int          `json:"totalChunksSkipped"`
	FailedURLs         []FailedURL  `json:"failedUrls"`
	EmbeddingModel     string       `json:"embeddingModel"`
	VectorCount        int          `json:"vectorCount"`
	ContentStats       ContentStats `json:"contentStats"`
	StartedAt          time.Time    `json:"startedAt"`
	FinishedAt         time.Time    `json:"finishedAt"`
}

// StoreFlushed is published after a run has flushed the vector store.
type StoreFlushed struct {
	EmbeddingModel string    `json:"embeddingModel"`
	VectorCount    int       `json:"vectorCount"`
	TotalURLs      int       `json:"totalUrls"`
	FailedURLs     int       `json:"failedUrls"`
	FlushedAt      time.Time `json:"flushedAt"`
}
