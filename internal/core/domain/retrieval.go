package domain

type QueryResult struct {
	ChunkID     string   `json:"chunkId"`
	Score       float64  `json:"score"`
	Text        string   `json:"text"`
	SourceURL   string   `json:"sourceUrl"`
	Title       string   `json:"title,omitempty"`
	HeadingPath []string `json:"headingPath"`
}

type StoreInfo struct {
	EmbeddingModel string `json:"embeddingModel"`
	Dimensions     int    `json:"dimensions"`
	VectorCount    int    `json:"vectorCount"`
}
