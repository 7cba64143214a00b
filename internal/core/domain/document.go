package domain

import "time"

// Page is a fetched response body. It is handed to the extractor and never persisted.
type Page struct {
	URL         string    `json:"url"`
	FinalURL    string    `json:"final_url"`
	Body        []byte    `json:"-"`
	ContentType string    `json:"content_type"`
	StatusCode  int       `json:"status_code"`
	FetchedAt   time.Time `json:"fetched_at"`
	Rendered    bool      `json:"rendered"`
}

type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// CleanedDocument is the normalized markdown of a page's main content region.
type CleanedDocument struct {
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Text        string    `json:"text"`
	Headings    []Heading `json:"headings"`
	Method      string    `json:"method"`
	ExtractedAt time.Time `json:"extracted_at"`
}
