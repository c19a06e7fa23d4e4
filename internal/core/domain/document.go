package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Document is immutable once ready, except for deletion.
type Document struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Filename    string         `json:"filename"`
	MimeType    string         `json:"mime_type"`
	FileType    string         `json:"file_type"`
	StoragePath string         `json:"storage_path,omitempty"`
	WordCount   int            `json:"word_count"`
	Imported    bool           `json:"imported"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Chunk is the atomic retrieval unit. Embedding is attached after chunking
// and is read-only to retrieval.
type Chunk struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"document_id"`
	Index        int       `json:"index"`
	Text         string    `json:"text"`
	WordCount    int       `json:"word_count"`
	Section      *int      `json:"section,omitempty"`
	SectionTitle string    `json:"section_title,omitempty"`
	Embedding    []float32 `json:"embedding,omitempty"`
}

// DocumentExport is the portable form of a processed document.
type DocumentExport struct {
	Document Document `json:"document"`
	Chunks   []Chunk  `json:"chunks"`
}
