package domain

import (
	"fmt"
	"time"
)

// DocumentStatus is the lifecycle state of an uploaded document.
type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentStatusProcessing, DocumentStatusCompleted, DocumentStatusFailed:
		return true
	}
	return false
}

// Document is an uploaded file owned by one user.
// VectorIDs is the authoritative list of index entries derived from it.
type Document struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	Filename    string         `json:"filename"`
	StoragePath string         `json:"storage_path"`
	FileSize    int64          `json:"file_size"`
	MimeType    string         `json:"mime_type"`
	Status      DocumentStatus `json:"status"`
	VectorIDs   []string       `json:"vector_ids"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Chunk is a transient segment of a document's text.
type Chunk struct {
	Index      int
	Text       string
	DocumentID string
	OwnerID    string
}

// VectorID is the deterministic index id for a chunk, so re-ingestion
// overwrites rather than duplicates.
func VectorID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

// DocumentListResponse is the response for listing documents
type DocumentListResponse struct {
	Documents []*Document `json:"documents"`
	Total     int         `json:"total"`
}

// IngestResult reports the outcome of one ingestion run.
type IngestResult struct {
	DocumentID string   `json:"document_id"`
	VectorIDs  []string `json:"vector_ids"`
	ChunkCount int      `json:"chunks"`
	Delegated  bool     `json:"delegated,omitempty"`
	Message    string   `json:"message,omitempty"`
}
