package domain

import (
	"fmt"
	"math"
)

// Metadata keys stored alongside every vector in the index.
const (
	MetadataKeyDocumentID = "documentId"
	MetadataKeyOwnerID    = "ownerId"
	MetadataKeyFilename   = "filename"
	MetadataKeyChunkIndex = "chunkIndex"
	MetadataKeyText       = "text"
)

// VectorMetadata is the payload stored with a chunk embedding.
type VectorMetadata struct {
	DocumentID string
	OwnerID    string
	Filename   string
	ChunkIndex int
	Text       string
}

// Map renders the metadata with the index payload keys.
func (m VectorMetadata) Map() map[string]any {
	return map[string]any{
		MetadataKeyDocumentID: m.DocumentID,
		MetadataKeyOwnerID:    m.OwnerID,
		MetadataKeyFilename:   m.Filename,
		MetadataKeyChunkIndex: m.ChunkIndex,
		MetadataKeyText:       m.Text,
	}
}

// VectorMetadataFromMap parses an index payload. Numbers decoded from JSON
// arrive as float64 and are accepted for chunkIndex.
func VectorMetadataFromMap(raw map[string]any) (VectorMetadata, error) {
	var m VectorMetadata
	if raw == nil {
		return m, fmt.Errorf("metadata missing")
	}
	m.DocumentID, _ = raw[MetadataKeyDocumentID].(string)
	m.OwnerID, _ = raw[MetadataKeyOwnerID].(string)
	m.Filename, _ = raw[MetadataKeyFilename].(string)
	m.Text, _ = raw[MetadataKeyText].(string)

	switch v := raw[MetadataKeyChunkIndex].(type) {
	case int:
		m.ChunkIndex = v
	case int64:
		m.ChunkIndex = int(v)
	case float64:
		if v != math.Trunc(v) {
			return m, fmt.Errorf("chunkIndex %v is not an integer", v)
		}
		m.ChunkIndex = int(v)
	case nil:
	default:
		return m, fmt.Errorf("chunkIndex has type %T", v)
	}
	return m, nil
}

// VectorEntry is one embedding plus its metadata.
type VectorEntry struct {
	ID       string
	Values   []float32
	Metadata VectorMetadata
}

// VectorMatch is a query hit. Score is nil when the index omitted it.
type VectorMatch struct {
	ID       string
	Score    *float64
	Metadata VectorMetadata
}

// VectorFilter restricts a query. OwnerID is mandatory.
type VectorFilter struct {
	OwnerID    string
	DocumentID string
}
