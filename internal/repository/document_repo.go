package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/docchat/internal/domain"
)

// DocumentRepository handles document persistence
type DocumentRepository struct {
	db *DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, owner_id, filename, storage_path, file_size, mime_type, status, vector_ids, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	doc := &domain.Document{}
	var vectorIDsJSON string
	var metadataJSON sql.NullString

	if err := row.Scan(&doc.ID, &doc.OwnerID, &doc.Filename, &doc.StoragePath, &doc.FileSize,
		&doc.MimeType, &doc.Status, &vectorIDsJSON, &metadataJSON, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}

	doc.VectorIDs = []string{}
	if vectorIDsJSON != "" {
		if err := json.Unmarshal([]byte(vectorIDsJSON), &doc.VectorIDs); err != nil {
			return nil, err
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata)
	}
	return doc, nil
}

// Create creates a new document record
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.Status == "" {
		doc.Status = domain.DocumentStatusProcessing
	}
	if doc.VectorIDs == nil {
		doc.VectorIDs = []string{}
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	vectorIDsJSON, _ := json.Marshal(doc.VectorIDs)
	metadataJSON, _ := json.Marshal(doc.Metadata)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.OwnerID, doc.Filename, doc.StoragePath, doc.FileSize, doc.MimeType,
		string(doc.Status), string(vectorIDsJSON), string(metadataJSON), doc.CreatedAt, doc.UpdatedAt)

	return storageErr("create document", err)
}

// Get retrieves a document by ID, scoped to the owner in ctx.
// It returns nil, nil when no visible document exists.
func (r *DocumentRepository) Get(ctx context.Context, id string) (*domain.Document, error) {
	scope, args := ownerScope(ctx, "owner_id", []any{id})
	doc, err := scanDocument(r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`+scope, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get document", err)
	}
	return doc, nil
}

// List retrieves the owner's documents, newest first
func (r *DocumentRepository) List(ctx context.Context, ownerID string) ([]*domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents WHERE owner_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, ownerID)
	if err != nil {
		return nil, storageErr("list documents", err)
	}
	defer rows.Close()

	docs := []*domain.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, storageErr("list documents", err)
		}
		docs = append(docs, doc)
	}

	return docs, storageErr("list documents", rows.Err())
}

// MarkProcessing sets the status to processing without touching vector ids.
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.setStatus(ctx, "mark processing", id, domain.DocumentStatusProcessing)
}

// MarkFailed sets the status to failed without touching vector ids.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id string) error {
	return r.setStatus(ctx, "mark failed", id, domain.DocumentStatusFailed)
}

// MarkCompleted records the full vector id list and completes the document
// in one statement.
func (r *DocumentRepository) MarkCompleted(ctx context.Context, id string, vectorIDs []string) error {
	if vectorIDs == nil {
		vectorIDs = []string{}
	}
	vectorIDsJSON, _ := json.Marshal(vectorIDs)

	result, err := r.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, vector_ids = ?, updated_at = ?
		WHERE id = ?
	`, string(domain.DocumentStatusCompleted), string(vectorIDsJSON), time.Now().UTC(), id)
	if err != nil {
		return storageErr("mark completed", err)
	}
	return requireAffected(result, "mark completed", id)
}

func (r *DocumentRepository) setStatus(ctx context.Context, op, id string, status domain.DocumentStatus) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, updated_at = ?
		WHERE id = ?
	`, string(status), time.Now().UTC(), id)
	if err != nil {
		return storageErr(op, err)
	}
	return requireAffected(result, op, id)
}

// Delete deletes a document record, scoped to the owner in ctx.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	scope, args := ownerScope(ctx, "owner_id", []any{id})
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`+scope, args...)
	if err != nil {
		return storageErr("delete document", err)
	}
	return requireAffected(result, "delete document", id)
}

func requireAffected(result sql.Result, op, id string) error {
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return domain.NewError(domain.KindDocumentNotFound, op, "document not found: "+id, nil)
	}
	return nil
}
