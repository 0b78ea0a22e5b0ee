package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/docchat/internal/domain"
	"github.com/liliang-cn/docchat/internal/extract"
	"go.uber.org/zap"
)

// DocumentOptions configures uploads and background ingestion
type DocumentOptions struct {
	AutoIngest     bool
	IngestTimeout  time.Duration
	MaxUploadBytes int64
}

// UploadInput is one uploaded file
type UploadInput struct {
	Filename    string
	ContentType string
	Body        io.Reader
	Metadata    map[string]any
}

// DocumentService handles document uploads, listing and deletion
type DocumentService struct {
	docs   DocumentStore
	blobs  BlobStore
	index  VectorIndex
	ingest *IngestService
	opts   DocumentOptions
	logger *zap.Logger

	wg sync.WaitGroup
}

// NewDocumentService creates a new document service
func NewDocumentService(
	docs DocumentStore,
	blobs BlobStore,
	index VectorIndex,
	ingest *IngestService,
	opts DocumentOptions,
	logger *zap.Logger,
) *DocumentService {
	if opts.IngestTimeout <= 0 {
		opts.IngestTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		docs:   docs,
		blobs:  blobs,
		index:  index,
		ingest: ingest,
		opts:   opts,
		logger: logger.Named("documents"),
	}
}

// Upload stores the file, records it as processing and, when auto ingest is
// on, starts ingestion in the background.
func (s *DocumentService) Upload(ctx context.Context, ownerID string, in UploadInput) (*domain.Document, error) {
	const op = "upload"

	if ownerID == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, op, "owner is required", nil)
	}
	filename := filepath.Base(strings.TrimSpace(in.Filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, domain.NewError(domain.KindInvalidRequest, op, "filename is required", nil)
	}

	body := in.Body
	if s.opts.MaxUploadBytes > 0 {
		body = io.LimitReader(body, s.opts.MaxUploadBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, domain.NewError(domain.KindInvalidRequest, op, "read upload", err)
	}
	if s.opts.MaxUploadBytes > 0 && int64(len(data)) > s.opts.MaxUploadBytes {
		return nil, domain.NewError(domain.KindInvalidRequest, op,
			fmt.Sprintf("file exceeds %d bytes", s.opts.MaxUploadBytes), nil)
	}

	doc := &domain.Document{
		ID:       uuid.New().String(),
		OwnerID:  ownerID,
		Filename: filename,
		FileSize: int64(len(data)),
		MimeType: extract.ResolveMimeType(in.ContentType, filename, data),
		Status:   domain.DocumentStatusProcessing,
		Metadata: in.Metadata,
	}
	doc.StoragePath = ownerID + "/" + doc.ID + strings.ToLower(filepath.Ext(filename))

	if err := s.blobs.Put(ctx, doc.StoragePath, bytes.NewReader(data), doc.MimeType); err != nil {
		return nil, domain.Wrap(domain.KindStorage, op, err)
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), doc.StoragePath); derr != nil {
			s.logger.Warn("Failed to remove orphaned upload", zap.String("path", doc.StoragePath), zap.Error(derr))
		}
		return nil, err
	}

	s.logger.Info("Document uploaded",
		zap.String("document_id", doc.ID),
		zap.String("owner_id", ownerID),
		zap.String("mime_type", doc.MimeType),
		zap.Int64("size", doc.FileSize))

	if s.opts.AutoIngest && s.ingest != nil {
		s.ingestAsync(ctx, doc.ID)
	}
	return doc, nil
}

func (s *DocumentService) ingestAsync(ctx context.Context, documentID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.IngestTimeout)
		defer cancel()
		if _, err := s.ingest.IngestDocument(ctx, documentID); err != nil {
			s.logger.Warn("Background ingestion failed", zap.String("document_id", documentID), zap.Error(err))
		}
	}()
}

// Wait blocks until background ingestions started by Upload finish.
func (s *DocumentService) Wait() {
	s.wg.Wait()
}

// Get returns one of the owner's documents
func (s *DocumentService) Get(ctx context.Context, ownerID, id string) (*domain.Document, error) {
	doc, err := s.docs.Get(domain.WithOwner(ctx, ownerID), id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, domain.NewError(domain.KindDocumentNotFound, "get document", "document not found: "+id, nil)
	}
	return doc, nil
}

// List returns the owner's documents, newest first
func (s *DocumentService) List(ctx context.Context, ownerID string) (*domain.DocumentListResponse, error) {
	docs, err := s.docs.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &domain.DocumentListResponse{Documents: docs, Total: len(docs)}, nil
}

// DeleteDocumentVectors removes the document's recorded vectors from the
// index. Index failures are logged and swallowed so that callers can go on
// deleting the record. An owner in ctx scopes the lookup.
func (s *DocumentService) DeleteDocumentVectors(ctx context.Context, documentID string) error {
	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return domain.NewError(domain.KindDocumentNotFound, "delete vectors", "document not found: "+documentID, nil)
	}
	s.deleteVectors(ctx, doc)
	return nil
}

func (s *DocumentService) deleteVectors(ctx context.Context, doc *domain.Document) {
	if len(doc.VectorIDs) == 0 {
		return
	}
	if err := s.index.DeleteMany(ctx, doc.VectorIDs); err != nil {
		s.logger.Warn("Failed to delete document vectors",
			zap.String("document_id", doc.ID),
			zap.Int("count", len(doc.VectorIDs)),
			zap.Error(err))
		return
	}
	s.logger.Info("Deleted document vectors",
		zap.String("document_id", doc.ID),
		zap.Int("count", len(doc.VectorIDs)))
}

// Delete removes the document's vectors, its record and its stored file
func (s *DocumentService) Delete(ctx context.Context, ownerID, id string) error {
	ctx = domain.WithOwner(ctx, ownerID)

	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return domain.NewError(domain.KindDocumentNotFound, "delete document", "document not found: "+id, nil)
	}

	s.deleteVectors(ctx, doc)
	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, doc.StoragePath); err != nil {
		s.logger.Warn("Failed to delete stored file", zap.String("path", doc.StoragePath), zap.Error(err))
	}
	return nil
}
