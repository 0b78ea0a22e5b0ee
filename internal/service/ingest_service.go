package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/liliang-cn/docchat/internal/chunker"
	"github.com/liliang-cn/docchat/internal/delegation"
	"github.com/liliang-cn/docchat/internal/domain"
	"github.com/liliang-cn/docchat/internal/retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// IngestOptions configures the ingestion pipeline
type IngestOptions struct {
	ChunkSize   int
	Concurrency int
	EmbedRetry  retry.Policy
	IndexRetry  retry.Policy
}

// IngestService turns a stored document into vector index entries
type IngestService struct {
	docs      DocumentStore
	extractor TextExtractor
	embedder  Embedder
	index     VectorIndex
	gate      Delegator
	opts      IngestOptions
	logger    *zap.Logger
}

// NewIngestService creates a new ingest service
func NewIngestService(
	docs DocumentStore,
	extractor TextExtractor,
	embedder Embedder,
	index VectorIndex,
	gate Delegator,
	opts IngestOptions,
	logger *zap.Logger,
) *IngestService {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunker.DefaultChunkSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{
		docs:      docs,
		extractor: extractor,
		embedder:  embedder,
		index:     index,
		gate:      gate,
		opts:      opts,
		logger:    logger.Named("ingest"),
	}
}

// IngestDocument chunks, embeds and indexes one document. On success the
// document is completed with exactly the vector ids written; on any failure
// it is marked failed and its recorded vector ids are left as they were.
func (s *IngestService) IngestDocument(ctx context.Context, documentID string) (*domain.IngestResult, error) {
	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, domain.NewError(domain.KindDocumentNotFound, "ingest", "document not found: "+documentID, nil)
	}

	if s.gate != nil && s.gate.IsDelegated(delegation.KindIngest) {
		return s.delegate(ctx, doc)
	}

	log := s.logger.With(zap.String("document_id", doc.ID), zap.String("owner_id", doc.OwnerID))

	if err := s.docs.MarkProcessing(ctx, doc.ID); err != nil {
		return nil, err
	}

	vectorIDs, err := s.run(ctx, doc, log)
	if err != nil {
		s.fail(ctx, doc, err, log)
		return nil, err
	}

	if err := s.docs.MarkCompleted(ctx, doc.ID, vectorIDs); err != nil {
		s.discardUnrecorded(ctx, doc, vectorIDs, log)
		s.fail(ctx, doc, err, log)
		return nil, err
	}
	// Stale ids go only once the new set is recorded.
	s.deleteStale(ctx, doc, vectorIDs, log)

	log.Info("Document ingested", zap.Int("chunks", len(vectorIDs)))
	return &domain.IngestResult{
		DocumentID: doc.ID,
		VectorIDs:  vectorIDs,
		ChunkCount: len(vectorIDs),
	}, nil
}

func (s *IngestService) run(ctx context.Context, doc *domain.Document, log *zap.Logger) ([]string, error) {
	text, err := s.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, err
	}

	chunks := chunker.Chunks(doc, text, s.opts.ChunkSize)
	if len(chunks) == 0 {
		return []string{}, nil
	}

	entries, err := s.embedChunks(ctx, doc, chunks)
	if err != nil {
		return nil, err
	}

	vectorIDs := make([]string, len(entries))
	for i, e := range entries {
		vectorIDs[i] = e.ID
	}

	err = retry.Run(ctx, s.opts.IndexRetry, func(ctx context.Context) error {
		return s.index.Upsert(ctx, entries)
	})
	if err != nil {
		s.discardUnrecorded(ctx, doc, vectorIDs, log)
		return nil, domain.Wrap(domain.KindIndexWrite, "upsert", err)
	}
	return vectorIDs, nil
}

// embedChunks embeds every chunk with bounded concurrency. The first failure
// cancels the rest and nothing is returned.
func (s *IngestService) embedChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.VectorEntry, error) {
	entries := make([]domain.VectorEntry, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, c := range chunks {
		g.Go(func() error {
			vec, err := retry.Do(gctx, s.opts.EmbedRetry, func(ctx context.Context) ([]float32, error) {
				return s.embedder.Embed(ctx, c.Text)
			})
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", c.Index, domain.Wrap(domain.KindEmbeddingService, "embed", err))
			}
			entries[i] = domain.VectorEntry{
				ID:     domain.VectorID(doc.ID, c.Index),
				Values: vec,
				Metadata: domain.VectorMetadata{
					DocumentID: doc.ID,
					OwnerID:    doc.OwnerID,
					Filename:   doc.Filename,
					ChunkIndex: c.Index,
					Text:       c.Text,
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// deleteStale removes ids recorded by an earlier run that this run no
// longer produces. Callers run it after the new set is recorded.
func (s *IngestService) deleteStale(ctx context.Context, doc *domain.Document, current []string, log *zap.Logger) {
	var stale []string
	for _, id := range doc.VectorIDs {
		if !slices.Contains(current, id) {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return
	}
	if err := s.index.DeleteMany(ctx, stale); err != nil {
		log.Warn("Failed to delete stale vectors", zap.Int("count", len(stale)), zap.Error(err))
	}
}

// discardUnrecorded removes ids this run may have written that the
// document does not already record.
func (s *IngestService) discardUnrecorded(ctx context.Context, doc *domain.Document, written []string, log *zap.Logger) {
	var unrecorded []string
	for _, id := range written {
		if !slices.Contains(doc.VectorIDs, id) {
			unrecorded = append(unrecorded, id)
		}
	}
	if len(unrecorded) == 0 {
		return
	}
	if err := s.index.DeleteMany(context.WithoutCancel(ctx), unrecorded); err != nil {
		log.Warn("Failed to discard partially written vectors", zap.Int("count", len(unrecorded)), zap.Error(err))
	}
}

func (s *IngestService) fail(ctx context.Context, doc *domain.Document, cause error, log *zap.Logger) {
	// Record the failure even when ctx was cancelled.
	if err := s.docs.MarkFailed(context.WithoutCancel(ctx), doc.ID); err != nil {
		log.Error("Failed to mark document failed", zap.Error(err))
	}
	log.Error("Ingestion failed", zap.Error(cause))
}

func (s *IngestService) delegate(ctx context.Context, doc *domain.Document) (*domain.IngestResult, error) {
	log := s.logger.With(zap.String("document_id", doc.ID))

	ack, err := s.gate.ForwardIngest(ctx, delegation.IngestRequest{
		DocumentID: doc.ID,
		FilePath:   doc.StoragePath,
		Filename:   doc.Filename,
		OwnerID:    doc.OwnerID,
	})
	if err != nil {
		s.fail(ctx, doc, err, log)
		return nil, err
	}

	result := &domain.IngestResult{
		DocumentID: doc.ID,
		VectorIDs:  ack.VectorIDs,
		ChunkCount: ack.Chunks,
		Delegated:  true,
		Message:    ack.Message,
	}
	if result.VectorIDs == nil {
		result.VectorIDs = []string{}
	}
	if result.Message == "" {
		result.Message = "Embedding process started via workflow"
	}
	if len(result.VectorIDs) > 0 {
		if result.ChunkCount == 0 {
			result.ChunkCount = len(result.VectorIDs)
		}
		if err := s.docs.MarkCompleted(ctx, doc.ID, result.VectorIDs); err != nil {
			return nil, err
		}
	}

	log.Info("Ingestion delegated", zap.Int("vectors", len(result.VectorIDs)))
	return result, nil
}
