package service

import (
	"context"
	"strings"

	"github.com/liliang-cn/docchat/internal/domain"
	"github.com/liliang-cn/docchat/internal/retry"
	"go.uber.org/zap"
)

const (
	DefaultTopK           = 5
	DefaultScoreThreshold = 0.7
)

// Retrieval is the context assembled for one query.
type Retrieval struct {
	Context string
	Chunks  []string
	Sources []domain.Source
}

// Retriever finds the owner's chunks most relevant to a query.
type Retriever struct {
	embedder   Embedder
	index      VectorIndex
	topK       int
	threshold  float64
	embedRetry retry.Policy
	logger     *zap.Logger
}

// NewRetriever creates a retriever with default topK and score threshold.
func NewRetriever(embedder Embedder, index VectorIndex, topK int, threshold float64, embedRetry retry.Policy, logger *zap.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder:   embedder,
		index:      index,
		topK:       topK,
		threshold:  threshold,
		embedRetry: embedRetry,
		logger:     logger.Named("retriever"),
	}
}

// Retrieve runs RetrieveWith using the configured topK and threshold.
func (r *Retriever) Retrieve(ctx context.Context, query, ownerID string) (*Retrieval, error) {
	return r.RetrieveWith(ctx, query, ownerID, r.topK, r.threshold)
}

// RetrieveWith embeds query and returns at most topK of ownerID's chunks
// whose score is strictly above threshold, in index order.
func (r *Retriever) RetrieveWith(ctx context.Context, query, ownerID string, topK int, threshold float64) (*Retrieval, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "retrieve", "query is empty", nil)
	}
	if ownerID == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "retrieve", "owner is required", nil)
	}

	vec, err := retry.Do(ctx, r.embedRetry, func(ctx context.Context) ([]float32, error) {
		return r.embedder.Embed(ctx, query)
	})
	if err != nil {
		return nil, domain.Wrap(domain.KindEmbeddingService, "embed query", err)
	}

	matches, err := r.index.Query(ctx, vec, topK, domain.VectorFilter{OwnerID: ownerID})
	if err != nil {
		return nil, domain.Wrap(domain.KindIndexQuery, "query", err)
	}

	result := &Retrieval{Chunks: []string{}, Sources: []domain.Source{}}
	for _, m := range matches {
		if m.Score == nil || *m.Score <= threshold {
			continue
		}
		if m.Metadata.OwnerID != ownerID {
			r.logger.Warn("Dropping match owned by another user", zap.String("vector_id", m.ID))
			continue
		}
		result.Chunks = append(result.Chunks, m.Metadata.Text)
		result.Sources = append(result.Sources, domain.Source{
			DocumentID:     m.Metadata.DocumentID,
			Filename:       m.Metadata.Filename,
			RelevanceScore: *m.Score,
		})
	}
	result.Context = strings.Join(result.Chunks, "\n\n")

	r.logger.Debug("Retrieved context",
		zap.Int("matches", len(matches)),
		zap.Int("kept", len(result.Chunks)))
	return result, nil
}
