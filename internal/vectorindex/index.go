// Package vectorindex stores chunk embeddings and answers owner-scoped
// similarity queries.
package vectorindex

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/liliang-cn/docchat/internal/domain"
	"go.uber.org/zap"
)

// Index is a namespace-scoped vector store.
type Index interface {
	// Upsert writes entries, overwriting any with the same id.
	Upsert(ctx context.Context, entries []domain.VectorEntry) error
	// Query returns up to topK matches for vector, best first, restricted
	// to the filter's owner.
	Query(ctx context.Context, vector []float32, topK int, filter domain.VectorFilter) ([]domain.VectorMatch, error)
	// DeleteMany removes the given ids. Absent ids are not an error.
	DeleteMany(ctx context.Context, ids []string) error
}

const (
	ProviderPinecone = "pinecone"
	ProviderPGVector = "pgvector"
	ProviderMemory   = "memory"
)

// Config selects and configures an index implementation.
type Config struct {
	Provider        string
	Namespace       string
	UpsertBatchSize int
	Pinecone        PineconeConfig
	PGVector        PGVectorConfig
}

// PineconeConfig configures the Pinecone REST client.
type PineconeConfig struct {
	APIKey     string
	IndexName  string
	IndexHost  string
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
}

// PGVectorConfig configures the PostgreSQL pgvector store.
type PGVectorConfig struct {
	DSN       string
	Table     string
	Dimension int
}

// New builds the configured index. Connections are opened lazily on first
// use.
func New(cfg Config, logger *zap.Logger) (Index, error) {
	var (
		idx Index
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderPinecone:
		idx, err = NewPinecone(cfg.Pinecone, cfg.Namespace, logger)
	case ProviderPGVector:
		idx, err = NewPGVector(cfg.PGVector, cfg.Namespace)
	case ProviderMemory, "":
		idx = NewMemory()
	default:
		return nil, fmt.Errorf("unknown vector provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return Batched(idx, cfg.UpsertBatchSize), nil
}

func validateQuery(op string, vector []float32, topK int, filter domain.VectorFilter) error {
	switch {
	case strings.TrimSpace(filter.OwnerID) == "":
		return domain.NewError(domain.KindIndexQuery, op, "owner filter required", nil)
	case len(vector) == 0:
		return domain.NewError(domain.KindIndexQuery, op, "query vector required", nil)
	case topK <= 0:
		return domain.NewError(domain.KindIndexQuery, op, "topK must be positive", nil)
	}
	return nil
}

type batched struct {
	Index
	size int
}

// Batched sends upserts to idx in slices of at most size entries, for
// stores that cap the request size. size <= 0 returns idx unchanged.
func Batched(idx Index, size int) Index {
	if size <= 0 {
		return idx
	}
	return &batched{Index: idx, size: size}
}

func (b *batched) Upsert(ctx context.Context, entries []domain.VectorEntry) error {
	for start := 0; start < len(entries); start += b.size {
		end := min(start+b.size, len(entries))
		if err := b.Index.Upsert(ctx, entries[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the wrapped index when it holds resources.
func (b *batched) Close() error {
	if c, ok := b.Index.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
