package service

import (
	"context"
	"io"

	"github.com/liliang-cn/docchat/internal/delegation"
	"github.com/liliang-cn/docchat/internal/domain"
)

// DocumentStore is the document half of the record store.
type DocumentStore interface {
	Create(ctx context.Context, doc *domain.Document) error
	Get(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, ownerID string) ([]*domain.Document, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, vectorIDs []string) error
	MarkFailed(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// SessionStore is the chat half of the record store.
type SessionStore interface {
	Create(ctx context.Context, session *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	List(ctx context.Context, ownerID string) ([]*domain.Session, error)
	Touch(ctx context.Context, id string) error
	CreateMessage(ctx context.Context, message *domain.Message) error
	GetMessages(ctx context.Context, sessionID string) ([]*domain.Message, error)
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]*domain.Message, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the owner-scoped vector store.
type VectorIndex interface {
	Upsert(ctx context.Context, entries []domain.VectorEntry) error
	Query(ctx context.Context, vector []float32, topK int, filter domain.VectorFilter) ([]domain.VectorMatch, error)
	DeleteMany(ctx context.Context, ids []string) error
}

// Completer produces one chat completion.
type Completer interface {
	Complete(ctx context.Context, messages []domain.PromptMessage) (string, error)
}

// TextExtractor returns the plain text of a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// BlobStore keeps uploaded files.
type BlobStore interface {
	Put(ctx context.Context, locator string, r io.Reader, contentType string) error
	Delete(ctx context.Context, locator string) error
}

// Delegator routes work to an external workflow when configured.
type Delegator interface {
	IsDelegated(kind delegation.Kind) bool
	ForwardChat(ctx context.Context, req delegation.ChatRequest) (*delegation.ChatResult, error)
	ForwardIngest(ctx context.Context, req delegation.IngestRequest) (*delegation.IngestAck, error)
}
