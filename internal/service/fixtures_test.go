package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liliang-cn/docchat/internal/delegation"
	"github.com/liliang-cn/docchat/internal/domain"
	"github.com/liliang-cn/docchat/internal/repository"
	"github.com/liliang-cn/docchat/internal/retry"
	"github.com/liliang-cn/docchat/internal/vectorindex"
	"github.com/stretchr/testify/require"
)

// stubEmbedder maps text to a fixed two-dimensional vector unless fn is set.
type stubEmbedder struct {
	calls atomic.Int32
	fn    func(ctx context.Context, text string) ([]float32, error)
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.fn != nil {
		return e.fn(ctx, text)
	}
	return []float32{1, float32(len(text)%5) + 1}, nil
}

// faultyIndex is an in-memory index with injectable failures.
type faultyIndex struct {
	*vectorindex.Memory

	mu            sync.Mutex
	upsertErr     error
	partialUpsert bool
	deleteErr     error
	matches       []domain.VectorMatch
	deleted       [][]string
}

func newFaultyIndex() *faultyIndex {
	return &faultyIndex{Memory: vectorindex.NewMemory()}
}

func (f *faultyIndex) Upsert(ctx context.Context, entries []domain.VectorEntry) error {
	f.mu.Lock()
	err, partial := f.upsertErr, f.partialUpsert
	f.mu.Unlock()
	if err == nil {
		return f.Memory.Upsert(ctx, entries)
	}
	if partial && len(entries) > 0 {
		_ = f.Memory.Upsert(ctx, entries[:1])
	}
	return err
}

func (f *faultyIndex) Query(ctx context.Context, vector []float32, topK int, filter domain.VectorFilter) ([]domain.VectorMatch, error) {
	f.mu.Lock()
	matches := f.matches
	f.mu.Unlock()
	if matches != nil {
		return matches, nil
	}
	return f.Memory.Query(ctx, vector, topK, filter)
}

func (f *faultyIndex) DeleteMany(ctx context.Context, ids []string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, ids)
	err := f.deleteErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Memory.DeleteMany(ctx, ids)
}

// stubExtractor returns the text registered for a document id.
type stubExtractor struct {
	mu    sync.Mutex
	texts map[string]string
	err   error
}

func (e *stubExtractor) set(docID, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.texts[docID] = text
}

func (e *stubExtractor) Extract(_ context.Context, doc *domain.Document) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	return e.texts[doc.ID], nil
}

// stubCompleter records every prompt it receives.
type stubCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts [][]domain.PromptMessage
}

func (c *stubCompleter) Complete(_ context.Context, messages []domain.PromptMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, messages)
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func (c *stubCompleter) lastPrompt(t *testing.T) []domain.PromptMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.prompts)
	return c.prompts[len(c.prompts)-1]
}

type harness struct {
	docs      *repository.DocumentRepository
	sessions  *repository.SessionRepository
	index     *faultyIndex
	embedder  *stubEmbedder
	extractor *stubExtractor
	completer *stubCompleter
	gate      *delegation.Gate
	webhooks  map[delegation.Kind]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "docchat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{
		docs:      repository.NewDocumentRepository(db),
		sessions:  repository.NewSessionRepository(db),
		index:     newFaultyIndex(),
		embedder:  &stubEmbedder{},
		extractor: &stubExtractor{texts: map[string]string{}},
		completer: &stubCompleter{reply: "stub answer"},
		webhooks:  map[delegation.Kind]string{},
	}
	h.gate = delegation.NewGate(func(k delegation.Kind) string { return h.webhooks[k] }, time.Second, nil)
	return h
}

func (h *harness) ingestService(chunkSize int) *IngestService {
	return NewIngestService(h.docs, h.extractor, h.embedder, h.index, h.gate, IngestOptions{
		ChunkSize:   chunkSize,
		Concurrency: 4,
	}, nil)
}

func (h *harness) chatService() *ChatService {
	retriever := NewRetriever(h.embedder, h.index, DefaultTopK, DefaultScoreThreshold, retry.Once, nil)
	answers := NewAnswerGenerator(retriever, h.sessions, h.completer, DefaultHistoryLimit, retry.Once, nil)
	return NewChatService(h.sessions, answers, h.gate, nil)
}

func (h *harness) createDocument(t *testing.T, id, ownerID, text string) *domain.Document {
	t.Helper()
	doc := &domain.Document{
		ID:          id,
		OwnerID:     ownerID,
		Filename:    id + ".txt",
		StoragePath: ownerID + "/" + id + ".txt",
		MimeType:    "text/plain",
	}
	require.NoError(t, h.docs.Create(context.Background(), doc))
	h.extractor.set(id, text)
	return doc
}

func (h *harness) reload(t *testing.T, id string) *domain.Document {
	t.Helper()
	doc, err := h.docs.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, doc)
	return doc
}

// webhook starts a workflow endpoint answering with body and routes kind to it.
func (h *harness) webhook(t *testing.T, kind delegation.Kind, body string) *atomic.Int32 {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	h.webhooks[kind] = srv.URL
	return &calls
}

func failOn(substr string, err error) func(context.Context, string) ([]float32, error) {
	return func(_ context.Context, text string) ([]float32, error) {
		if strings.Contains(text, substr) {
			return nil, err
		}
		return []float32{1, 1}, nil
	}
}

var errUpstream = errors.New("upstream unavailable")

func score(v float64) *float64 { return &v }
