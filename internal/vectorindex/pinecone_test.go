package vectorindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/liliang-cn/docchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPinecone(t *testing.T, handler http.HandlerFunc) *Pinecone {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewPinecone(PineconeConfig{APIKey: "pc-key", IndexHost: srv.URL}, "docs", nil)
	require.NoError(t, err)
	return p
}

func TestPinecone_Upsert(t *testing.T) {
	var got pineconeUpsertRequest
	p := newTestPinecone(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vectors/upsert", r.URL.Path)
		assert.Equal(t, "pc-key", r.Header.Get("Api-Key"))
		assert.Equal(t, pineconeAPIVersion, r.Header.Get("X-Pinecone-Api-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"upsertedCount":1}`))
	})

	e := entry("doc1_chunk_0", "ownerA", "doc1", 0.5, 0.5)
	e.Metadata.ChunkIndex = 0
	require.NoError(t, p.Upsert(context.Background(), []domain.VectorEntry{e}))

	assert.Equal(t, "docs", got.Namespace)
	require.Len(t, got.Vectors, 1)
	assert.Equal(t, "doc1_chunk_0", got.Vectors[0].ID)
	assert.Equal(t, "ownerA", got.Vectors[0].Metadata["ownerId"])
	assert.Equal(t, "doc1", got.Vectors[0].Metadata["documentId"])
	assert.EqualValues(t, 0, got.Vectors[0].Metadata["chunkIndex"])
}

func TestPinecone_UpsertFailure(t *testing.T) {
	p := newTestPinecone(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"unavailable"}`))
	})

	err := p.Upsert(context.Background(), []domain.VectorEntry{entry("x", "A", "d", 1)})
	assert.ErrorIs(t, err, domain.ErrIndexWrite)
	assert.Contains(t, err.Error(), "503")
}

func TestPinecone_QueryFiltersByOwner(t *testing.T) {
	var got map[string]any
	p := newTestPinecone(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"matches":[
			{"id":"doc1_chunk_2","score":0.91,"metadata":{"documentId":"doc1","ownerId":"ownerA","filename":"a.txt","chunkIndex":2,"text":"hello"}},
			{"id":"doc1_chunk_5","metadata":{"documentId":"doc1","ownerId":"ownerA","filename":"a.txt","chunkIndex":5,"text":"no score"}},
			{"id":"bad","score":0.9,"metadata":{"chunkIndex":"x"}}
		]}`))
	})

	matches, err := p.Query(context.Background(), []float32{0.1, 0.2}, 5, domain.VectorFilter{OwnerID: "ownerA"})
	require.NoError(t, err)

	assert.Equal(t, "docs", got["namespace"])
	assert.EqualValues(t, 5, got["topK"])
	assert.Equal(t, true, got["includeMetadata"])
	assert.Equal(t, map[string]any{"ownerId": map[string]any{"$eq": "ownerA"}}, got["filter"])

	require.Len(t, matches, 2)
	assert.Equal(t, "doc1_chunk_2", matches[0].ID)
	require.NotNil(t, matches[0].Score)
	assert.InDelta(t, 0.91, *matches[0].Score, 1e-9)
	assert.Equal(t, 2, matches[0].Metadata.ChunkIndex)
	assert.Nil(t, matches[1].Score)
}

func TestPinecone_QueryRequiresOwner(t *testing.T) {
	var calls atomic.Int32
	p := newTestPinecone(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := p.Query(context.Background(), []float32{1}, 5, domain.VectorFilter{})
	assert.ErrorIs(t, err, domain.ErrIndexQuery)
	assert.Zero(t, calls.Load())
}

func TestPinecone_DeleteMany(t *testing.T) {
	var got pineconeDeleteRequest
	p := newTestPinecone(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vectors/delete", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{}`))
	})

	require.NoError(t, p.DeleteMany(context.Background(), []string{"doc1_chunk_0", "doc1_chunk_1"}))
	assert.Equal(t, []string{"doc1_chunk_0", "doc1_chunk_1"}, got.IDs)
	assert.Equal(t, "docs", got.Namespace)
}

func TestPinecone_DeleteFailure(t *testing.T) {
	p := newTestPinecone(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := p.DeleteMany(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, domain.ErrIndexDelete)
}

func TestPinecone_ResolvesHostOnce(t *testing.T) {
	var describes atomic.Int32
	var data *httptest.Server
	control := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		describes.Add(1)
		assert.Equal(t, "/indexes/docs-index", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "docs-index", "host": data.URL})
	}))
	t.Cleanup(control.Close)
	data = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(data.Close)

	p, err := NewPinecone(PineconeConfig{APIKey: "k", IndexName: "docs-index", BaseURL: control.URL}, "", nil)
	require.NoError(t, err)

	require.NoError(t, p.DeleteMany(context.Background(), []string{"a"}))
	require.NoError(t, p.DeleteMany(context.Background(), []string{"b"}))
	assert.Equal(t, int32(1), describes.Load())
}

func TestNewPinecone_Validation(t *testing.T) {
	_, err := NewPinecone(PineconeConfig{IndexName: "x"}, "", nil)
	assert.Error(t, err)

	_, err = NewPinecone(PineconeConfig{APIKey: "k"}, "", nil)
	assert.Error(t, err)
}
