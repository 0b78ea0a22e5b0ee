package vectorindex

import (
	"context"
	"testing"

	"github.com/liliang-cn/docchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id, owner, doc string, values ...float32) domain.VectorEntry {
	return domain.VectorEntry{
		ID:     id,
		Values: values,
		Metadata: domain.VectorMetadata{
			DocumentID: doc,
			OwnerID:    owner,
			Filename:   doc + ".txt",
			Text:       "text of " + id,
		},
	}
}

func TestMemory_UpsertOverwritesByID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Upsert(ctx, []domain.VectorEntry{entry("doc1_chunk_0", "A", "doc1", 1, 0)}))
	require.NoError(t, m.Upsert(ctx, []domain.VectorEntry{entry("doc1_chunk_0", "A", "doc1", 0, 1)}))

	assert.Equal(t, 1, m.Len())
	got, ok := m.Get("doc1_chunk_0")
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, got.Values)
}

func TestMemory_QueryIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Upsert(ctx, []domain.VectorEntry{
		entry("a_0", "A", "docA", 1, 0),
		entry("a_1", "A", "docA", 0.6, 0.8),
		entry("b_0", "B", "docB", 1, 0),
	}))

	matches, err := m.Query(ctx, []float32{1, 0}, 10, domain.VectorFilter{OwnerID: "A"})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a_0", matches[0].ID)
	assert.InDelta(t, 1.0, *matches[0].Score, 1e-9)
	assert.Equal(t, "a_1", matches[1].ID)
	for _, match := range matches {
		assert.Equal(t, "A", match.Metadata.OwnerID)
	}

	matches, err = m.Query(ctx, []float32{1, 0}, 1, domain.VectorFilter{OwnerID: "A"})
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestMemory_QueryValidation(t *testing.T) {
	m := NewMemory()
	tests := []struct {
		name   string
		vector []float32
		topK   int
		filter domain.VectorFilter
	}{
		{"missing owner", []float32{1}, 5, domain.VectorFilter{}},
		{"empty vector", nil, 5, domain.VectorFilter{OwnerID: "A"}},
		{"zero topK", []float32{1}, 0, domain.VectorFilter{OwnerID: "A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Query(context.Background(), tt.vector, tt.topK, tt.filter)
			assert.ErrorIs(t, err, domain.ErrIndexQuery)
		})
	}
}

func TestMemory_DeleteManyIgnoresAbsentIDs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Upsert(ctx, []domain.VectorEntry{entry("a_0", "A", "docA", 1)}))

	require.NoError(t, m.DeleteMany(ctx, []string{"a_0", "missing"}))
	assert.Equal(t, 0, m.Len())
	require.NoError(t, m.DeleteMany(ctx, nil))
}

type countingIndex struct {
	*Memory
	upserts [][]string
}

func (c *countingIndex) Upsert(ctx context.Context, entries []domain.VectorEntry) error {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	c.upserts = append(c.upserts, ids)
	return c.Memory.Upsert(ctx, entries)
}

func TestBatched_SplitsUpserts(t *testing.T) {
	inner := &countingIndex{Memory: NewMemory()}
	idx := Batched(inner, 2)

	err := idx.Upsert(context.Background(), []domain.VectorEntry{
		entry("d_0", "A", "d", 1), entry("d_1", "A", "d", 1), entry("d_2", "A", "d", 1),
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"d_0", "d_1"}, {"d_2"}}, inner.upserts)
	assert.Equal(t, 3, inner.Len())

	assert.Same(t, inner, Batched(inner, 0))
}

func TestNew_Providers(t *testing.T) {
	idx, err := New(Config{Provider: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, idx)

	_, err = New(Config{Provider: "pinecone"}, nil)
	assert.Error(t, err)

	_, err = New(Config{Provider: "pgvector", PGVector: PGVectorConfig{DSN: "postgres://localhost/x", Table: "bad-name"}}, nil)
	assert.Error(t, err)

	_, err = New(Config{Provider: "weaviate"}, nil)
	assert.Error(t, err)
}
