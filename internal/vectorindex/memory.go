package vectorindex

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/liliang-cn/docchat/internal/domain"
)

// Memory is an in-process index with brute-force cosine search.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]domain.VectorEntry
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]domain.VectorEntry)}
}

func (m *Memory) Upsert(ctx context.Context, entries []domain.VectorEntry) error {
	if err := ctx.Err(); err != nil {
		return domain.NewError(domain.KindIndexWrite, "memory upsert", "context done", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if e.ID == "" || len(e.Values) == 0 {
			return domain.NewError(domain.KindIndexWrite, "memory upsert", "entry requires id and values", nil)
		}
		e.Values = slices.Clone(e.Values)
		m.entries[e.ID] = e
	}
	return nil
}

func (m *Memory) Query(ctx context.Context, vector []float32, topK int, filter domain.VectorFilter) ([]domain.VectorMatch, error) {
	const op = "memory query"
	if err := validateQuery(op, vector, topK, filter); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.NewError(domain.KindIndexQuery, op, "context done", err)
	}

	m.mu.RLock()
	matches := make([]domain.VectorMatch, 0, len(m.entries))
	for _, e := range m.entries {
		if e.Metadata.OwnerID != filter.OwnerID {
			continue
		}
		if filter.DocumentID != "" && e.Metadata.DocumentID != filter.DocumentID {
			continue
		}
		score := cosine(vector, e.Values)
		matches = append(matches, domain.VectorMatch{ID: e.ID, Score: &score, Metadata: e.Metadata})
	}
	m.mu.RUnlock()

	slices.SortStableFunc(matches, func(a, b domain.VectorMatch) int {
		switch {
		case *a.Score > *b.Score:
			return -1
		case *a.Score < *b.Score:
			return 1
		}
		if a.ID < b.ID {
			return -1
		}
		return 1
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *Memory) DeleteMany(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return domain.NewError(domain.KindIndexDelete, "memory delete", "context done", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Get returns the entry stored under id.
func (m *Memory) Get(id string) (domain.VectorEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
