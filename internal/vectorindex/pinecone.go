package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/liliang-cn/docchat/internal/domain"
	"go.uber.org/zap"
)

const (
	pineconeAPIVersion   = "2025-10"
	pineconeBaseURL      = "https://api.pinecone.io"
	pineconeDeleteLimit  = 1000
	pineconeErrBodyLimit = 512
)

// Pinecone is an Index backed by the Pinecone REST API.
type Pinecone struct {
	cfg       PineconeConfig
	namespace string
	http      *http.Client
	logger    *zap.Logger

	mu   sync.Mutex
	host string
}

// NewPinecone creates a Pinecone index client. The data-plane host is
// resolved on first use, through describe_index when not configured.
func NewPinecone(cfg PineconeConfig, namespace string, logger *zap.Logger) (*Pinecone, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing Pinecone API key")
	}
	if strings.TrimSpace(cfg.IndexHost) == "" && strings.TrimSpace(cfg.IndexName) == "" {
		return nil, fmt.Errorf("pinecone index name or host required")
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = pineconeAPIVersion
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = pineconeBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pinecone{
		cfg:       cfg,
		namespace: namespace,
		http:      &http.Client{Timeout: cfg.Timeout},
		logger:    logger.Named("pinecone"),
	}, nil
}

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type pineconeUpsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace,omitempty"`
}

type pineconeQueryRequest struct {
	Namespace       string         `json:"namespace,omitempty"`
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	Filter          map[string]any `json:"filter,omitempty"`
	IncludeMetadata bool           `json:"includeMetadata"`
}

type pineconeQueryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    *float64       `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

type pineconeDeleteRequest struct {
	IDs       []string `json:"ids"`
	Namespace string   `json:"namespace,omitempty"`
}

type pineconeIndexDescription struct {
	Name string `json:"name"`
	Host string `json:"host"`
}

func (p *Pinecone) Upsert(ctx context.Context, entries []domain.VectorEntry) error {
	const op = "pinecone upsert"
	if len(entries) == 0 {
		return nil
	}

	req := pineconeUpsertRequest{
		Vectors:   make([]pineconeVector, len(entries)),
		Namespace: p.namespace,
	}
	for i, e := range entries {
		req.Vectors[i] = pineconeVector{ID: e.ID, Values: e.Values, Metadata: e.Metadata.Map()}
	}

	if err := p.post(ctx, "/vectors/upsert", req, nil); err != nil {
		return domain.Wrap(domain.KindIndexWrite, op, err)
	}
	return nil
}

func (p *Pinecone) Query(ctx context.Context, vector []float32, topK int, filter domain.VectorFilter) ([]domain.VectorMatch, error) {
	const op = "pinecone query"
	if err := validateQuery(op, vector, topK, filter); err != nil {
		return nil, err
	}

	req := pineconeQueryRequest{
		Namespace:       p.namespace,
		Vector:          vector,
		TopK:            topK,
		Filter:          pineconeFilter(filter),
		IncludeMetadata: true,
	}
	var resp pineconeQueryResponse
	if err := p.post(ctx, "/query", req, &resp); err != nil {
		return nil, domain.Wrap(domain.KindIndexQuery, op, err)
	}

	matches := make([]domain.VectorMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		meta, err := domain.VectorMetadataFromMap(m.Metadata)
		if err != nil {
			p.logger.Warn("Dropping match with unreadable metadata", zap.String("id", m.ID), zap.Error(err))
			continue
		}
		matches = append(matches, domain.VectorMatch{ID: m.ID, Score: m.Score, Metadata: meta})
	}
	return matches, nil
}

func (p *Pinecone) DeleteMany(ctx context.Context, ids []string) error {
	const op = "pinecone delete"
	for start := 0; start < len(ids); start += pineconeDeleteLimit {
		end := min(start+pineconeDeleteLimit, len(ids))
		req := pineconeDeleteRequest{IDs: ids[start:end], Namespace: p.namespace}
		if err := p.post(ctx, "/vectors/delete", req, nil); err != nil {
			return domain.Wrap(domain.KindIndexDelete, op, err)
		}
	}
	return nil
}

func pineconeFilter(filter domain.VectorFilter) map[string]any {
	f := map[string]any{
		domain.MetadataKeyOwnerID: map[string]any{"$eq": filter.OwnerID},
	}
	if filter.DocumentID != "" {
		f[domain.MetadataKeyDocumentID] = map[string]any{"$eq": filter.DocumentID}
	}
	return f
}

// dataHost returns the index host, resolving it once. Failed lookups are
// not cached.
func (p *Pinecone) dataHost(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.host != "" {
		return p.host, nil
	}
	if h := strings.TrimSpace(p.cfg.IndexHost); h != "" {
		p.host = h
		return p.host, nil
	}

	u := strings.TrimRight(p.cfg.BaseURL, "/") + "/indexes/" + p.cfg.IndexName
	var desc pineconeIndexDescription
	if err := p.do(ctx, http.MethodGet, u, nil, &desc); err != nil {
		return "", fmt.Errorf("describe index %s: %w", p.cfg.IndexName, err)
	}
	if strings.TrimSpace(desc.Host) == "" {
		return "", fmt.Errorf("describe index %s returned empty host", p.cfg.IndexName)
	}
	p.host = desc.Host
	p.logger.Info("Resolved Pinecone index host", zap.String("index", p.cfg.IndexName), zap.String("host", p.host))
	return p.host, nil
}

func (p *Pinecone) post(ctx context.Context, path string, body, out any) error {
	host, err := p.dataHost(ctx)
	if err != nil {
		return err
	}
	base := host
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return p.do(ctx, http.MethodPost, strings.TrimRight(base, "/")+path, body, out)
}

func (p *Pinecone) do(ctx context.Context, method, url string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Api-Key", p.cfg.APIKey)
	req.Header.Set("X-Pinecone-Api-Version", p.cfg.APIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(raw) > pineconeErrBodyLimit {
			raw = raw[:pineconeErrBodyLimit]
		}
		return fmt.Errorf("pinecone http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("pinecone decode: %w", err)
	}
	return nil
}
