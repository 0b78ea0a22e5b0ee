package llm

import (
	"context"

	"github.com/liliang-cn/docchat/internal/domain"
	"github.com/openai/openai-go/v3"
	"golang.org/x/time/rate"
)

// DefaultEmbeddingModel is used when no model is configured.
const DefaultEmbeddingModel = "text-embedding-3-small"

// Embedder turns text into a fixed-dimension vector. It is safe for
// concurrent use.
type Embedder struct {
	provider *Provider
	model    string
	limiter  *rate.Limiter
}

// NewEmbedder creates an embedder. perSecond <= 0 disables rate limiting.
func NewEmbedder(provider *Provider, perSecond float64, burst int) *Embedder {
	model := provider.cfg.EmbeddingModel
	if model == "" {
		model = DefaultEmbeddingModel
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Embedder{
		provider: provider,
		model:    model,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.model }

// Embed returns the embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	const op = "embed"

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, domain.NewError(domain.KindEmbeddingService, op, "rate limit wait", err)
	}

	client, err := e.provider.Client()
	if err != nil {
		return nil, domain.NewError(domain.KindEmbeddingService, op, "client unavailable", err)
	}

	resp, err := client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, domain.NewError(domain.KindEmbeddingService, op, describe(err), err)
	}
	if resp == nil || len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, domain.NewError(domain.KindEmbeddingService, op, "response has no embedding", nil)
	}

	values := resp.Data[0].Embedding
	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v)
	}
	return vec, nil
}
